package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// notes is an in-memory notebook exposed as an MCP server under the
// "notes" bridge.
type notes struct {
	mu    sync.Mutex
	items []string
}

type addNoteInput struct {
	Text string `json:"text" jsonschema:"the note to store"`
}

type addNoteOutput struct {
	Count int `json:"count"`
}

func newNotesServer() *mcp.Server {
	n := &notes{}
	server := mcp.NewServer(&mcp.Implementation{Name: "notes", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{Name: "add_note", Description: "Store a note"},
		func(ctx context.Context, req *mcp.CallToolRequest, in addNoteInput) (*mcp.CallToolResult, addNoteOutput, error) {
			text := strings.TrimSpace(in.Text)
			if text == "" {
				return nil, addNoteOutput{}, errors.New("text is required")
			}
			count := n.add(text)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("stored note %d", count)}},
			}, addNoteOutput{Count: count}, nil
		})

	server.AddResource(&mcp.Resource{URI: "notes://all", Name: "all notes", MIMEType: "text/plain"},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{URI: req.Params.URI, MIMEType: "text/plain", Text: n.text()}},
			}, nil
		})
	return server
}

func (n *notes) add(text string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, text)
	return len(n.items)
}

func (n *notes) text() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.items, "\n")
}
