// Package toolhost hosts small, named tools behind one invocation contract.
//
// A Runtime owns a tool registry and an optional process environment
// declaration. Tools are registered during setup, then served by any number
// of transports (HTTP, CLI, the build pipeline, or an MCP bridge) that all
// call HandleToolCall and receive a tool.Response.
//
//	rt := toolhost.New(nil).
//		Tool(toolhost.Definition{
//			Name:        "greet",
//			InputSchema: schema.Object(schema.Fields{"name": schema.String()}),
//			Handler: func(c *toolhost.CallContext, input any) (toolhost.Response, error) {
//				in := input.(map[string]any)
//				return c.Success(map[string]any{"message": "Hello, " + in["name"].(string) + "!"}), nil
//			},
//		})
//
// For finer control, import the subpackages directly:
//
//	import "github.com/petal-labs/toolhost/tool"
//	import "github.com/petal-labs/toolhost/dispatch"
//	import "github.com/petal-labs/toolhost/bridge"
package toolhost

import (
	"github.com/petal-labs/toolhost/schema"
	"github.com/petal-labs/toolhost/tool"
)

// =============================================================================
// Tool Package Re-exports
// =============================================================================

type (
	// Definition declares one tool as a value.
	Definition = tool.Definition

	// Tool is the method-set form of a definition.
	Tool = tool.Tool

	// HandlerFunc runs a tool against validated input.
	HandlerFunc = tool.HandlerFunc

	// CallContext is handed to a handler for one invocation.
	CallContext = tool.CallContext

	// CallRequest is the transport-agnostic invocation payload.
	CallRequest = tool.CallRequest

	// Response is the outcome of every invocation path.
	Response = tool.Response

	// Manifest describes the registered tools.
	Manifest = tool.Manifest

	// ResponseOption adjusts a built response.
	ResponseOption = tool.ResponseOption
)

// Response builders.
var (
	Success    = tool.Success
	Failure    = tool.Failure
	NoContent  = tool.NoContent
	WithStatus = tool.WithStatus
	WithHeader = tool.WithHeader
)

// =============================================================================
// Schema Package Re-exports
// =============================================================================

type (
	// Schema validates and describes a value.
	Schema = schema.Schema

	// Fields maps object keys or environment variable names to schemas.
	Fields = schema.Fields
)
