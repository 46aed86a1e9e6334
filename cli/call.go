package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolhost/tool"
)

func newCallCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke one tool and print its response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, app, args[0])
		},
	}

	cmd.Flags().String("input", "", "Tool input as JSON, @file to read a file, or - for stdin")
	cmd.Flags().Duration("timeout", 0, "Call timeout (default from config, then 5m)")
	cmd.Flags().String("bridge", "", "Call a tool on the named bridge instead of a native tool")
	cmd.Flags().Bool("include-status", false, "Print the status line before the body")

	return cmd
}

func runCall(cmd *cobra.Command, app *App, name string) error {
	s, err := app.load(cmd)
	if err != nil {
		return err
	}

	inputFlag, _ := cmd.Flags().GetString("input")
	input, err := readInput(cmd.InOrStdin(), inputFlag)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = s.cfg.Server.Timeout
	}
	ctx := cmd.Context()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	req := tool.CallRequest{Name: name, Input: input}
	var resp tool.Response
	if bridgeName, _ := cmd.Flags().GetString("bridge"); bridgeName != "" {
		b, err := app.openBridge(ctx, bridgeName, s.logger)
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()
		resp = b.HandleToolCall(ctx, req)
	} else {
		resp = s.runtime.HandleToolCall(ctx, req)
	}

	out := cmd.OutOrStdout()
	if includeStatus, _ := cmd.Flags().GetBool("include-status"); includeStatus {
		fmt.Fprintf(out, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	writeBody(out, resp.Body)

	switch {
	case resp.StatusCode == tool.StatusAborted:
		return exitError(exitTimeout, "call %s aborted after %s", name, timeout)
	case resp.StatusCode >= 400:
		return exitError(exitCallFailed, "call %s failed with status %d", name, resp.StatusCode)
	}
	return nil
}

// readInput resolves --input into raw JSON. Empty means no input.
func readInput(stdin io.Reader, flag string) (json.RawMessage, error) {
	var data []byte
	switch {
	case flag == "":
		return nil, nil
	case flag == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, exitError(exitInputParse, "reading stdin: %v", err)
		}
		data = b
	case strings.HasPrefix(flag, "@"):
		path := strings.TrimPrefix(flag, "@")
		b, err := os.ReadFile(path) // #nosec G304 -- path supplied by the operator
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, exitError(exitFileNotFound, "input file not found: %s", path)
			}
			return nil, exitError(exitInputParse, "reading input file: %v", err)
		}
		data = b
	default:
		data = []byte(flag)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, exitError(exitInputParse, "input is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// writeBody prints a response body, indenting JSON when possible.
func writeBody(w io.Writer, body []byte) {
	if len(body) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		pretty.WriteByte('\n')
		_, _ = w.Write(pretty.Bytes())
		return
	}
	_, _ = w.Write(body)
	_, _ = fmt.Fprintln(w)
}

func newManifestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the tool manifest as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.load(cmd)
			if err != nil {
				return err
			}

			manifest := s.runtime.Manifest()
			if bridgeName, _ := cmd.Flags().GetString("bridge"); bridgeName != "" {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				b, err := app.openBridge(ctx, bridgeName, s.logger)
				if err != nil {
					return err
				}
				defer func() { _ = b.Close() }()
				manifest = b.Manifest()
			}

			data, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return exitError(exitRuntime, "encoding manifest: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().String("bridge", "", "Print the manifest of the named bridge")
	return cmd
}
