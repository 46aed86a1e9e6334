package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolhost/build"
	"github.com/petal-labs/toolhost/env"
	"github.com/petal-labs/toolhost/schema"
)

func newValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, environment and manifest without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, app)
		},
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

type validateReport struct {
	Config      string            `json:"config,omitempty"`
	Valid       bool              `json:"valid"`
	Environment map[string]string `json:"environment,omitempty"`
	Issues      []schema.Issue    `json:"issues,omitempty"`
	Tools       []string          `json:"tools"`
	Manifest    string            `json:"manifest_error,omitempty"`
}

func runValidate(cmd *cobra.Command, app *App) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "invalid --format %q: must be text or json", format)
	}
	s, err := app.load(cmd)
	if err != nil {
		return err
	}

	report := validateReport{Config: s.cfgPath, Valid: true}
	manifest := s.runtime.Manifest()
	report.Tools = manifest.Names()

	values, err := s.runtime.Environment().Redacted()
	var envErr *env.ValidationError
	switch {
	case errors.As(err, &envErr):
		report.Valid = false
		report.Issues = envErr.Issues
	case err != nil:
		return exitError(exitRuntime, "validating environment: %v", err)
	default:
		report.Environment = values
	}
	if err := build.ValidateManifest(manifest); err != nil {
		report.Valid = false
		report.Manifest = err.Error()
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding report: %v", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		writeValidateText(out, report)
	}

	if !report.Valid {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func writeValidateText(w io.Writer, report validateReport) {
	if report.Config != "" {
		fmt.Fprintf(w, "config: %s\n", report.Config)
	} else {
		fmt.Fprintln(w, "config: defaults (no toolhost.yaml found)")
	}

	if len(report.Issues) > 0 {
		fmt.Fprintln(w, "environment: invalid")
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "  %s: %s\n", issue.Path, issue.Message)
		}
	} else {
		fmt.Fprintln(w, "environment: valid")
		keys := make([]string, 0, len(report.Environment))
		for key := range report.Environment {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s=%s\n", key, report.Environment[key])
		}
	}

	if report.Manifest != "" {
		fmt.Fprintf(w, "manifest: invalid: %s\n", report.Manifest)
	} else {
		fmt.Fprintf(w, "manifest: %d tool(s)\n", len(report.Tools))
	}
}
