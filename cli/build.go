package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolhost/build"
	"github.com/petal-labs/toolhost/tool"
)

func newBuildCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Package the executable and its manifest into an artifact directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, app)
		},
	}

	cmd.Flags().String("out", "", "Output directory (default from config, then dist)")
	cmd.Flags().String("name", "", "Package name (default: entrypoint file name)")
	cmd.Flags().String("version", "", "Package version")
	cmd.Flags().String("entrypoint", "", "Executable to bundle (default: this binary)")
	cmd.Flags().StringArray("probe", nil, "Call tool before packaging: name or name=JSON (repeatable)")

	return cmd
}

func runBuild(cmd *cobra.Command, app *App) error {
	s, err := app.load(cmd)
	if err != nil {
		return err
	}

	opts := build.Options{
		OutDir:  s.cfg.Build.OutDir,
		Name:    s.cfg.Build.Name,
		Version: s.cfg.Build.Version,
		Logger:  s.logger,
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		opts.OutDir = out
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		opts.Name = name
	}
	if version, _ := cmd.Flags().GetString("version"); version != "" {
		opts.Version = version
	}
	opts.Entrypoint, _ = cmd.Flags().GetString("entrypoint")

	probeFlags, _ := cmd.Flags().GetStringArray("probe")
	probes, err := parseProbes(probeFlags)
	if err != nil {
		return err
	}
	opts.Probes = probes

	art, err := build.Package(cmd.Context(), s.runtime, opts)
	switch {
	case errors.Is(err, build.ErrEmptyManifest), errors.Is(err, build.ErrInvalidManifest):
		return exitError(exitValidation, "%v", err)
	case errors.Is(err, build.ErrProbeFailed):
		return exitError(exitCallFailed, "%v", err)
	case errors.Is(err, os.ErrNotExist):
		return exitError(exitFileNotFound, "%v", err)
	case err != nil:
		return exitError(exitRuntime, "%v", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Packaged %d tool(s) into %s\n", len(art.Metadata.Tools), art.Dir)
	fmt.Fprintf(out, "  build id: %s\n", art.Metadata.BuildID)
	fmt.Fprintf(out, "  bundle:   %s (sha256 %s)\n", art.Metadata.Bundle.Path, art.Metadata.Bundle.SHA256)
	return nil
}

func parseProbes(flags []string) ([]tool.CallRequest, error) {
	probes := make([]tool.CallRequest, 0, len(flags))
	for _, raw := range flags {
		name, input, hasInput := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, exitError(exitInputParse, "invalid probe %q: name is required", raw)
		}
		req := tool.CallRequest{Name: name}
		if hasInput {
			if !json.Valid([]byte(input)) {
				return nil, exitError(exitInputParse, "invalid probe %q: input is not valid JSON", raw)
			}
			req.Input = json.RawMessage(input)
		}
		probes = append(probes, req)
	}
	return probes, nil
}
