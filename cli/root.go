// Package cli implements the toolhost command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/petal-labs/toolhost"
	"github.com/petal-labs/toolhost/bridge"
	"github.com/petal-labs/toolhost/config"
	"github.com/petal-labs/toolhost/env"
)

// SetupFunc builds the runtime once configuration is loaded. lookup resolves
// variables from the process first and the config env section second.
type SetupFunc func(lookup env.LookupFunc, logger *slog.Logger) (*toolhost.Runtime, error)

// App describes the host program the command tree drives.
type App struct {
	Name    string
	Version string
	Setup   SetupFunc
	// Bridges are MCP servers exposed next to the native tools, keyed by
	// the name used in /api/bridges/{bridge} and --bridge.
	Bridges map[string]*mcp.Server
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(app App) *cobra.Command {
	name := strings.TrimSpace(app.Name)
	if name == "" {
		name = "toolhost"
	}
	root := &cobra.Command{
		Use:          name,
		Short:        "Serve, call and package registered tools",
		SilenceUsage: true,
	}
	if app.Version != "" {
		root.Version = app.Version
		root.SetVersionTemplate(fmt.Sprintf("%s version %s\n", name, app.Version))
	}

	root.PersistentFlags().String("config", "", "Path to toolhost.yaml")
	root.PersistentFlags().String("log-level", "", "Log level: debug | info | warn | error")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	root.AddCommand(newServeCmd(&app))
	root.AddCommand(newCallCmd(&app))
	root.AddCommand(newManifestCmd(&app))
	root.AddCommand(newBuildCmd(&app))
	root.AddCommand(newValidateCmd(&app))
	return root
}

// session is the state every command starts from.
type session struct {
	cfg     config.Config
	cfgPath string
	logger  *slog.Logger
	runtime *toolhost.Runtime
}

func (a *App) load(cmd *cobra.Command) (*session, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := config.LoadDiscovered(explicit)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "%v", err)
		}
		return nil, exitError(exitConfig, "%v", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); strings.TrimSpace(level) != "" {
		cfg.Logging.Level = level
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return nil, exitError(exitConfig, "%v", err)
	}

	if a.Setup == nil {
		return nil, exitError(exitRuntime, "no tools configured")
	}
	rt, err := a.Setup(cfg.Lookup(), logger)
	if err != nil {
		return nil, exitError(exitRuntime, "setting up tools: %v", err)
	}
	if rt == nil {
		return nil, exitError(exitRuntime, "setup returned no runtime")
	}
	return &session{cfg: cfg, cfgPath: path, logger: logger, runtime: rt}, nil
}

// openBridge connects the named MCP server.
func (a *App) openBridge(ctx context.Context, name string, logger *slog.Logger) (*bridge.Bridge, error) {
	server, ok := a.Bridges[name]
	if !ok || server == nil {
		return nil, exitError(exitValidation, "unknown bridge %q (available: %s)", name, strings.Join(a.bridgeNames(), ", "))
	}
	b, err := bridge.New(ctx, server, &bridge.Options{Logger: logger.With("bridge", name)})
	if err != nil {
		return nil, exitError(exitRuntime, "connecting bridge %q: %v", name, err)
	}
	return b, nil
}

func (a *App) bridgeNames() []string {
	names := make([]string, 0, len(a.Bridges))
	for name := range a.Bridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
