package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petal-labs/toolhost/bridge"
	hostotel "github.com/petal-labs/toolhost/otel"
	"github.com/petal-labs/toolhost/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, app)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config, then :8080)")
	cmd.Flags().Duration("timeout", 0, "Per-call timeout (default from config, then 5m)")
	cmd.Flags().Int64("max-body", 0, "Max request body size in bytes (default from config, then 1 MiB)")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")

	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	s, err := app.load(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		s.cfg.Server.Addr = addr
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout != 0 {
		s.cfg.Server.Timeout = timeout
	}
	if maxBody, _ := cmd.Flags().GetInt64("max-body"); maxBody > 0 {
		s.cfg.Server.MaxBodySize = maxBody
	}
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	logger := s.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := hostotel.Setup(ctx, hostotel.Config{
		ServiceName:  s.cfg.Telemetry.ServiceName,
		OTLPEndpoint: s.cfg.Telemetry.OTLPEndpoint,
		Insecure:     s.cfg.Telemetry.Insecure,
	})
	if err != nil {
		return exitError(exitConfig, "initializing telemetry: %v", err)
	}
	providers.Install()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if _, err := s.runtime.ValidateEnvironment(); err != nil {
		logger.Error("environment invalid; calls will fail until it is fixed", "error", err)
	}

	var opened []*bridge.Bridge
	defer func() {
		for _, b := range opened {
			_ = b.Close()
		}
	}()
	bridges := make(map[string]server.Bridge, len(app.Bridges))
	for _, name := range app.bridgeNames() {
		b, err := app.openBridge(ctx, name, logger)
		if err != nil {
			return err
		}
		opened = append(opened, b)
		bridges[name] = b
		logger.Info("bridge connected", "bridge", name, "tools", len(b.Manifest().Tools))
	}

	srv := server.NewServer(server.ServerConfig{
		Host:        s.runtime,
		Environment: s.runtime.Environment(),
		Bridges:     bridges,
		Timeout:     s.cfg.Server.Timeout,
		MaxBody:     s.cfg.Server.MaxBodySize,
		Metrics:     providers.HTTP,
		Logger:      logger,
	})

	listener, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return exitError(exitRuntime, "listen on %s: %v", s.cfg.Server.Addr, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(cmd.OutOrStdout(), "toolhost listening on %s (%d tools)\n", listener.Addr(), len(s.runtime.Manifest().Tools))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return exitError(exitRuntime, "server error: %v", err)
	}
	return nil
}
