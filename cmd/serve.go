package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/headless-mcp/internal/mcp"
	"github.com/xkilldash9x/headless-mcp/internal/metrics"
	"github.com/xkilldash9x/headless-mcp/internal/session"
	"github.com/xkilldash9x/headless-mcp/internal/tools"
)

// newServeCmd creates the `serve` command. The root command runs the same thing.
func newServeCmd(app *application) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout until the client disconnects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addServeFlags(serveCmd)
	return serveCmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("chrome-path", "", "Path to the Chrome/Chromium executable. (Overrides config/env)")
	cmd.Flags().StringSlice("browser-arg", nil, "Extra deployment launch flag, repeatable. (Overrides config/env)")
	cmd.Flags().Duration("launch-timeout", 0, "Upper bound on browser startup. (Overrides config/env)")
	cmd.Flags().Duration("action-timeout", 0, "Upper bound on a single page action. (Overrides config/env)")
	cmd.Flags().String("tool-prefix", "", "Prefix prepended to every tool name. (Overrides config/env)")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics over HTTP. (Overrides config/env)")
	cmd.Flags().String("metrics-addr", "", "Listen address for the metrics endpoint. (Overrides config/env)")
}

// serverComponents holds the wired services for one serve run.
type serverComponents struct {
	Collector *metrics.Collector
	Sessions  *session.Manager
	Server    *mcp.Server
}

func buildServerComponents(app *application) *serverComponents {
	cfg := app.cfg
	logger := app.logger
	collector := metrics.NewCollector()

	sessions := session.NewManager(
		app.newLauncher(logger),
		session.Options{
			ExecPath:       cfg.Browser().ExecPath,
			DeploymentArgs: cfg.Browser().Args,
			LaunchTimeout:  cfg.Browser().LaunchTimeout,
			CloseTimeout:   cfg.Browser().ShutdownTimeout,
		},
		logger,
		session.WithRecorder(collector),
	)

	dispatcher := tools.NewDispatcher(sessions, logger,
		tools.WithActionTimeout(cfg.Browser().ActionTimeout),
		tools.WithRecorder(collector),
	)

	server := mcp.NewServer(dispatcher, mcp.Options{
		Name:       cfg.Server().Name,
		Version:    cfg.Server().Version,
		ToolPrefix: cfg.Server().ToolPrefix,
		RateLimit:  cfg.Server().RateLimit,
		Burst:      cfg.Server().Burst,
	}, logger)

	return &serverComponents{Collector: collector, Sessions: sessions, Server: server}
}

// Shutdown closes the browser session, bounded by timeout.
func (sc *serverComponents) Shutdown(timeout time.Duration, logger *zap.Logger) {
	// The serve context may already be cancelled, so shutdown gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := sc.Sessions.Shutdown(ctx); err != nil {
		logger.Warn("Error during browser session shutdown", zap.Error(err))
	}
}

// runServe serves MCP on in/out until EOF or cancellation, then tears down the browser.
func runServe(ctx context.Context, app *application, in io.Reader, out io.Writer) error {
	logger := app.logger
	components := buildServerComponents(app)
	defer components.Shutdown(app.cfg.Browser().ShutdownTimeout, logger)

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error {
		// EOF on stdin ends the run, which also stops the metrics endpoint.
		defer stop()
		return components.Server.Serve(gctx, mcp.NewStdioTransport(in, out))
	})

	if m := app.cfg.Metrics(); m.Enabled {
		g.Go(func() error {
			if err := metrics.Serve(gctx, m.Address, m.Path, components.Collector, logger); err != nil {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	switch {
	case err == nil:
		logger.Info("Client disconnected; shutting down")
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Info("Shutdown signal received")
		return nil
	default:
		return err
	}
}
