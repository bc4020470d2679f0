package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/domaincrawl/internal/config"
	"github.com/nao1215/domaincrawl/internal/server"
)

// drainTimeout bounds how long serve waits for running crawls to record
// their partial results after a shutdown signal.
const drainTimeout = 30 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl engine behind an HTTP API",
		Long: `Serve starts the crawl engine and an HTTP front end controlling it.

Endpoints:
  GET|POST /crawl/{domain}   start (or restart) a crawl, 202 Accepted
  GET /urls/{domain}         discovered URLs (?detail=1 for full records)
  GET /count/{domain}        number of discovered URLs
  GET /status/{domain}       crawl state without the URL list
  GET /healthz               liveness probe
  GET /metrics               Prometheus metrics (unless --metrics=false)

Examples:
  # Listen on the default address (127.0.0.1:3030)
  domaincrawl serve

  # Listen on all interfaces with 32 workers
  domaincrawl serve -l :8080 -w 32

  # Keep the history of every finished crawl
  domaincrawl serve --archive

Configuration file (.domaincrawl) example:
  defaults:
    ignorePatterns:
      - "/logout*"
  sites:
    example.com:
      cookie: "session_id=abc123"
      maxPages: 500`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddress,
		"Address the HTTP server listens on")
	cmd.Flags().Bool("metrics", true,
		"Expose Prometheus metrics at /metrics")
	addEngineFlags(cmd)

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(os.Stderr, cfg, slog.LevelInfo)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return serve(ctx, cfg, logger, nil)
}

// serve runs the engine and the HTTP server until ctx is cancelled. The
// server accepts on l, or listens on cfg.ListenAddress when l is nil.
// The HTTP server stops first so no new crawl is accepted, then running
// crawls are cancelled and drained.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, l net.Listener) error {
	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		if l != nil {
			_ = l.Close() //nolint:errcheck // Best effort cleanup
		}
		return err
	}

	opts := []server.Option{server.WithLogger(logger)}
	if eng.metrics != nil {
		opts = append(opts, server.WithMetricsHandler(eng.metrics.Handler()))
	}
	srv := server.New(eng.registry, opts...)

	logger.Info("crawl engine started",
		"workers", cfg.Workers,
		"perDomainLimit", cfg.EffectivePerDomainLimit(),
		"leaseTimeout", cfg.EffectiveLeaseTimeout(),
		"restartPolicy", cfg.RestartPolicy,
		"archive", cfg.Archive,
	)
	var serveErr error
	if l != nil {
		serveErr = srv.Serve(ctx, l)
	} else {
		serveErr = srv.ListenAndServe(ctx, cfg.ListenAddress)
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	closeErr := eng.close(drainCtx)
	logger.Info("crawl engine stopped")

	return errors.Join(serveErr, closeErr)
}
