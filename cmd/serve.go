package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/jobscout/internal/config"
	httpapi "github.com/nextlevelbuilder/jobscout/internal/http"
	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
)

func serveCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyze pipeline over HTTP",
		Long: `Serve the analyze pipeline over HTTP.

  GET /v1/analyze?url=<profile>     run (or reuse a cached) analysis
  GET /v1/analyze/ws?url=<profile>  stream stage events, then the report
  GET /healthz                      liveness and MCP server status

Stage model and instruction overrides in the config file are reloaded on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func runServe(parent context.Context, host string, port int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := resolveConfigPath()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(a.orch, httpapi.Options{
		Token:        cfg.Server.Token,
		RateLimitRPM: cfg.Server.RateLimitRPM,
		CacheSize:    cfg.Server.CacheSize,
		CacheTTL:     time.Duration(cfg.Server.CacheTTLMin) * time.Minute,
		MaxRuns:      cfg.Server.MaxRuns,
		Version:      Version,
		Status:       a.supervisor.Status,
	})
	defer srv.Close()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.Token == "" {
		slog.Warn("serving without authentication (set server.token or " + config.EnvServerToken + ")")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("jobscout serving", "addr", addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		srv.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	if w, err := config.NewWatcher(cfgPath); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		w.Subscribe(func(next *config.Config) {
			applyStageReload(a.orch, next)
		})
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				slog.Warn("config watcher stopped", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// applyStageReload swaps stage models and instructions for the next runs.
// Credentials and server settings need a restart.
func applyStageReload(orch *pipeline.Orchestrator, next *config.Config) {
	stages := pipeline.BuildStages(next.Provider.Model, next.Pipeline.Stages)
	if err := orch.SetStages(stages); err != nil {
		slog.Warn("config reload rejected", "error", err)
		return
	}
	slog.Info("stage configuration reloaded", "model", next.Provider.Model, "overrides", len(next.Pipeline.Stages))
}
