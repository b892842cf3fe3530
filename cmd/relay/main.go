// relay keeps a WebSocket connection to one endpoint alive, fans inbound
// events out through the router and optionally records them to PostgreSQL.
// Usage: go run ./cmd/relay --config configs/relay.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsrelay/internal/config"
	"github.com/rickgao/wsrelay/internal/connection"
	"github.com/rickgao/wsrelay/internal/database"
	"github.com/rickgao/wsrelay/internal/router"
	"github.com/rickgao/wsrelay/internal/version"
	"github.com/rickgao/wsrelay/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logEvents := flag.Bool("log-events", false, "log every inbound event at debug level")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logger.With("instance_id", cfg.Instance.ID)
	logger.Info("configuration loaded",
		"endpoint", cfg.Endpoint.URL,
		"recording", cfg.Database.Enabled,
	)

	if err := run(cfg, *logEvents, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(cfg *config.RelayConfig, logEvents bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	rtr := router.New(router.Config{QueueSize: cfg.Router.QueueSize}, logger.With("component", "router"))
	defer rtr.Close()

	// Optional event recording
	var (
		pool     *pgxpool.Pool
		recorder *writer.EventWriter
	)
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		var err error
		pool, err = database.Connect(ctx, cfg.Database.PoolConfig())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("database connected")

		recorder = writer.NewEventWriter(
			writer.WriterConfig{
				BatchSize:     cfg.Writer.BatchSize,
				FlushInterval: cfg.Writer.FlushInterval,
			},
			cfg.Instance.ID,
			rtr.Subscribe(router.Wildcard),
			pool,
			logger.With("component", "writer"),
		)
	}

	if logEvents {
		sub := rtr.Subscribe(router.Wildcard)
		go sub.Handle(ctx, func(ev connection.Event) {
			logger.Debug("event",
				"name", ev.Name,
				"session", ev.Session,
				"bytes", len(ev.Data),
			)
		})
	}

	mgr := connection.NewManager(cfg.ManagerConfig(), rtr,
		connection.WithLogger(logger.With("component", "connection")),
	)

	deps := healthDeps{
		instanceID: cfg.Instance.ID,
		manager:    mgr,
		router:     rtr,
		recorder:   recorder,
	}
	if pool != nil {
		deps.db = pool
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(deps, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	if recorder != nil {
		if err := recorder.Start(gctx); err != nil {
			return fmt.Errorf("start writer: %w", err)
		}
	}

	mgr.Connect()
	logger.Info("relay running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		mgr.Close(connection.CloseNormalClosure, "shutdown")
		rtr.Close()

		var errs []error
		if recorder != nil {
			if err := recorder.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("stop writer: %w", err))
			}
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown health server: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
