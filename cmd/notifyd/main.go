// notifyd follows one user's notification stream and fans it out to the
// configured sinks.
// Usage: go run ./cmd/notifyd --config configs/notifyd.example.yaml
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

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/impactflow/notify-client/internal/admin"
	"github.com/impactflow/notify-client/internal/archive"
	"github.com/impactflow/notify-client/internal/config"
	"github.com/impactflow/notify-client/internal/connection"
	"github.com/impactflow/notify-client/internal/database"
	"github.com/impactflow/notify-client/internal/eventbus"
	"github.com/impactflow/notify-client/internal/metrics"
	"github.com/impactflow/notify-client/internal/relay"
	"github.com/impactflow/notify-client/internal/session"
	"github.com/impactflow/notify-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/notifyd.example.yaml", "path to config file")
	flag.Parse()

	// Bootstrap logger until the config says otherwise
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting notifyd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"user_id", cfg.Session.UserID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("notifyd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("notifyd stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Session
	sessions := session.NewRegistry(session.NewFactory(
		cfg.ManagerConfig(),
		connection.WithLogger(logger),
		connection.WithObserver(collector),
	), logger)
	defer sessions.Disconnect()

	mgr, err := sessions.Get(cfg.Session.UserID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	logEvents(mgr, logger)

	adminOpts := []admin.Option{
		admin.WithLogger(logger),
		admin.WithMetrics(cfg.Admin.MetricsPath, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
	}

	// Archive sink
	var writer *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive database: %w", err)
		}
		defer pool.Close()

		store := archive.NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		writer = archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, store, collector, logger.With("component", "archive"))
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start archive writer: %w", err)
		}
		writer.Attach(mgr)
		adminOpts = append(adminOpts, admin.WithDependency("archive", pool))
	}

	// Relay sink
	var nc *nats.Conn
	if cfg.Relay.Enabled {
		nc, err = relay.Dial(cfg.Relay.URL, "notifyd-"+cfg.Session.UserID, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		relay.New(nc, cfg.Relay.SubjectPrefix, collector, logger.With("component", "relay")).Attach(mgr)
	}

	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           admin.NewRouter(sessions, adminOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting admin server", "port", cfg.Admin.Port)
		if err := adminServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return adminServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		// A failed first handshake is retried in the background
		if err := mgr.Connect(gctx); err != nil && gctx.Err() == nil {
			logger.Warn("initial connect failed, retrying in background", "error", err)
		}
		return nil
	})

	logger.Info("notifyd running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Admin.Port),
	)

	err = g.Wait()

	logger.Info("shutting down...")
	sessions.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if writer != nil {
		writer.Stop(shutdownCtx)
		stats := writer.Stats()
		logger.Info("archive writer summary",
			"received", stats.Received,
			"inserted", stats.Inserted,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
		)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", "error", err)
		}
	}

	return err
}

// logEvents logs every event the session emits.
func logEvents(m *connection.Manager, logger *slog.Logger) {
	m.On(eventbus.Connected, func(ev eventbus.Event) {
		logger.Info("session connected", "message", ev.Message)
	})
	m.On(eventbus.Notification, func(ev eventbus.Event) {
		logger.Info("notification", "payload", string(ev.Payload), "timestamp", ev.Timestamp)
	})
	m.On(eventbus.Error, func(ev eventbus.Event) {
		logger.Warn("session error", "message", ev.Message)
	})
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
