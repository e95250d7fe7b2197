// notifytail connects to the notification socket and prints notifications to the
// console.
// Usage: go run ./cmd/notifytail --user u1 [--api http://localhost:3000] [--verbose]
//
// When --api is empty, NOTIFY_API_URL is used, then the local development server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/impactflow/notify-client/internal/connection"
	"github.com/impactflow/notify-client/internal/eventbus"
	"github.com/impactflow/notify-client/internal/model"
	"github.com/impactflow/notify-client/internal/session"
)

func main() {
	apiBase := flag.String("api", "", "HTTP API base URL")
	userID := flag.String("user", "", "user id to follow")
	verbose := flag.Bool("verbose", false, "print full notification JSON")
	flag.Parse()

	// Setup logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *userID == "" {
		logger.Error("--user is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultManagerConfig()
	cfg.APIBaseURL = *apiBase

	sessions := session.NewRegistry(session.NewFactory(cfg, connection.WithLogger(logger)), logger)
	defer sessions.Disconnect()

	mgr, err := sessions.Get(*userID)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	mgr.On(eventbus.Connected, func(ev eventbus.Event) {
		fmt.Printf("[CONNECTED] %s\n", ev.Message)
	})
	mgr.On(eventbus.Error, func(ev eventbus.Event) {
		fmt.Printf("[ERROR] %s\n", ev.Message)
	})
	mgr.On(eventbus.Notification, func(ev eventbus.Event) {
		printNotification(*userID, ev, *verbose)
	})

	if err := mgr.Connect(ctx); err != nil {
		logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	logger.Info("tailing notifications - press Ctrl+C to stop", "user", *userID)

	// Stats printer
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return
		case <-ticker.C:
			stats := mgr.Stats()
			logger.Debug("stats",
				"state", stats.State,
				"connected", stats.Connected,
				"attempts", stats.Attempts,
				"generation", stats.Generation,
			)
		}
	}
}

func printNotification(identity string, ev eventbus.Event, verbose bool) {
	if verbose {
		var buf bytes.Buffer
		if err := json.Indent(&buf, ev.Payload, "", "  "); err != nil {
			fmt.Printf("[NOTIFICATION] %s\n", ev.Payload)
			return
		}
		fmt.Printf("[NOTIFICATION] %s\n", buf.String())
		return
	}

	n := model.NewNotification(identity, ev.Payload, ev.Timestamp, time.Now())
	id := n.SourceID
	if id == "" {
		id = "-"
	}
	fmt.Printf("[NOTIFICATION] id=%s title=%q\n", id, n.Title)
}
