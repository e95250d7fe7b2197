// Package admin serves health and metrics over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/impactflow/notify-client/internal/connection"
	"github.com/impactflow/notify-client/internal/version"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusIdle      = "idle"
	StatusUnhealthy = "unhealthy"
)

// Sessions exposes the live session. *session.Registry satisfies it.
type Sessions interface {
	Current() (*connection.Manager, string)
}

// Pinger checks a dependency. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the /health response body.
type Health struct {
	Status     string         `json:"status"`
	Identity   string         `json:"identity,omitempty"`
	State      string         `json:"state,omitempty"`
	Connected  bool           `json:"connected"`
	Attempts   int            `json:"attempts"`
	Version    string         `json:"version"`
	Commit     string         `json:"commit"`
	Components map[string]any `json:"components,omitempty"`
}

type handler struct {
	sessions Sessions
	pingers  map[string]Pinger
	logger   *slog.Logger
}

// Option configures the router.
type Option func(*routerConfig)

type routerConfig struct {
	logger      *slog.Logger
	pingers     map[string]Pinger
	metricsPath string
	metrics     http.Handler
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *routerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDependency adds a named dependency checked by /health. A failing ping
// marks the service unhealthy.
func WithDependency(name string, p Pinger) Option {
	return func(c *routerConfig) {
		c.pingers[name] = p
	}
}

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(c *routerConfig) {
		c.metricsPath = path
		c.metrics = h
	}
}

// NewRouter builds the admin routes.
func NewRouter(sessions Sessions, opts ...Option) http.Handler {
	cfg := &routerConfig{
		logger:  slog.Default(),
		pingers: make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	h := &handler{
		sessions: sessions,
		pingers:  cfg.pingers,
		logger:   cfg.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	if cfg.metrics != nil {
		r.Handle(cfg.metricsPath, cfg.metrics)
	}

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := Health{
		Status:  StatusIdle,
		Version: version.Version,
		Commit:  version.Commit,
	}

	if m, identity := h.sessions.Current(); m != nil {
		stats := m.Stats()
		resp.Identity = identity
		resp.State = stats.State
		resp.Connected = stats.Connected
		resp.Attempts = stats.Attempts
		if stats.Connected {
			resp.Status = StatusHealthy
		} else {
			resp.Status = StatusDegraded
		}
	}

	if len(h.pingers) > 0 {
		resp.Components = make(map[string]any, len(h.pingers))
		for name, p := range h.pingers {
			if err := p.Ping(ctx); err != nil {
				h.logger.Warn("health check failed", "component", name, "error", err)
				resp.Status = StatusUnhealthy
				resp.Components[name] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
				continue
			}
			resp.Components[name] = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
