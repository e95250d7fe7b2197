// Package session keeps at most one notification manager alive per process.
//
// A Registry is an explicit value rather than package state, so tests and
// multi-tenant hosts can run independent registries side by side.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/impactflow/notify-client/internal/connection"
)

// ErrEmptyIdentity is returned by Get for a blank identity.
var ErrEmptyIdentity = errors.New("session: empty identity")

// Factory builds an idle manager for identity.
type Factory func(identity string) *connection.Manager

// NewFactory returns a Factory that builds managers from cfg and opts.
func NewFactory(cfg connection.ManagerConfig, opts ...connection.Option) Factory {
	return func(identity string) *connection.Manager {
		return connection.NewManager(identity, cfg, opts...)
	}
}

// Registry holds the current manager, tagged with its identity.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	identity string
	current  *connection.Manager
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		factory: factory,
		logger:  logger,
	}
}

// Get returns the manager for identity, creating it on first use. Asking for a
// different identity disconnects the previous manager before the new one is
// built, so two sockets never coexist.
func (r *Registry) Get(identity string) (*connection.Manager, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.identity == identity {
		return r.current, nil
	}

	if r.current != nil {
		r.logger.Info("session identity changed, tearing down previous session",
			"previous", r.identity,
			"identity", identity,
		)
		r.current.Disconnect()
		r.current = nil
		r.identity = ""
	}

	r.current = r.factory(identity)
	r.identity = identity
	r.logger.Debug("session created", "identity", identity)

	return r.current, nil
}

// Current returns the live manager and its identity, or nil when there is none.
func (r *Registry) Current() (*connection.Manager, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.identity
}

// Disconnect tears down the current manager, if any. Safe to call repeatedly.
func (r *Registry) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return
	}
	r.current.Disconnect()
	r.logger.Info("session disconnected", "identity", r.identity)
	r.current = nil
	r.identity = ""
}
