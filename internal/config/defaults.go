package config

import (
	"time"

	"github.com/impactflow/notify-client/internal/backoff"
	"github.com/impactflow/notify-client/internal/connection"
)

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultReconnectBaseDelay = backoff.DefaultBase
	DefaultReconnectMaxDelay  = backoff.DefaultCap
	DefaultMaxAttempts        = backoff.DefaultMaxAttempts
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 75 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 256
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 100
	DefaultFlushInterval      = 1 * time.Second
	DefaultSubjectPrefix      = "notifications"
	DefaultAdminPort          = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// applyDefaults fills unset optional fields.
func (c *Config) applyDefaults() {
	// Connection defaults
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Archive defaults
	applyDBDefaults(&c.Archive.Database)
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}

	// Relay defaults
	if c.Relay.SubjectPrefix == "" {
		c.Relay.SubjectPrefix = DefaultSubjectPrefix
	}

	// Admin defaults
	if c.Admin.Port == 0 {
		c.Admin.Port = DefaultAdminPort
	}
	if c.Admin.MetricsPath == "" {
		c.Admin.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

// ManagerConfig converts the connection settings for connection.NewManager.
func (c *Config) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		APIBaseURL: c.API.BaseURL,
		Backoff: backoff.Policy{
			Base:        c.Connection.ReconnectBaseDelay,
			Cap:         c.Connection.ReconnectMaxDelay,
			MaxAttempts: c.Connection.MaxAttempts,
		},
		Client: connection.ClientConfig{
			HandshakeTimeout: c.Connection.HandshakeTimeout,
			PingInterval:     c.Connection.PingInterval,
			PingTimeout:      c.Connection.PingTimeout,
			WriteTimeout:     c.Connection.WriteTimeout,
			BufferSize:       c.Connection.BufferSize,
		},
	}
}
