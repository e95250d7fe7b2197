package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Session.UserID) == "" {
		return errors.New("session.user_id is required")
	}

	if err := c.Connection.validate("connection"); err != nil {
		return err
	}

	if c.Archive.Enabled {
		if err := c.Archive.Database.validate("archive.database"); err != nil {
			return err
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.FlushInterval <= 0 {
			return errors.New("archive.flush_interval must be > 0")
		}
	}

	if c.Relay.Enabled {
		if c.Relay.URL == "" {
			return errors.New("relay.url is required when relay is enabled")
		}
		if strings.ContainsAny(c.Relay.SubjectPrefix, " *>") {
			return fmt.Errorf("relay.subject_prefix %q must not contain spaces or wildcards", c.Relay.SubjectPrefix)
		}
	}

	if c.Admin.Port < 1 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be between 1 and 65535, got %d", c.Admin.Port)
	}
	if !strings.HasPrefix(c.Admin.MetricsPath, "/") {
		return fmt.Errorf("admin.metrics_path must start with /, got %q", c.Admin.MetricsPath)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (cc *ConnectionConfig) validate(prefix string) error {
	if cc.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s.handshake_timeout must be > 0", prefix)
	}
	if cc.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("%s.reconnect_base_delay must be > 0", prefix)
	}
	if cc.ReconnectMaxDelay < cc.ReconnectBaseDelay {
		return fmt.Errorf("%s.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			prefix, cc.ReconnectMaxDelay, cc.ReconnectBaseDelay)
	}
	if cc.MaxAttempts < 0 {
		return fmt.Errorf("%s.max_attempts must be >= 0", prefix)
	}
	if cc.PingInterval > 0 && cc.PingTimeout <= cc.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) must exceed ping_interval (%s)",
			prefix, cc.PingTimeout, cc.PingInterval)
	}
	if cc.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
