package config

import "time"

// Config is the root configuration for a notification client.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Relay      RelayConfig      `yaml:"relay"`
	Admin      AdminConfig      `yaml:"admin"`
	Log        LogConfig        `yaml:"log"`
}

// SessionConfig identifies whose notifications to follow.
type SessionConfig struct {
	UserID string `yaml:"user_id"`
}

// APIConfig holds the HTTP API base. The socket endpoint is derived from it;
// when empty, NOTIFY_API_URL and then the development default apply.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ConnectionConfig holds socket and reconnect settings.
type ConnectionConfig struct {
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ArchiveConfig holds the notification archive sink.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelayConfig holds the NATS relay sink.
type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AdminConfig holds the health and metrics server.
type AdminConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
