package connection

import (
	"errors"
	"log/slog"
	"time"

	"github.com/impactflow/notify-client/internal/backoff"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrConnectionClosed = errors.New("connection closed by peer")
	ErrManagerClosed    = errors.New("manager disconnected")
)

// ServerError is an error frame sent by the notification service.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the socket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the manager's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Socket URL (e.g., wss://api.example.com/ws/notifications?userId=u1)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often to ping the server (0 = never)
	PingTimeout      time.Duration // Max time without pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      75 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	// APIBaseURL is the HTTP API base the socket endpoint is derived from.
	// Empty means read NOTIFY_API_URL at each attempt, then the development default.
	APIBaseURL string

	Backoff backoff.Policy
	Client  ClientConfig // URL is filled in per attempt
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Backoff: backoff.DefaultPolicy(),
		Client:  DefaultClientConfig(),
	}
}

// ManagerStats is a point-in-time view of a manager.
type ManagerStats struct {
	Identity   string `json:"identity"`
	State      string `json:"state"`
	Connected  bool   `json:"connected"`
	Attempts   int    `json:"attempts"`
	Generation uint64 `json:"generation"`
}

// ClientFactory builds the client for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// Clock schedules reconnect timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Observer receives lifecycle signals, typically for metrics. Calls are made
// while the manager holds its lock and must not call back into it.
type Observer interface {
	StateChanged(from, to State)
	ReconnectScheduled(attempt int, delay time.Duration)
	ReconnectsExhausted()
	FrameReceived(kind string)
	FrameRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State)             {}
func (nopObserver) ReconnectScheduled(int, time.Duration) {}
func (nopObserver) ReconnectsExhausted()                  {}
func (nopObserver) FrameReceived(string)                  {}
func (nopObserver) FrameRejected(string)                  {}
