// Package relay republishes received notifications to NATS.
//
// Each payload is published unchanged to "<prefix>.<identity>", with the
// identity and server timestamp carried in message headers. Publish failures are
// logged and counted; they never reach the connection.
package relay

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/impactflow/notify-client/internal/eventbus"
)

// Message headers set on every relayed notification.
const (
	HeaderIdentity  = "Notify-Identity"
	HeaderTimestamp = "Notify-Timestamp"
)

// Publisher sends one NATS message. *nats.Conn satisfies it.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Source is a session that emits notification events.
type Source interface {
	Identity() string
	On(name eventbus.Name, h eventbus.Handler) eventbus.SubscriptionID
	Off(name eventbus.Name, id eventbus.SubscriptionID)
}

// Recorder receives publish outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	RelayPublished(err error)
}

// Relay forwards notification events to NATS.
type Relay struct {
	pub      Publisher
	prefix   string
	recorder Recorder
	logger   *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// New creates a Relay. recorder may be nil.
func New(pub Publisher, prefix string, recorder Recorder, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		pub:      pub,
		prefix:   prefix,
		recorder: recorder,
		logger:   logger,
	}
}

// Subject returns the subject notifications for identity are published on.
// Characters NATS treats as token separators or wildcards are replaced.
func Subject(prefix, identity string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, identity)
	if token == "" {
		token = "_"
	}
	if prefix == "" {
		return token
	}
	return prefix + "." + token
}

// Attach subscribes the relay to src's notification events. The returned func
// removes the subscription.
func (r *Relay) Attach(src Source) (detach func()) {
	identity := src.Identity()
	subject := Subject(r.prefix, identity)

	id := src.On(eventbus.Notification, func(ev eventbus.Event) {
		r.publish(subject, identity, ev)
	})
	r.logger.Info("relay attached", "subject", subject)

	return func() { src.Off(eventbus.Notification, id) }
}

func (r *Relay) publish(subject, identity string, ev eventbus.Event) {
	msg := nats.NewMsg(subject)
	msg.Data = ev.Payload
	msg.Header.Set(HeaderIdentity, identity)
	if !ev.Timestamp.IsZero() {
		msg.Header.Set(HeaderTimestamp, ev.Timestamp.UTC().Format(time.RFC3339Nano))
	}

	err := r.pub.PublishMsg(msg)
	if r.recorder != nil {
		r.recorder.RelayPublished(err)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("relay publish failed", "subject", subject, "error", err)
		return
	}
	r.published.Add(1)
}

// Stats returns publish counters.
func (r *Relay) Stats() (published, failed int64) {
	return r.published.Load(), r.failed.Load()
}

// Dial connects to NATS with reconnects enabled and connection events logged.
func Dial(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "relay")

	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats error", "error", err)
		}),
	)
}
