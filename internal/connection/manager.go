package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/impactflow/notify-client/internal/endpoint"
	"github.com/impactflow/notify-client/internal/eventbus"
	"github.com/impactflow/notify-client/internal/protocol"
)

// Manager maintains the notification socket for one session identity.
//
// State machine:
//
//	Idle ──Connect──▶ Connecting ──handshake ok──▶ Open
//	                      │                          │
//	               handshake failed           peer close / error
//	                      ▼                          ▼
//	                   Closed ◀──────────────────────┘
//	                      │
//	             reconnect timer fires ──▶ Connecting
//
// Disconnect moves any state to Closing and then Closed, and is terminal for
// the instance.
type Manager struct {
	identity  string
	cfg       ManagerConfig
	logger    *slog.Logger
	bus       *eventbus.Bus
	clock     Clock
	newClient ClientFactory
	observer  Observer

	mu         sync.Mutex
	state      State
	client     Client // current socket; nil when none is live
	gen        uint64 // socket generation, bumped per attempt and on Disconnect
	attempts   int    // unexpected closes since the last successful open
	timer      Timer  // pending reconnect, at most one
	timerGen   uint64
	pending    *pendingConnect // in-flight handshake shared by concurrent Connect calls
	cancelDial context.CancelFunc
	closed     bool
}

// pendingConnect is the single in-flight handshake slot.
type pendingConnect struct {
	done chan struct{}
	err  error
}

func (p *pendingConnect) finish(err error) {
	p.err = err
	close(p.done)
}

func (p *pendingConnect) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithClientFactory replaces the gorilla/websocket transport.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		if f != nil {
			m.newClient = f
		}
	}
}

// WithObserver attaches a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates an idle manager for identity.
func NewManager(identity string, cfg ManagerConfig, opts ...Option) *Manager {
	m := &Manager{
		identity:  identity,
		cfg:       cfg,
		logger:    slog.Default(),
		clock:     systemClock{},
		newClient: NewClient,
		observer:  nopObserver{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("identity", identity)
	m.bus = eventbus.New(m.logger)

	return m
}

// Identity returns the session identity the manager was built for.
func (m *Manager) Identity() string {
	return m.identity
}

// Connect opens the socket, or joins the handshake already in flight. It returns
// nil immediately when the connection is open. Every caller sharing an attempt
// sees the same result; a failed attempt still schedules a reconnect.
//
// A Connect while a reconnect is scheduled cancels the timer and dials now with
// a fresh attempt budget.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}

	p := m.pending
	if p == nil {
		m.stopTimerLocked()
		m.attempts = 0
		p = m.startAttemptLocked()
	}
	m.mu.Unlock()

	return p.wait(ctx)
}

// Disconnect cancels any scheduled reconnect, closes the socket and drops every
// subscriber. Events raised after it returns reach no handler; a handler already
// being entered by a concurrent emission may still run once. Safe to call
// repeatedly and from inside a handler.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.gen++
	m.setStateLocked(StateClosing)
	m.stopTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	client := m.client
	m.client = nil
	p := m.pending
	m.pending = nil
	m.bus.Close()
	m.mu.Unlock()

	if p != nil {
		p.finish(ErrManagerClosed)
	}
	if client != nil {
		client.Close()
	}

	m.mu.Lock()
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.logger.Info("notification session disconnected")
}

// On subscribes h to an event. Unknown event names are ignored.
func (m *Manager) On(name eventbus.Name, h eventbus.Handler) eventbus.SubscriptionID {
	return m.bus.On(name, h)
}

// Off removes a subscription made with On.
func (m *Manager) Off(name eventbus.Name, id eventbus.SubscriptionID) {
	m.bus.Off(name, id)
}

// IsConnected reports whether the manager is open on a live socket.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen && m.client != nil && m.client.IsConnected()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the unexpected closes since the last successful open.
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Stats returns a snapshot for health reporting.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		Identity:   m.identity,
		State:      m.state.String(),
		Connected:  m.state == StateOpen && m.client != nil && m.client.IsConnected(),
		Attempts:   m.attempts,
		Generation: m.gen,
	}
}

// startAttemptLocked opens a new socket attempt in the background.
func (m *Manager) startAttemptLocked() *pendingConnect {
	m.gen++
	gen := m.gen

	p := &pendingConnect{done: make(chan struct{})}
	m.pending = p
	m.setStateLocked(StateConnecting)

	cfg := m.cfg.Client
	cfg.URL = endpoint.ResolveEnv(m.cfg.APIBaseURL, m.identity)

	// The handshake is shared, so it is not bound to any one caller's context
	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.HandshakeTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.cancelDial = cancel

	client := m.newClient(cfg, m.logger.With("conn_gen", gen))
	m.client = client

	m.logger.Debug("connecting", "url", cfg.URL, "conn_gen", gen)

	go m.dial(ctx, cancel, gen, client, p)

	return p
}

// dial runs the handshake for generation gen.
func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, client Client, p *pendingConnect) {
	defer cancel()

	err := client.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen || m.closed {
		// Superseded by Disconnect, which already resolved p
		m.mu.Unlock()
		client.Close()
		return
	}
	m.pending = nil
	m.cancelDial = nil

	if err != nil {
		m.client = nil
		m.setStateLocked(StateClosed)
		p.finish(err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		client.Close()
		m.logger.Warn("connect failed", "conn_gen", gen, "error", err)
		m.bus.Emit(eventbus.Event{
			Name:    eventbus.Error,
			Message: err.Error(),
			Err:     err,
		})
		return
	}

	m.attempts = 0
	m.setStateLocked(StateOpen)
	p.finish(nil)
	m.mu.Unlock()

	m.logger.Info("notification socket open", "conn_gen", gen)

	go m.readLoop(gen, client)
}

// readLoop consumes one socket until it fails or is closed.
func (m *Manager) readLoop(gen uint64, client Client) {
	for {
		select {
		case msg := <-client.Messages():
			m.handleMessage(gen, msg)

		case err := <-client.Errors():
			// Deliver frames that arrived before the failure
			for {
				select {
				case msg := <-client.Messages():
					m.handleMessage(gen, msg)
					continue
				default:
				}
				break
			}
			m.handleDrop(gen, client, err)
			return

		case <-client.Done():
			return
		}
	}
}

// current reports whether gen is the live socket.
func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && !m.closed
}

// handleMessage decodes one frame and emits the matching event. Malformed frames
// are logged and dropped.
func (m *Manager) handleMessage(gen uint64, msg TimestampedMessage) {
	if !m.current(gen) {
		return
	}

	frame, err := protocol.Decode(msg.Data)
	if err != nil {
		m.logger.Warn("dropping frame", "conn_gen", gen, "error", err, "bytes", len(msg.Data))
		m.mu.Lock()
		m.observer.FrameRejected(rejectReason(err))
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.observer.FrameReceived(string(frame.Kind))
	m.mu.Unlock()

	switch frame.Kind {
	case protocol.KindConnected:
		m.logger.Info("session registered", "message", frame.Message)
		m.bus.Emit(eventbus.Event{
			Name:      eventbus.Connected,
			Message:   frame.Message,
			Timestamp: frame.Timestamp,
		})

	case protocol.KindNotification:
		m.logger.Debug("notification received", "bytes", len(frame.Data))
		m.bus.Emit(eventbus.Event{
			Name:      eventbus.Notification,
			Payload:   frame.Data,
			Timestamp: frame.Timestamp,
		})

	case protocol.KindError:
		m.logger.Warn("server reported error", "message", frame.Message)
		m.bus.Emit(eventbus.Event{
			Name:      eventbus.Error,
			Message:   frame.Message,
			Err:       &ServerError{Message: frame.Message},
			Timestamp: frame.Timestamp,
		})
	}
}

// handleDrop reacts to an unexpected close or socket error.
func (m *Manager) handleDrop(gen uint64, client Client, err error) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.client = nil
	m.setStateLocked(StateClosed)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	client.Close()

	if errors.Is(err, ErrConnectionClosed) {
		m.logger.Warn("notification socket closed", "conn_gen", gen, "reason", err)
		return
	}

	m.logger.Warn("notification socket error", "conn_gen", gen, "error", err)
	m.bus.Emit(eventbus.Event{
		Name:    eventbus.Error,
		Message: err.Error(),
		Err:     err,
	})
}

// scheduleReconnectLocked arms the reconnect timer unless one is already pending
// or the attempt budget is spent.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}

	next := m.attempts + 1
	delay, ok := m.cfg.Backoff.Next(next)
	if !ok {
		m.logger.Error("reconnect attempts exhausted, giving up",
			"attempts", m.attempts,
			"max_attempts", m.cfg.Backoff.MaxAttempts,
		)
		m.observer.ReconnectsExhausted()
		return
	}
	m.attempts = next

	m.timerGen++
	tg := m.timerGen
	m.timer = m.clock.AfterFunc(delay, func() { m.fireReconnect(tg) })

	m.logger.Info("reconnect scheduled", "attempt", next, "delay", delay)
	m.observer.ReconnectScheduled(next, delay)
}

// fireReconnect runs when the timer armed as tg expires.
func (m *Manager) fireReconnect(tg uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.timer == nil || tg != m.timerGen {
		return
	}
	m.timer = nil

	if m.state == StateOpen || m.pending != nil {
		return
	}

	m.logger.Info("reconnecting", "attempt", m.attempts)
	m.startAttemptLocked()
}

func (m *Manager) stopTimerLocked() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
	m.timerGen++
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	from := m.state
	m.state = s
	m.observer.StateChanged(from, s)
}

// rejectReason maps a decode error to a short metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, protocol.ErrMalformedFrame):
		return "malformed"
	default:
		return "other"
	}
}
