package connection

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/impactflow/notify-client/internal/protocol"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Delays returns every delay ever scheduled, in scheduling order.
func (c *fakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

// Pending returns timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeClient is a scripted Client.
type fakeClient struct {
	cfg        ClientConfig
	connectErr error
	gate       chan struct{} // when set, Connect waits for it to close

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	mu        sync.Mutex
	connected bool
	closed    bool
	connects  int
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()

	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.connectErr != nil {
		return c.connectErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrAlreadyClosed
	}
	c.connected = true
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	close(c.done)
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *fakeClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *fakeClient) Errors() <-chan error                { return c.errors }
func (c *fakeClient) Done() <-chan struct{}               { return c.done }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// deliver pushes a raw frame as if read from the socket.
func (c *fakeClient) deliver(data string) {
	c.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

// drop simulates the peer closing or the socket failing.
func (c *fakeClient) drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.errors <- err
}

// fakeTransport builds fakeClients. Connect results follow script, then succeed.
type fakeTransport struct {
	mu      sync.Mutex
	clients []*fakeClient
	script  []error
	gate    chan struct{}
}

func (tr *fakeTransport) factory(cfg ClientConfig, logger *slog.Logger) Client {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	c := &fakeClient{
		cfg:      cfg,
		gate:     tr.gate,
		messages: make(chan TimestampedMessage, 16),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	if len(tr.script) > 0 {
		c.connectErr = tr.script[0]
		tr.script = tr.script[1:]
	}
	tr.clients = append(tr.clients, c)
	return c
}

func (tr *fakeTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.clients)
}

func (tr *fakeTransport) client(i int) *fakeClient {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.clients[i]
}

func (tr *fakeTransport) last() *fakeClient {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.clients[len(tr.clients)-1]
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	scheduled   []int
	exhausted   int
	received    map[string]int
	rejected    map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		received: make(map[string]int),
		rejected: make(map[string]int),
	}
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from.String()+"->"+to.String())
}

func (o *recordingObserver) ReconnectScheduled(attempt int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, attempt)
}

func (o *recordingObserver) ReconnectsExhausted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exhausted++
}

func (o *recordingObserver) FrameReceived(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received[kind]++
}

func (o *recordingObserver) FrameRejected(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected[reason]++
}

func (o *recordingObserver) rejectedCount(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rejected[reason]
}

func (o *recordingObserver) exhaustedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exhausted
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func mustEncode(t *testing.T, f protocol.Frame) string {
	t.Helper()
	data, err := protocol.Encode(f)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return string(data)
}
