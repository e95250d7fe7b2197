package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/impactflow/notify-client/internal/connection"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestCollector_StateChanged(t *testing.T) {
	c := newTestCollector(t)

	c.StateChanged(connection.StateIdle, connection.StateConnecting)
	c.StateChanged(connection.StateConnecting, connection.StateOpen)

	if got := testutil.ToFloat64(c.state.WithLabelValues("open")); got != 1 {
		t.Errorf("state{open} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.state.WithLabelValues("connecting")); got != 0 {
		t.Errorf("state{connecting} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.stateTransitions.WithLabelValues("connecting", "open")); got != 1 {
		t.Errorf("transitions{connecting,open} = %v, want 1", got)
	}
}

func TestCollector_Reconnects(t *testing.T) {
	c := newTestCollector(t)

	c.ReconnectScheduled(1, time.Second)
	c.ReconnectScheduled(2, 2*time.Second)
	c.ReconnectsExhausted()

	if got := testutil.ToFloat64(c.reconnects); got != 2 {
		t.Errorf("reconnects = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.reconnectsExhausted); got != 1 {
		t.Errorf("reconnects exhausted = %v, want 1", got)
	}
}

func TestCollector_Frames(t *testing.T) {
	c := newTestCollector(t)

	c.FrameReceived("notification")
	c.FrameReceived("notification")
	c.FrameReceived("connected")
	c.FrameRejected("malformed")

	if got := testutil.ToFloat64(c.framesReceived.WithLabelValues("notification")); got != 2 {
		t.Errorf("frames{notification} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.framesRejected.WithLabelValues("malformed")); got != 1 {
		t.Errorf("rejected{malformed} = %v, want 1", got)
	}
}

func TestCollector_ArchiveAndRelay(t *testing.T) {
	c := newTestCollector(t)

	c.ArchiveFlushed(10, nil)
	c.ArchiveFlushed(5, errors.New("db down"))
	c.RelayPublished(nil)
	c.RelayPublished(errors.New("no responders"))

	if got := testutil.ToFloat64(c.archiveWritten); got != 10 {
		t.Errorf("archive written = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.archiveErrors); got != 1 {
		t.Errorf("archive errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.relayPublished); got != 1 {
		t.Errorf("relay published = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.relayErrors); got != 1 {
		t.Errorf("relay errors = %v, want 1", got)
	}
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("expected error registering twice on one registry")
	}
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector

	// Must not panic
	c.StateChanged(connection.StateIdle, connection.StateOpen)
	c.ReconnectScheduled(1, time.Second)
	c.ReconnectsExhausted()
	c.FrameReceived("connected")
	c.FrameRejected("malformed")
	c.ArchiveFlushed(1, nil)
	c.RelayPublished(nil)
}
