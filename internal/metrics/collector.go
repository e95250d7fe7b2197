package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/impactflow/notify-client/internal/connection"
)

const namespace = "notify"

// Collector records client metrics. It satisfies connection.Observer. A nil
// *Collector is valid and records nothing.
type Collector struct {
	state               *prometheus.GaugeVec
	stateTransitions    *prometheus.CounterVec
	reconnects          prometheus.Counter
	reconnectDelay      prometheus.Histogram
	reconnectsExhausted prometheus.Counter
	framesReceived      *prometheus.CounterVec
	framesRejected      *prometheus.CounterVec

	archiveBatchSize prometheus.Histogram
	archiveWritten   prometheus.Counter
	archiveErrors    prometheus.Counter

	relayPublished prometheus.Counter
	relayErrors    prometheus.Counter
}

var _ connection.Observer = (*Collector)(nil)

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),

		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled",
		}),

		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_delay_seconds",
			Help:      "Delay before each scheduled reconnect",
			Buckets:   []float64{1, 2, 4, 8, 16, 30},
		}),

		reconnectsExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_exhausted_total",
			Help:      "Times the reconnect budget ran out",
		}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "frames_received_total",
			Help:      "Decoded frames by type",
		}, []string{"type"}),

		framesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "frames_rejected_total",
			Help:      "Frames dropped by the decoder",
		}, []string{"reason"}), // reason: malformed, unknown_type, other

		archiveBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "batch_size",
			Help:      "Notifications per archive flush",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		archiveWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "written_total",
			Help:      "Notifications written to the archive",
		}),

		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Failed archive flushes",
		}),

		relayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Notifications published to NATS",
		}),

		relayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Failed NATS publishes",
		}),
	}

	collectors := []prometheus.Collector{
		c.state,
		c.stateTransitions,
		c.reconnects,
		c.reconnectDelay,
		c.reconnectsExhausted,
		c.framesReceived,
		c.framesRejected,
		c.archiveBatchSize,
		c.archiveWritten,
		c.archiveErrors,
		c.relayPublished,
		c.relayErrors,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// StateChanged implements connection.Observer.
func (c *Collector) StateChanged(from, to connection.State) {
	if c == nil {
		return
	}
	c.state.WithLabelValues(from.String()).Set(0)
	c.state.WithLabelValues(to.String()).Set(1)
	c.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// ReconnectScheduled implements connection.Observer.
func (c *Collector) ReconnectScheduled(attempt int, delay time.Duration) {
	if c == nil {
		return
	}
	c.reconnects.Inc()
	c.reconnectDelay.Observe(delay.Seconds())
}

// ReconnectsExhausted implements connection.Observer.
func (c *Collector) ReconnectsExhausted() {
	if c == nil {
		return
	}
	c.reconnectsExhausted.Inc()
}

// FrameReceived implements connection.Observer.
func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
}

// FrameRejected implements connection.Observer.
func (c *Collector) FrameRejected(reason string) {
	if c == nil {
		return
	}
	c.framesRejected.WithLabelValues(reason).Inc()
}

// ArchiveFlushed records one archive flush of n notifications.
func (c *Collector) ArchiveFlushed(n int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.archiveErrors.Inc()
		return
	}
	c.archiveBatchSize.Observe(float64(n))
	c.archiveWritten.Add(float64(n))
}

// RelayPublished records one relay publish.
func (c *Collector) RelayPublished(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.relayErrors.Inc()
		return
	}
	c.relayPublished.Inc()
}
