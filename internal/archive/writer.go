package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/impactflow/notify-client/internal/eventbus"
	"github.com/impactflow/notify-client/internal/model"
)

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// Source is a session that emits notification events.
type Source interface {
	Identity() string
	On(name eventbus.Name, h eventbus.Handler) eventbus.SubscriptionID
	Off(name eventbus.Name, id eventbus.SubscriptionID)
}

// Recorder receives flush outcomes. *metrics.Collector satisfies it.
type Recorder interface {
	ArchiveFlushed(n int, err error)
}

// Stats holds writer counters.
type Stats struct {
	Received  int64
	Inserted  int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Pending   int
}

// Writer batches notifications into a Store.
type Writer struct {
	cfg      Config
	store    Store
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	input *queue[model.Notification]

	mu    sync.Mutex
	stats Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a Writer. recorder may be nil.
func NewWriter(cfg Config, store Store, recorder Recorder, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &Writer{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		input:    newQueue[model.Notification](cfg.BatchSize),
	}
}

// Attach subscribes the writer to src's notification events. The returned func
// removes the subscription.
func (w *Writer) Attach(src Source) (detach func()) {
	identity := src.Identity()
	id := src.On(eventbus.Notification, func(ev eventbus.Event) {
		w.Add(model.NewNotification(identity, ev.Payload, ev.Timestamp, w.now()))
	})
	return func() { src.Off(eventbus.Notification, id) }
}

// Add enqueues one notification. It never blocks.
func (w *Writer) Add(n model.Notification) {
	if !w.input.push(n) {
		w.logger.Warn("archive closed, dropping notification", "id", n.ID)
		return
	}
	w.mu.Lock()
	w.stats.Received++
	w.mu.Unlock()
}

// Start begins batching in the background.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop flushes what is queued and shuts the writer down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.close()
	if w.cancel != nil {
		w.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Final flush
	for w.input.len() > 0 {
		if !w.flush(ctx) {
			break
		}
	}

	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = w.input.len()
	return s
}

// consumeLoop flushes as soon as a full batch is queued.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	// Partial batches are left for flushLoop; Stop flushes what remains
	for w.input.wait(w.cfg.BatchSize) {
		if w.ctx.Err() != nil {
			return
		}
		w.flush(w.ctx)
	}
}

// flushLoop periodically flushes partial batches.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes up to one batch. It reports false when the store failed.
func (w *Writer) flush(ctx context.Context) bool {
	batch := w.input.drain(w.cfg.BatchSize)
	if len(batch) == 0 {
		return true
	}

	start := time.Now()

	// Use a live context for the final flush after cancellation
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	inserted, err := w.store.Insert(ctx, batch)
	if w.recorder != nil {
		w.recorder.ArchiveFlushed(len(batch), err)
	}
	if err != nil {
		w.logger.Error("archive insert failed", "error", err, "count", len(batch))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return false
	}

	w.mu.Lock()
	w.stats.Inserted += int64(inserted)
	w.stats.Conflicts += int64(len(batch) - inserted)
	w.stats.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed notifications",
		"count", len(batch),
		"conflicts", len(batch)-inserted,
		"duration", time.Since(start),
	)
	return true
}
