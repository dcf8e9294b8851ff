// Package archive streams successfully ingested measurements to the
// long-horizon archive in batches. Archiving is best effort: failures
// are logged and never affect the ingest path.
package archive

import (
	"context"
	"log"
	"time"

	"cenems-telemetry/internal/domain"
)

// Sink receives measurement batches.
type Sink interface {
	InsertBatch(ctx context.Context, measurements []*domain.NormalizedMeasurement) error
}

// Config holds writer tuning knobs.
type Config struct {
	// BatchSize flushes the buffer when it reaches this many rows.
	BatchSize int
	// FlushInterval flushes whatever is buffered on this cadence.
	FlushInterval time.Duration
	// QueueSize bounds the intake channel. Enqueue drops when full.
	QueueSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		QueueSize:     4096,
	}
}

// Writer buffers measurements and flushes them to the sink.
type Writer struct {
	sink    Sink
	cfg     Config
	intake  chan *domain.NormalizedMeasurement
	logger  *log.Logger
	dropped func()
	flushed func(n int)
}

// Option configures optional writer hooks.
type Option func(*Writer)

// WithDropHook registers a callback invoked when a row is dropped
// because the queue is full.
func WithDropHook(fn func()) Option {
	return func(w *Writer) { w.dropped = fn }
}

// WithFlushHook registers a callback invoked after each successful
// flush with the batch size.
func WithFlushHook(fn func(n int)) Option {
	return func(w *Writer) { w.flushed = fn }
}

// NewWriter creates a writer over the sink. Zero config fields fall
// back to defaults.
func NewWriter(sink Sink, cfg Config, logger *log.Logger, opts ...Option) *Writer {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[archive] ", log.LstdFlags)
	}

	w := &Writer{
		sink:   sink,
		cfg:    cfg,
		intake: make(chan *domain.NormalizedMeasurement, cfg.QueueSize),
		logger: logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue hands a measurement to the writer. Never blocks: when the
// queue is full the row is dropped and the drop hook fires.
func (w *Writer) Enqueue(m *domain.NormalizedMeasurement) {
	select {
	case w.intake <- m:
	default:
		if w.dropped != nil {
			w.dropped()
		}
		w.logger.Printf("queue full, dropping measurement %s", m.ID)
	}
}

// Run consumes the intake channel until ctx is cancelled, flushing on
// batch size or interval, whichever comes first. A final flush drains
// the buffer on shutdown.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]*domain.NormalizedMeasurement, 0, w.cfg.BatchSize)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		// Detached context so shutdown still flushes
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := w.sink.InsertBatch(flushCtx, buf); err != nil {
			w.logger.Printf("flush %d rows failed: %v", len(buf), err)
		} else if w.flushed != nil {
			w.flushed(len(buf))
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case m := <-w.intake:
			buf = append(buf, m)
			if len(buf) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
