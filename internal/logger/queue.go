package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// Queue sizing defaults. A full queue drops the record instead of blocking
// the caller, so depth trades memory for burst tolerance.
const (
	defaultQueueDepth = 2048
	defaultLogWorkers = 2
)

// QueueHandler decouples log emission from I/O: records are handed to
// background workers through a bounded queue so request paths never stall
// on a slow sink. Records arriving while the queue is full are counted
// and discarded.
type QueueHandler struct {
	inner slog.Handler
	core  *logQueue
}

// logQueue is shared by every WithAttrs/WithGroup derivative of a handler
// so all variants drain through the same workers and close together.
type logQueue struct {
	queue   chan delivery
	workers sync.WaitGroup
	dropped atomic.Int64
}

// delivery pairs a record with the handler variant that enqueued it, so
// attributes added via WithAttrs survive the hop to the worker.
type delivery struct {
	h   slog.Handler
	rec slog.Record
}

// NewQueueHandler starts background delivery in front of inner.
// Non-positive depth or workers fall back to the package defaults.
func NewQueueHandler(inner slog.Handler, depth, workers int) *QueueHandler {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if workers <= 0 {
		workers = defaultLogWorkers
	}

	core := &logQueue{queue: make(chan delivery, depth)}
	for range workers {
		core.workers.Add(1)
		go func() {
			defer core.workers.Done()
			for d := range core.queue {
				_ = d.h.Handle(context.Background(), d.rec)
			}
		}()
	}
	return &QueueHandler{inner: inner, core: core}
}

// Enabled delegates to the wrapped handler.
func (h *QueueHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, dropping it when the queue is full.
func (h *QueueHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.queue <- delivery{h: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler sharing this handler's queue and workers.
func (h *QueueHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &QueueHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup derives a handler sharing this handler's queue and workers.
func (h *QueueHandler) WithGroup(name string) slog.Handler {
	return &QueueHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// Dropped reports how many records were discarded on a full queue.
func (h *QueueHandler) Dropped() int64 {
	return h.core.dropped.Load()
}

// Close stops intake and waits for the workers to drain the queue.
// Records handed to any derivative of this handler are flushed too.
func (h *QueueHandler) Close() {
	close(h.core.queue)
	h.core.workers.Wait()
}
