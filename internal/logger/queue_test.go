package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// sinkHandler collects records for assertions, optionally throttled to
// force queue pressure.
type sinkHandler struct {
	mu       sync.Mutex
	messages []string
	delay    time.Duration
}

func (h *sinkHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *sinkHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.messages = append(h.messages, rec.Message)
	h.mu.Unlock()
	return nil
}

func (h *sinkHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *sinkHandler) WithGroup(string) slog.Handler      { return h }

func (h *sinkHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func record(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestQueueHandler_DeliversThroughWorkers(t *testing.T) {
	sink := &sinkHandler{}
	q := NewQueueHandler(sink, 64, 1)

	if err := q.Handle(context.Background(), record("hello")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	q.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
	if q.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", q.Dropped())
	}
}

func TestQueueHandler_ConcurrentProducers(t *testing.T) {
	const producers = 50
	const perProducer = 100

	sink := &sinkHandler{}
	q := NewQueueHandler(sink, producers*perProducer, 4)

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				_ = q.Handle(context.Background(), record("burst"))
			}
		}()
	}
	wg.Wait()
	q.Close()

	if got := sink.count(); got != producers*perProducer {
		t.Fatalf("delivered = %d, want %d", got, producers*perProducer)
	}
}

func TestQueueHandler_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	sink := &sinkHandler{delay: 10 * time.Millisecond}
	q := NewQueueHandler(sink, 1, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 50 {
			_ = q.Handle(context.Background(), record("flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on a full queue")
	}
	q.Close()

	if q.Dropped() == 0 {
		t.Error("expected drops under queue pressure, got none")
	}
}

func TestQueueHandler_CloseFlushesBacklog(t *testing.T) {
	const total = 200

	sink := &sinkHandler{}
	q := NewQueueHandler(sink, total, 2)

	for range total {
		_ = q.Handle(context.Background(), record("flush"))
	}
	q.Close()

	if got := sink.count(); got != total {
		t.Fatalf("delivered after close = %d, want %d", got, total)
	}
}

func TestQueueHandler_DerivedHandlerSharesQueue(t *testing.T) {
	sink := &sinkHandler{}
	q := NewQueueHandler(sink, 64, 1)

	derived := q.WithAttrs([]slog.Attr{slog.String("request_id", "r-1")})
	_ = derived.Handle(context.Background(), record("derived"))
	q.Close()

	// closing the root handler drains records enqueued via derivatives
	if got := sink.count(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
}
