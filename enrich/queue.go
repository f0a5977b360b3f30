package enrich

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ProcessFunc handles one dequeued insight id. Errors are logged and
// discarded by the consumer; they never stop the loop.
type ProcessFunc func(ctx context.Context, id string) error

// Queue is an unbounded in-process FIFO of insight ids with exactly one
// consumer goroutine. Enqueue never blocks and never fails; duplicate ids
// are processed again in full, which is safe because each run recomputes
// its output from the stored source fields.
//
// There is no persistence: ids queued at process exit are lost, and the
// corresponding insights keep empty enrichment fields until reprocessed.
type Queue struct {
	process ProcessFunc
	logger  *slog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	items []string
	stop  bool

	started atomic.Bool
	done    chan struct{}
}

// NewQueue creates a Queue. The consumer does not run until Start.
func NewQueue(process ProcessFunc, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		process: process,
		logger:  logger,
		done:    make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an id. Fire-and-forget: no blocking, no deduplication.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()
	q.cond.Signal()
}

// Start launches the consumer goroutine. Exactly one consumer runs per
// Queue; later calls are no-ops and return false.
func (q *Queue) Start(ctx context.Context) bool {
	if !q.started.CompareAndSwap(false, true) {
		return false
	}
	go q.consume(ctx)
	return true
}

// Stop wakes the consumer and lets it exit after the in-flight item.
// Remaining queued ids are dropped. Blocks until the consumer returns;
// a Queue that was never started stops immediately.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stop = true
	q.mu.Unlock()
	q.cond.Broadcast()
	if q.started.Load() {
		<-q.done
	}
}

// Len reports the number of ids waiting (excluding any in-flight item).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) consume(ctx context.Context) {
	defer close(q.done)
	for {
		id, ok := q.dequeue()
		if !ok {
			return
		}
		q.runOne(ctx, id)
	}
}

// dequeue blocks until an item is available or Stop was called.
func (q *Queue) dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.stop {
		q.cond.Wait()
	}
	if q.stop {
		return "", false
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

// runOne isolates one item: errors and panics are logged, never
// propagated, so a bad item cannot terminate the consumer.
func (q *Queue) runOne(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("enrichment panicked", "insight_id", id, "panic", r)
		}
	}()
	if err := q.process(ctx, id); err != nil {
		q.logger.Error("enrichment failed", "insight_id", id, "error", err)
	}
}
