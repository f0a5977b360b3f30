package enrich_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/fieldback/enrich"
)

// recorder collects processed ids and signals each completion.
type recorder struct {
	mu   sync.Mutex
	ids  []string
	sig  chan struct{}
	fail map[string]bool
}

func newRecorder() *recorder {
	return &recorder{sig: make(chan struct{}, 64), fail: map[string]bool{}}
}

func (r *recorder) process(_ context.Context, id string) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	fail := r.fail[id]
	r.mu.Unlock()
	r.sig <- struct{}{}
	if fail {
		return errors.New("synthetic failure")
	}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for range n {
		select {
		case <-r.sig:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d items", n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

func TestStartOnce(t *testing.T) {
	q := enrich.NewQueue(func(context.Context, string) error { return nil }, nil)
	defer q.Stop()

	if !q.Start(context.Background()) {
		t.Fatal("first Start returned false")
	}
	if q.Start(context.Background()) {
		t.Fatal("second Start must be a no-op")
	}
}

func TestFIFOOrder(t *testing.T) {
	r := newRecorder()
	q := enrich.NewQueue(r.process, nil)
	defer q.Stop()

	for _, id := range []string{"A", "B", "C", "D", "E"} {
		q.Enqueue(id)
	}
	q.Start(context.Background())

	got := r.wait(t, 5)
	want := []string{"A", "B", "C", "D", "E"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDuplicateEnqueueProcessedTwice(t *testing.T) {
	r := newRecorder()
	q := enrich.NewQueue(r.process, nil)
	defer q.Stop()

	q.Enqueue("X")
	q.Enqueue("X")
	q.Start(context.Background())

	got := r.wait(t, 2)
	if len(got) != 2 || got[0] != "X" || got[1] != "X" {
		t.Fatalf("got %v, want [X X]", got)
	}
}

func TestErrorDoesNotStopConsumer(t *testing.T) {
	r := newRecorder()
	r.fail["bad"] = true
	q := enrich.NewQueue(r.process, nil)
	defer q.Stop()

	q.Enqueue("bad")
	q.Enqueue("good")
	q.Start(context.Background())

	got := r.wait(t, 2)
	if got[1] != "good" {
		t.Fatalf("consumer died after failing item: %v", got)
	}
}

func TestPanicDoesNotStopConsumer(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	sig := make(chan struct{}, 8)
	q := enrich.NewQueue(func(_ context.Context, id string) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		sig <- struct{}{}
		if id == "boom" {
			panic("kaboom")
		}
		return nil
	}, nil)
	defer q.Stop()

	q.Enqueue("boom")
	q.Enqueue("after")
	q.Start(context.Background())

	for range 2 {
		select {
		case <-sig:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[1] != "after" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	// No consumer running: a large burst must still return promptly.
	q := enrich.NewQueue(func(context.Context, string) error { return nil }, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Enqueue("id")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked")
	}
	if q.Len() != 10000 {
		t.Fatalf("Len = %d", q.Len())
	}
}

func TestStopUnblocksIdleConsumer(t *testing.T) {
	q := enrich.NewQueue(func(context.Context, string) error { return nil }, nil)
	q.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not unblock the idle consumer")
	}
}
