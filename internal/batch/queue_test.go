package batch

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu      sync.Mutex
	batches []Batch
	signal  chan struct{}
}

func newCapture() *capture {
	return &capture{signal: make(chan struct{}, 16)}
}

func (c *capture) flush(b Batch) {
	c.mu.Lock()
	c.batches = append(c.batches, b)
	c.mu.Unlock()
	c.signal <- struct{}{}
}

func (c *capture) await(t *testing.T) Batch {
	t.Helper()
	select {
	case <-c.signal:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[len(c.batches)-1]
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestFlushesAtSize(t *testing.T) {
	c := newCapture()
	q := NewQueue(3, time.Hour, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	q.Add("/in/b.mp4")
	if c.count() != 0 {
		t.Fatal("must not flush below size")
	}
	q.Add("/in/c.mp4")

	b := c.await(t)
	if len(b.Files) != 3 {
		t.Fatalf("flushed %d files, want 3", len(b.Files))
	}
	if b.ID == "" {
		t.Fatal("batch must carry an id")
	}
	if q.Len() != 0 {
		t.Fatalf("queue must be empty after flush, has %d", q.Len())
	}
}

func TestFlushesPartialBatchOnTimeout(t *testing.T) {
	c := newCapture()
	q := NewQueue(10, 100*time.Millisecond, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	b := c.await(t)
	if len(b.Files) != 1 || b.Files[0] != "/in/a.mp4" {
		t.Fatalf("unexpected timeout flush: %+v", b)
	}
}

func TestTimerMeasuresOldestEntry(t *testing.T) {
	c := newCapture()
	q := NewQueue(10, 300*time.Millisecond, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	time.Sleep(150 * time.Millisecond)
	// A second file must not restart the clock.
	q.Add("/in/b.mp4")

	start := time.Now()
	b := c.await(t)
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("flush arrived too late: %v", elapsed)
	}
	if len(b.Files) != 2 {
		t.Fatalf("flushed %d files, want 2", len(b.Files))
	}
}

func TestSizeOneFlushesImmediately(t *testing.T) {
	c := newCapture()
	q := NewQueue(1, time.Hour, c.flush, nil)
	defer q.Close()

	q.Add("/in/solo.mp4")
	b := c.await(t)
	if len(b.Files) != 1 {
		t.Fatalf("unexpected batch: %+v", b)
	}
}

func TestDuplicatePendingPathIgnored(t *testing.T) {
	c := newCapture()
	q := NewQueue(2, time.Hour, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	q.Add("/in/a.mp4")
	if q.Len() != 1 {
		t.Fatalf("duplicate must not grow the queue: %d", q.Len())
	}
	q.Add("/in/b.mp4")
	b := c.await(t)
	if len(b.Files) != 2 {
		t.Fatalf("unexpected batch: %+v", b)
	}
}

func TestFlushNow(t *testing.T) {
	c := newCapture()
	q := NewQueue(10, time.Hour, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	q.FlushNow()
	b := c.await(t)
	if len(b.Files) != 1 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	// Empty queue: FlushNow must not emit an empty batch.
	q.FlushNow()
	time.Sleep(50 * time.Millisecond)
	if c.count() != 1 {
		t.Fatalf("empty flush produced a batch, total %d", c.count())
	}
}

func TestCloseFlushesRemainderAndRejectsAdds(t *testing.T) {
	c := newCapture()
	q := NewQueue(10, time.Hour, c.flush, nil)

	q.Add("/in/a.mp4")
	q.Close()
	b := c.await(t)
	if len(b.Files) != 1 {
		t.Fatalf("close must flush remainder: %+v", b)
	}
	if q.Add("/in/late.mp4") {
		t.Fatal("add after close must report false")
	}
}

func TestFlushOrderMatchesCreationOrder(t *testing.T) {
	const files = 200

	var mu sync.Mutex
	var got []string
	q := NewQueue(1, time.Hour, func(b Batch) {
		mu.Lock()
		got = append(got, b.Files...)
		mu.Unlock()
	}, nil)

	for i := 0; i < files; i++ {
		q.Add(fmt.Sprintf("/in/%04d.mp4", i))
	}
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != files {
		t.Fatalf("delivered %d files, want %d", len(got), files)
	}
	for i, path := range got {
		want := fmt.Sprintf("/in/%04d.mp4", i)
		if path != want {
			t.Fatalf("batch %d delivered out of order: got %s, want %s", i, path, want)
		}
	}
}

func TestCloseWaitsForOutstandingFlushes(t *testing.T) {
	delivered := make(chan struct{}, 2)
	q := NewQueue(1, time.Hour, func(Batch) {
		time.Sleep(20 * time.Millisecond)
		delivered <- struct{}{}
	}, nil)

	q.Add("/in/a.mp4")
	q.Add("/in/b.mp4")
	q.Close()

	// Close returns only after both batches reached the callback.
	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		default:
			t.Fatalf("close returned with batch %d undelivered", i)
		}
	}
}

func TestBatchIDsAreUnique(t *testing.T) {
	c := newCapture()
	q := NewQueue(1, time.Hour, c.flush, nil)
	defer q.Close()

	q.Add("/in/a.mp4")
	first := c.await(t)
	q.Add("/in/b.mp4")
	second := c.await(t)
	if first.ID == second.ID {
		t.Fatalf("batch ids must differ, both %q", first.ID)
	}
}
