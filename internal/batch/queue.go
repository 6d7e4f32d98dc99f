// Package batch accumulates settled media files into batches and flushes
// them by size or age, whichever comes first.
package batch

import (
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"hopper/internal/logging"
)

// Batch is one unit of pipeline work: a set of files flushed together.
type Batch struct {
	ID    string
	Files []string
}

// FlushFunc receives each flushed batch. All batches are delivered from a
// single dispatch goroutine in creation order, with no queue lock held,
// so implementations may block without stalling Add.
type FlushFunc func(Batch)

type pendingFlush struct {
	batch  Batch
	reason string
}

// Queue collects file paths until either size files accumulate or the
// oldest entry reaches the timeout.
type Queue struct {
	size    int
	timeout time.Duration
	onFlush FlushFunc
	logger  *slog.Logger

	mu     sync.Mutex
	files  []string
	seen   map[string]struct{}
	timer  *time.Timer
	closed bool
	outbox []pendingFlush

	wake    chan struct{}
	drained chan struct{}
}

// NewQueue builds a queue. size must be >= 1; a size of 1 degenerates to
// immediate per-file flushes.
func NewQueue(size int, timeout time.Duration, onFlush FlushFunc, logger *slog.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	q := &Queue{
		size:    size,
		timeout: timeout,
		onFlush: onFlush,
		logger:  logging.NewComponentLogger(logger, "batch"),
		seen:    make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		drained: make(chan struct{}),
	}
	go q.dispatchLoop()
	return q
}

// Add appends a file to the pending batch. Duplicate paths already
// pending are ignored. Returns false once the queue is closed.
func (q *Queue) Add(path string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, dup := q.seen[path]; dup {
		q.mu.Unlock()
		return true
	}
	q.seen[path] = struct{}{}
	q.files = append(q.files, path)
	pending := len(q.files)

	if pending >= q.size {
		q.flushLocked("size")
	} else if q.timer == nil {
		// Timer runs from the first file of the batch, not the latest.
		q.timer = time.AfterFunc(q.timeout, q.flushExpired)
	}
	q.mu.Unlock()

	q.logger.Debug("file queued",
		logging.String(logging.FieldFile, path),
		logging.Int("pending", pending))
	return true
}

// FlushNow forces out whatever is pending, regardless of size or age.
func (q *Queue) FlushNow() {
	q.mu.Lock()
	q.flushLocked("manual")
	q.mu.Unlock()
}

// Len reports how many files are pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.files)
}

// Close flushes any remainder, rejects further adds, and blocks until
// every outstanding batch has been handed to the flush callback.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.flushLocked("close")
	q.mu.Unlock()

	q.signal()
	<-q.drained
}

func (q *Queue) flushExpired() {
	q.mu.Lock()
	if !q.closed {
		q.flushLocked("timeout")
	}
	q.mu.Unlock()
}

// flushLocked moves the pending buffer into the dispatch outbox. Creating
// the batch while q.mu is held is what pins creation order: the dispatch
// loop drains the outbox strictly first-in first-out.
func (q *Queue) flushLocked(reason string) {
	if len(q.files) == 0 {
		return
	}
	b := Batch{ID: uuid.NewString(), Files: q.files}
	q.files = nil
	q.seen = make(map[string]struct{})
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.outbox = append(q.outbox, pendingFlush{batch: b, reason: reason})
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatchLoop() {
	defer close(q.drained)
	for {
		q.mu.Lock()
		pending := q.outbox
		q.outbox = nil
		closed := q.closed
		q.mu.Unlock()

		for _, p := range pending {
			q.logger.Info("batch flushed",
				logging.String(logging.FieldBatchID, p.batch.ID),
				logging.Int("files", len(p.batch.Files)),
				logging.String("reason", p.reason))
			if q.onFlush != nil {
				q.onFlush(p.batch)
			}
		}

		if closed {
			q.mu.Lock()
			empty := len(q.outbox) == 0
			q.mu.Unlock()
			if empty {
				return
			}
			continue
		}
		<-q.wake
	}
}
