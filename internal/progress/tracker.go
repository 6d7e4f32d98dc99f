package progress

import (
	"log/slog"
	"sync"

	"hopper/internal/logging"
)

// JobState describes where a pipeline job is in its lifecycle.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

type jobRecord struct {
	rule  string
	state JobState
}

type ruleStats struct {
	expectedTotal *int
	counts        map[JobState]int
}

// Tracker maintains per-rule job counts for the pipeline run in flight.
// All methods are safe for concurrent use and never block on I/O, so
// callers may invoke them from HTTP handlers and the event feed alike.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[int]*jobRecord
	rules  map[string]*ruleStats
	logger *slog.Logger
}

// NewTracker returns an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		jobs:   make(map[int]*jobRecord),
		rules:  make(map[string]*ruleStats),
		logger: logging.NewComponentLogger(logger, "progress"),
	}
}

func (t *Tracker) ruleLocked(rule string) *ruleStats {
	stats, ok := t.rules[rule]
	if !ok {
		stats = &ruleStats{counts: make(map[JobState]int)}
		t.rules[rule] = stats
	}
	return stats
}

// Register records a new job for the given rule in the pending state.
// Registering an already-known job is a no-op.
func (t *Tracker) Register(jobID int, rule string) {
	if rule == "" {
		rule = "unknown"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.jobs[jobID]; exists {
		return
	}
	t.jobs[jobID] = &jobRecord{rule: rule, state: StatePending}
	t.ruleLocked(rule).counts[StatePending]++
}

// Start transitions a job to running. Unknown jobs are registered first
// so late or out-of-order events still land in the counts.
func (t *Tracker) Start(jobID int) {
	t.transition(jobID, StateRunning)
}

// Complete transitions a job to completed. Completing a job twice, or
// completing one that never started, settles on completed either way.
func (t *Tracker) Complete(jobID int) {
	t.transition(jobID, StateCompleted)
}

// Fail transitions a job to failed.
func (t *Tracker) Fail(jobID int) {
	t.transition(jobID, StateFailed)
}

func (t *Tracker) transition(jobID int, next JobState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		job = &jobRecord{rule: "unknown", state: StatePending}
		t.jobs[jobID] = job
		t.ruleLocked(job.rule).counts[StatePending]++
		t.logger.Debug("registered job from late event",
			logging.Int("job_id", jobID),
			logging.String("state", string(next)))
	}
	if job.state == next {
		return
	}
	// Terminal states stick: a duplicate or out-of-order event after
	// completed/failed must not resurrect the job.
	if job.state == StateCompleted || job.state == StateFailed {
		return
	}
	stats := t.ruleLocked(job.rule)
	stats.counts[job.state]--
	stats.counts[next]++
	job.state = next
}

// SetExpectedTotal records how many jobs the rule would produce on a cold
// run. It is set at parse time, usually before any job exists, and drives
// the already-satisfied derivation in snapshots.
func (t *Tracker) SetExpectedTotal(rule string, total int) {
	if rule == "" || total < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.ruleLocked(rule)
	value := total
	stats.expectedTotal = &value
}

// Reset discards all job and rule state, returning the tracker to its
// initial empty condition.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = make(map[int]*jobRecord)
	t.rules = make(map[string]*ruleStats)
}
