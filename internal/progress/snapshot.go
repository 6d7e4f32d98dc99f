package progress

// RuleSnapshot summarizes one rule's job counts. ExpectedTotal and
// AlreadySatisfied are present only for rules that announced an expected
// total at parse time.
type RuleSnapshot struct {
	Total            int  `json:"total"`
	Pending          int  `json:"pending"`
	Running          int  `json:"running"`
	Completed        int  `json:"completed"`
	Failed           int  `json:"failed"`
	ExpectedTotal    *int `json:"expected_total,omitempty"`
	AlreadySatisfied *int `json:"already_satisfied,omitempty"`
}

// Snapshot is a consistent point-in-time view of the whole run.
type Snapshot struct {
	TotalJobs     int                     `json:"total_jobs"`
	CompletedJobs int                     `json:"completed_jobs"`
	FailedJobs    int                     `json:"failed_jobs"`
	RunningJobs   int                     `json:"running_jobs"`
	PendingJobs   int                     `json:"pending_jobs"`
	Rules         map[string]RuleSnapshot `json:"rules"`
}

// Snapshot returns a copy of the current counts. The copy shares no state
// with the tracker, so callers may serialize it without holding anything.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{Rules: make(map[string]RuleSnapshot, len(t.rules))}
	for rule, stats := range t.rules {
		rs := RuleSnapshot{
			Pending:   stats.counts[StatePending],
			Running:   stats.counts[StateRunning],
			Completed: stats.counts[StateCompleted],
			Failed:    stats.counts[StateFailed],
		}
		rs.Total = rs.Pending + rs.Running + rs.Completed + rs.Failed
		if stats.expectedTotal != nil {
			expected := *stats.expectedTotal
			satisfied := expected - rs.Total
			if satisfied < 0 {
				satisfied = 0
			}
			rs.ExpectedTotal = &expected
			rs.AlreadySatisfied = &satisfied
		}
		snap.Rules[rule] = rs

		snap.TotalJobs += rs.Total
		snap.PendingJobs += rs.Pending
		snap.RunningJobs += rs.Running
		snap.CompletedJobs += rs.Completed
		snap.FailedJobs += rs.Failed
	}
	return snap
}
