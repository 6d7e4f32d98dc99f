package progress

import (
	"encoding/json"
	"strings"
)

// Event is one NDJSON record emitted by the pipeline's logger plugin on
// its stdout stream.
type Event struct {
	Type  string `json:"event"`
	JobID int    `json:"job_id"`
	Rule  string `json:"rule"`
	Total int    `json:"total"`
	Error string `json:"error,omitempty"`
}

// Event type values produced by the pipeline reporter.
const (
	EventWorkflowStarted  = "workflow_started"
	EventJobInfo          = "job_info"
	EventJobStarted       = "job_started"
	EventJobFinished      = "job_finished"
	EventJobError         = "job_error"
	EventExpectedTotal    = "expected_total"
	EventWorkflowFinished = "workflow_finished"
)

// ParseEvent decodes a single stdout line. The second return is false for
// blank lines and lines that are not reporter JSON; those belong to the
// plain log stream.
func ParseEvent(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || trimmed[0] != '{' {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return Event{}, false
	}
	if ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}

// Apply feeds one event into the tracker. Unrecognized event types are
// ignored so reporter additions do not break older daemons.
func (t *Tracker) Apply(ev Event) {
	switch ev.Type {
	case EventJobInfo:
		t.Register(ev.JobID, ev.Rule)
	case EventJobStarted:
		t.Start(ev.JobID)
	case EventJobFinished:
		t.Complete(ev.JobID)
	case EventJobError:
		t.Fail(ev.JobID)
	case EventExpectedTotal:
		t.SetExpectedTotal(ev.Rule, ev.Total)
	case EventWorkflowStarted, EventWorkflowFinished:
		// Lifecycle markers carry no job state.
	}
}
