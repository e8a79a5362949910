package entity

import "time"

// HistoryEntry is one append-only audit record of a workflow.
// Transition entries use HistoryTypeWorkflow; step entries use HistoryTypeStep
// and carry the step id.
type HistoryEntry struct {
	ID          string     `json:"id"`
	WorkflowID  string     `json:"workflow_id"`
	StepID      string     `json:"step_id,omitempty"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the entry took, zero while still open
func (h HistoryEntry) Duration() time.Duration {
	if h.CompletedAt == nil {
		return 0
	}
	return h.CompletedAt.Sub(h.StartedAt)
}
