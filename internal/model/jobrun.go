package model

import "time"

// RunEntryStatus is the terminal status recorded for a job run.
type RunEntryStatus string

const (
	RunEntrySuccess RunEntryStatus = "success"
	RunEntryFailed  RunEntryStatus = "failed"
)

// JobRunEntry is an immutable, append-only record of one terminal job run.
// Entries are created only when a job reaches a terminal state and are never
// mutated or deleted afterward.
type JobRunEntry struct {
	ID        string    `json:"id"`
	Initiator string    `json:"initiator"`
	Timestamp time.Time `json:"timestamp"`

	DurationMS int64   `json:"duration_ms"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`

	Status  RunEntryStatus `json:"status"`
	Summary map[string]int `json:"summary,omitempty"`
}

// NewRunEntry builds a run entry from a terminal result's metrics. A nil
// metrics pointer (result carried no metrics) defaults everything to zero.
func NewRunEntry(id, initiator string, metrics *RunMetrics, status RunEntryStatus, summary map[string]int) JobRunEntry {
	entry := JobRunEntry{
		ID:        id,
		Initiator: initiator,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Summary:   summary,
	}
	if metrics != nil {
		entry.DurationMS = metrics.DurationMS
		entry.TokensIn = metrics.TokensIn
		entry.TokensOut = metrics.TokensOut
		entry.CostUSD = metrics.CostUSD
	}
	return entry
}

// JobStatus is the queue status of a pending analysis job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// AnalysisJob is a queued server-side analysis job awaiting execution.
type AnalysisJob struct {
	ID        string         `json:"id"`
	PursuitID string         `json:"pursuit_id"`
	Kind      JobKind        `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Status    JobStatus      `json:"status"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
