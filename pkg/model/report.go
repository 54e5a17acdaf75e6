package model

import (
	"time"

	"github.com/google/uuid"
)

// RunID uniquely identifies one fleet run.
type RunID string

// NewRunID generates a new run identifier.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

// ShortID returns the first 8 characters for display.
func (id RunID) ShortID() string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

func (id RunID) String() string { return string(id) }

// HaltReason explains why a run stopped before all batches ran.
type HaltReason string

const (
	// HaltFailureRate means the cumulative failure rate crossed the
	// configured threshold.
	HaltFailureRate HaltReason = "failure-rate-exceeded"
	// HaltCancelled means the operator cancelled the run. In-flight batch
	// work was allowed to finish; later batches never started.
	HaltCancelled HaltReason = "cancelled"
)

// RunReport is the aggregate, sole source of truth for what a run did.
// It is always produced, even when the run halted early.
type RunReport struct {
	RunID     RunID         `json:"run_id"`
	Operation Operation     `json:"operation"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`

	TargetCount int                   `json:"target_count"`
	Counts      map[OutcomeStatus]int `json:"counts"`
	HaltReason  HaltReason            `json:"halt_reason,omitempty"`
	// HaltAfterBatch is the index of the last batch that ran before the
	// halt; -1 when the run was cancelled before any batch started. Nil
	// on runs that completed, so a halt after batch 0 stays visible in
	// the serialized report.
	HaltAfterBatch *int `json:"halt_after_batch,omitempty"`

	Outcomes []ChangeOutcome `json:"outcomes"`
}

// Failed returns the number of devices that ended failed or rolled back.
// Rolled-back devices count against the halt threshold: the change did
// not stick even though the device was restored.
func (r *RunReport) Failed() int {
	return r.Counts[StatusFailed] + r.Counts[StatusRolledBack]
}

// NeedsIntervention lists devices left in a possibly-inconsistent state.
func (r *RunReport) NeedsIntervention() []ChangeOutcome {
	var out []ChangeOutcome
	for _, o := range r.Outcomes {
		if o.NeedsIntervention() {
			out = append(out, o)
		}
	}
	return out
}
