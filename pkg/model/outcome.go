package model

import "time"

// OutcomeStatus is the terminal status of one device in one run.
type OutcomeStatus string

const (
	StatusSucceeded          OutcomeStatus = "succeeded"
	StatusFailed             OutcomeStatus = "failed"
	StatusSkippedUnreachable OutcomeStatus = "skipped-unreachable"
	StatusRolledBack         OutcomeStatus = "rolled-back"
	// StatusSkippedNotAttempted marks devices in batches that were never
	// started because the run halted on the failure-rate threshold.
	StatusSkippedNotAttempted OutcomeStatus = "skipped-not-attempted"
)

// CheckResult records one verification command's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Output  string `json:"output,omitempty"`
	Matched bool   `json:"matched"`
}

// ChangeOutcome is the single, final result record for one device in one
// run. Produced exactly once per device; never mutated after the
// orchestrator appends it to the run's result set.
type ChangeOutcome struct {
	Device     string        `json:"device"`
	Status     OutcomeStatus `json:"status"`
	Batch      int           `json:"batch"`
	Backup     *Snapshot     `json:"backup,omitempty"`
	Checks     []CheckResult `json:"checks,omitempty"`
	ErrorClass string        `json:"error_class,omitempty"`
	Error      string        `json:"error,omitempty"`
	// RollbackAttemptedAndFailed marks the one unrecoverable-locally
	// condition: the device may hold an inconsistent configuration and
	// needs manual intervention. Never folded into a plain failure.
	RollbackAttemptedAndFailed bool `json:"rollback_attempted_and_failed,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time the device's execution took.
func (o ChangeOutcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// NeedsIntervention reports whether the device is possibly inconsistent.
func (o ChangeOutcome) NeedsIntervention() bool {
	return o.RollbackAttemptedAndFailed
}
