package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeRunStart     AuditEventType = "run_start"
	EventTypeRunComplete  AuditEventType = "run_complete"
	EventTypeRunHalt      AuditEventType = "run_halt"
	EventTypeBackupCreate AuditEventType = "backup_create"
	EventTypeRollback     AuditEventType = "rollback"
	EventTypePrunePlan    AuditEventType = "prune_plan"
	EventTypePruneRun     AuditEventType = "prune_run"
)

// AuditRecord is a single line in the audit log (JSONL format).
// Records are hash-chained: each carries the previous record's hash.
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	RunID      RunID          `json:"run_id,omitempty"`
	Device     string         `json:"device,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
