package model

import "time"

// Operation is the kind of fleet run being performed.
type Operation string

const (
	OpEnforceCompliance Operation = "enforce-compliance"
	OpDeployTemplates   Operation = "deploy-templates"
	OpBulkUpdate        Operation = "bulk-update"
	OpBackup            Operation = "backup"
	OpRollback          Operation = "rollback"
)

// RollbackPolicy controls whether an apply or verification failure
// triggers an automatic restore of the pre-change snapshot.
type RollbackPolicy string

const (
	// RollbackAuto restores the pre-change snapshot on any apply or
	// verification failure. Default for forward updates.
	RollbackAuto RollbackPolicy = "auto"
	// RollbackNever leaves the device as-is on failure. Mandatory for
	// rollback runs themselves, preventing rollback loops.
	RollbackNever RollbackPolicy = "never"
)

// Check is one post-apply verification: run Command on the device and
// require its output to match Pattern (RE2 syntax). Tags allow run-time
// filtering of sub-steps.
type Check struct {
	Name    string   `json:"name" yaml:"name"`
	Command string   `json:"command" yaml:"command"`
	Pattern string   `json:"pattern" yaml:"pattern"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Payload is the desired-state configuration for one device.
// Exactly one source is set: literal text, or a pre-resolved snapshot
// (rollback runs carry the snapshot whose content is being restored).
type Payload struct {
	Text     string    `json:"text,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// ChangeRequest describes one fleet run. Constructed once, immutable
// during execution.
type ChangeRequest struct {
	Operation Operation `json:"operation"`
	Devices   []Device  `json:"devices"`
	// Payloads maps device name to its desired configuration. A backup-only
	// run has no payloads.
	Payloads  map[string]Payload `json:"payloads,omitempty"`
	BatchSize int                `json:"batch_size"`
	Checks    []Check            `json:"checks,omitempty"`
	Rollback  RollbackPolicy     `json:"rollback_policy"`

	ReachabilityTimeout time.Duration `json:"reachability_timeout"`
	ApplyTimeout        time.Duration `json:"apply_timeout"`
	VerifyTimeout       time.Duration `json:"verify_timeout"`
}

// ApplyPayloads reports whether the run mutates device configuration.
// Backup-only runs stop after the BackingUp state.
func (r *ChangeRequest) ApplyPayloads() bool {
	return r.Operation != OpBackup
}
