package model

import (
	"fmt"
	"time"
)

// RetentionPolicy configures which snapshots prune may delete.
// A snapshot is protected if it matches ANY of these rules:
// - within the most recent N snapshots of its device (KeepMinSnapshots)
// - created within the last duration (KeepMinAge)
// - it is the newest snapshot of its device (always kept)
type RetentionPolicy struct {
	KeepMinSnapshots int           `json:"keep_min_snapshots"`
	KeepMinAge       time.Duration `json:"keep_min_age"`
}

// DefaultRetentionPolicy returns the default retention policy.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		KeepMinSnapshots: 10,
		KeepMinAge:       7 * 24 * time.Hour,
	}
}

// Validate checks if the retention policy is valid.
func (rp *RetentionPolicy) Validate() error {
	if rp.KeepMinSnapshots < 0 {
		return fmt.Errorf("invalid retention policy: keep_min_snapshots must be non-negative (got %d)", rp.KeepMinSnapshots)
	}
	if rp.KeepMinAge < 0 {
		return fmt.Errorf("invalid retention policy: keep_min_age must be non-negative (got %s)", rp.KeepMinAge)
	}
	return nil
}

// PrunePlan is the output of the prune plan phase. Deletion only happens
// when a plan is executed, and the protected set is revalidated first.
type PrunePlan struct {
	PlanID         string          `json:"plan_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Protected      []Snapshot      `json:"protected"`
	ToDelete       []Snapshot      `json:"to_delete"`
	EstimatedBytes int64           `json:"estimated_bytes"`
	Policy         RetentionPolicy `json:"policy"`
}
