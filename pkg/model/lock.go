package model

import "time"

// LockRecord is stored at .fleetconf/locks/fleet.json. One mutating run
// holds the fleet lock at a time.
type LockRecord struct {
	HolderNonce string    `json:"holder_nonce"`
	RunID       RunID     `json:"run_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Purpose     string    `json:"purpose,omitempty"`
}

// IsExpired returns true if the lock's lease has lapsed.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LockState represents the current state of the fleet lock.
type LockState string

const (
	LockStateHeld    LockState = "held"
	LockStateExpired LockState = "expired"
	LockStateFree    LockState = "free"
)

// LockPolicy configures lock timing parameters.
type LockPolicy struct {
	DefaultLeaseTTL time.Duration `json:"default_lease_ttl"`
}
