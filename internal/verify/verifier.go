package verify

import (
	"os"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Result is the verification verdict for a single snapshot.
type Result struct {
	Device        string    `json:"device"`
	Timestamp     time.Time `json:"timestamp"`
	Kind          string    `json:"kind"`
	ChecksumValid bool      `json:"checksum_valid"`
	DataMissing   bool      `json:"data_missing"`
	Error         string    `json:"error,omitempty"`
}

// OK reports whether the snapshot passed verification.
func (r Result) OK() bool {
	return r.ChecksumValid && !r.DataMissing && r.Error == ""
}

// Verifier audits the backup store against its manifests.
type Verifier struct {
	store *backupstore.Store
}

// NewVerifier creates a verifier over the given store.
func NewVerifier(store *backupstore.Store) *Verifier {
	return &Verifier{store: store}
}

// VerifySnapshot checks one committed snapshot's data against its
// recorded checksum.
func (v *Verifier) VerifySnapshot(snap model.Snapshot) Result {
	result := Result{
		Device:    snap.Device,
		Timestamp: snap.Timestamp,
		Kind:      string(snap.Kind),
	}

	if _, err := os.Stat(snap.Path); err != nil {
		if os.IsNotExist(err) {
			result.DataMissing = true
			return result
		}
		result.Error = err.Error()
		return result
	}

	ok, err := v.store.VerifyIntegrity(snap)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ChecksumValid = ok
	return result
}

// VerifyAll checks every committed snapshot. Mismatches are reported,
// never repaired or deleted.
func (v *Verifier) VerifyAll() ([]Result, error) {
	snaps, err := v.store.ListAll()
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(snaps))
	for _, snap := range snaps {
		results = append(results, v.VerifySnapshot(snap))
	}
	return results, nil
}

// VerifyDevice checks all committed snapshots of one device.
func (v *Verifier) VerifyDevice(device string) ([]Result, error) {
	snaps, err := v.store.List(device)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(snaps))
	for _, snap := range snaps {
		results = append(results, v.VerifySnapshot(snap))
	}
	return results, nil
}
