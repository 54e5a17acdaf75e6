// Package lock serializes mutating fleet runs. One process holds the
// workspace's fleet lock at a time; the lease expires so a crashed run
// never wedges the workspace.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

const lockFileName = "fleet.json"

// Manager acquires and releases the fleet lock stored under locksDir.
type Manager struct {
	locksDir string
	policy   model.LockPolicy
	mu       sync.Mutex
}

// NewManager creates a lock manager over the given directory.
func NewManager(locksDir string, policy model.LockPolicy) *Manager {
	return &Manager{locksDir: locksDir, policy: policy}
}

// Acquire takes the fleet lock for a run. O_CREAT|O_EXCL makes the
// acquire atomic against other processes.
func (m *Manager) Acquire(runID model.RunID, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.lockPath()
	if err := os.MkdirAll(m.locksDir, 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			rec, readErr := m.readLock(path)
			if readErr != nil {
				return nil, fmt.Errorf("read existing lock: %w", readErr)
			}
			if rec.IsExpired(time.Now()) {
				return nil, errclass.ErrLockConflict.WithMessage("fleet lock exists but expired, use steal")
			}
			return nil, errclass.ErrLockConflict.WithMessagef(
				"fleet is locked by run %s (%s) until %s",
				rec.RunID.ShortID(), rec.Purpose, rec.ExpiresAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	defer file.Close()

	now := time.Now().UTC()
	rec := &model.LockRecord{
		HolderNonce: uuid.NewString(),
		RunID:       runID,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.policy.DefaultLeaseTTL),
		Purpose:     purpose,
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("marshal lock record: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock record: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("sync lock record: %w", err)
	}
	return rec, nil
}

// Renew extends the lease for the current holder.
func (m *Manager) Renew(holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.lockPath()
	rec, err := m.readLock(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLockNotHeld.WithMessage("no fleet lock held")
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockExpired.WithMessage("fleet lock lease has expired")
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockNotHeld.WithMessage("nonce mismatch")
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.policy.DefaultLeaseTTL)
	if err := m.updateLock(path, rec); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}
	return rec, nil
}

// Steal takes over a lock whose lease has lapsed.
func (m *Manager) Steal(runID model.RunID, purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	path := m.lockPath()
	rec, err := m.readLock(path)
	if err != nil {
		m.mu.Unlock()
		if os.IsNotExist(err) {
			return m.Acquire(runID, purpose)
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	defer m.mu.Unlock()

	if !rec.IsExpired(time.Now()) {
		return nil, errclass.ErrLockConflict.WithMessagef(
			"fleet lock held by run %s has not expired", rec.RunID.ShortID())
	}

	now := time.Now().UTC()
	newRec := &model.LockRecord{
		HolderNonce: uuid.NewString(),
		RunID:       runID,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.policy.DefaultLeaseTTL),
		Purpose:     purpose,
	}
	if err := m.updateLock(path, newRec); err != nil {
		return nil, fmt.Errorf("steal lock: %w", err)
	}
	return newRec, nil
}

// Release frees the lock if the nonce matches. Releasing an already
// free lock is not an error.
func (m *Manager) Release(holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.lockPath()
	rec, err := m.readLock(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockNotHeld.WithMessage("cannot release: nonce mismatch")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Status reports the lock's current state.
func (m *Manager) Status() (model.LockState, *model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.readLock(m.lockPath())
	if err != nil {
		if os.IsNotExist(err) {
			return model.LockStateFree, nil, nil
		}
		return "", nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.IsExpired(time.Now()) {
		return model.LockStateExpired, rec, nil
	}
	return model.LockStateHeld, rec, nil
}

func (m *Manager) lockPath() string {
	return filepath.Join(m.locksDir, lockFileName)
}

func (m *Manager) readLock(path string) (*model.LockRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal lock record: %w", err)
	}
	return &rec, nil
}

func (m *Manager) updateLock(path string, rec *model.LockRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}
