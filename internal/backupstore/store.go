// Package backupstore is the content-addressed, checksummed store of
// device configuration snapshots. Snapshots are organized one directory
// per calendar date; the append-only manifest in each directory is the
// commit point for a backup.
package backupstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
	"github.com/fleetconf-project/fleetconf/pkg/model"
	"github.com/fleetconf-project/fleetconf/pkg/nameutil"
)

const dateLayout = "2006-01-02"

// Store persists snapshots under root/<YYYY-MM-DD>/.
type Store struct {
	root     string
	manifest *manifestWriter
	now      func() time.Time
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{
		root:     dir,
		manifest: newManifestWriter(),
		now:      time.Now,
	}
}

// Capture fetches the device's configuration of the given kind over an
// open session and persists it. Driver failures are returned to the
// caller untouched; retry policy belongs there.
func (s *Store) Capture(ctx context.Context, sess driver.Session, device model.Device, kind model.SnapshotKind) (*model.Snapshot, error) {
	text, err := sess.GetConfig(ctx, kind)
	if err != nil {
		return nil, err
	}
	info, err := sess.Info(ctx)
	if err != nil {
		// Device info is best-effort metadata; the snapshot itself is not.
		info = nil
	}
	return s.Save(device.Name, kind, text, info, s.now().UTC())
}

// Save persists configuration text as a snapshot. The data file and
// device-info file are durably written before the manifest line is
// appended; a crash in between leaves a phantom that List never reports.
func (s *Store) Save(device string, kind model.SnapshotKind, text string, info *model.DeviceInfo, ts time.Time) (*model.Snapshot, error) {
	if err := nameutil.ValidateDeviceName(device); err != nil {
		return nil, err
	}

	dateDir := filepath.Join(s.root, ts.Format(dateLayout))
	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return nil, fmt.Errorf("create date dir: %w", err)
	}

	sum := sha256.Sum256([]byte(text))
	checksum := model.HashValue(hex.EncodeToString(sum[:]))

	fileName := fmt.Sprintf("%s__%d__%s.cfg", device, ts.UnixMilli(), kind)
	dataPath := filepath.Join(dateDir, fileName)
	if err := fsutil.AtomicWrite(dataPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write snapshot data: %w", err)
	}

	if info != nil {
		infoData, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal device info: %w", err)
		}
		infoPath := filepath.Join(dateDir, fmt.Sprintf("%s__%d__info.json", device, ts.UnixMilli()))
		if err := fsutil.AtomicWrite(infoPath, infoData, 0644); err != nil {
			return nil, fmt.Errorf("write device info: %w", err)
		}
	}

	entry := model.ManifestEntry{
		Device:    device,
		Timestamp: ts.UnixMilli(),
		Kind:      kind,
		Checksum:  checksum,
		SizeBytes: int64(len(text)),
		File:      fileName,
	}

	// Checksum index first: an index line for an uncommitted snapshot is
	// harmless, a committed snapshot missing from the index is not.
	if err := s.manifest.appendChecksumIndex(dateDir, checksum, fileName); err != nil {
		return nil, err
	}
	if err := s.manifest.append(dateDir, entry); err != nil {
		return nil, err
	}

	return &model.Snapshot{
		Device:    device,
		Timestamp: ts,
		Kind:      kind,
		Checksum:  checksum,
		SizeBytes: int64(len(text)),
		Path:      dataPath,
		Info:      info,
	}, nil
}

// List returns all committed snapshots for a device, most recent first.
func (s *Store) List(device string) ([]model.Snapshot, error) {
	return s.list(func(e model.ManifestEntry) bool { return e.Device == device })
}

// ListAll returns every committed snapshot, most recent first.
func (s *Store) ListAll() ([]model.Snapshot, error) {
	return s.list(func(model.ManifestEntry) bool { return true })
}

func (s *Store) list(keep func(model.ManifestEntry) bool) ([]model.Snapshot, error) {
	dates, err := s.dateDirs()
	if err != nil {
		return nil, err
	}

	var snaps []model.Snapshot
	for _, date := range dates {
		dateDir := filepath.Join(s.root, date)
		entries, err := readManifest(dateDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !keep(e) {
				continue
			}
			snaps = append(snaps, snapshotFromEntry(dateDir, e))
		}
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

// Resolve returns the snapshot a selector names for a device: the most
// recent one for "latest", or the newest snapshot taken on or before
// the given YYYY-MM-DD date. Only running-config snapshots are restore
// candidates.
func (s *Store) Resolve(device string, selector model.Selector) (*model.Snapshot, error) {
	snaps, err := s.List(device)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if !selector.IsLatest() {
		day, err := time.Parse(dateLayout, string(selector))
		if err != nil {
			return nil, fmt.Errorf("selector must be %q or a YYYY-MM-DD date: %q", model.SelectorLatest, selector)
		}
		cutoff = day.AddDate(0, 0, 1) // end of the selected day
	}

	for _, snap := range snaps {
		if snap.Kind != model.KindRunning {
			continue
		}
		if cutoff.IsZero() || snap.Timestamp.Before(cutoff) {
			return &snap, nil
		}
	}
	return nil, errclass.ErrNoSuchBackup.WithMessagef("no snapshot for %s at %s", device, selector)
}

// VerifyIntegrity recomputes the data file's checksum and compares it
// to the manifest's. Mismatches are surfaced, never auto-repaired.
func (s *Store) VerifyIntegrity(snap model.Snapshot) (bool, error) {
	data, err := os.ReadFile(snap.Path)
	if err != nil {
		return false, fmt.Errorf("read snapshot data: %w", err)
	}
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:])) == snap.Checksum, nil
}

// Content returns the snapshot's configuration text after an integrity
// check. Restoring bytes that no longer match their recorded checksum
// is forbidden.
func (s *Store) Content(snap model.Snapshot) (string, error) {
	data, err := os.ReadFile(snap.Path)
	if err != nil {
		return "", fmt.Errorf("read snapshot data: %w", err)
	}
	sum := sha256.Sum256(data)
	if model.HashValue(hex.EncodeToString(sum[:])) != snap.Checksum {
		return "", errclass.ErrIntegrityViolation.WithMessagef(
			"snapshot %s %s has been altered on disk", snap.Device, snap.Timestamp.Format(time.RFC3339))
	}
	return string(data), nil
}

// Delete removes a snapshot's data, info, and manifest entry. Used only
// by retention pruning; runs never delete.
func (s *Store) Delete(snap model.Snapshot) error {
	dateDir := filepath.Dir(snap.Path)
	if err := s.manifest.remove(dateDir, snap); err != nil {
		return err
	}
	if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot data: %w", err)
	}
	infoPath := filepath.Join(dateDir, fmt.Sprintf("%s__%d__info.json", snap.Device, snap.Timestamp.UnixMilli()))
	if err := os.Remove(infoPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove device info: %w", err)
	}
	return nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// DateDirs returns the store's date directories, newest first.
func (s *Store) DateDirs() ([]string, error) { return s.dateDirs() }

func (s *Store) dateDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dateLayout, e.Name()); err != nil {
			continue
		}
		dates = append(dates, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func snapshotFromEntry(dateDir string, e model.ManifestEntry) model.Snapshot {
	return model.Snapshot{
		Device:    e.Device,
		Timestamp: time.UnixMilli(e.Timestamp).UTC(),
		Kind:      e.Kind,
		Checksum:  e.Checksum,
		SizeBytes: e.SizeBytes,
		Path:      filepath.Join(dateDir, e.File),
	}
}
