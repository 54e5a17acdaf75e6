package backupstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "backups"))
}

func mustSave(t *testing.T, s *Store, device, text string, ts time.Time) *model.Snapshot {
	t.Helper()
	snap, err := s.Save(device, model.KindRunning, text, nil, ts)
	require.NoError(t, err)
	return snap
}

func TestSaveAndList(t *testing.T) {
	s := testStore(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	mustSave(t, s, "edge-router-01", "hostname edge-router-01\n", day1)
	mustSave(t, s, "edge-router-01", "hostname edge-router-01\nntp server 10.0.0.1\n", day2)
	mustSave(t, s, "core-switch-01", "hostname core-switch-01\n", day1)

	snaps, err := s.List("edge-router-01")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, day2, snaps[0].Timestamp, "most recent first")
	assert.Equal(t, day1, snaps[1].Timestamp)
	assert.Equal(t, "edge-router-01", snaps[0].Device)

	all, err := s.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestChecksumRoundTrip(t *testing.T) {
	s := testStore(t)
	snap := mustSave(t, s, "edge-router-01", "interface eth0\n ip address 10.1.1.1/24\n", time.Now().UTC())

	ok, err := s.VerifyIntegrity(*snap)
	require.NoError(t, err)
	assert.True(t, ok, "freshly written snapshot must verify")

	text, err := s.Content(*snap)
	require.NoError(t, err)
	assert.Equal(t, "interface eth0\n ip address 10.1.1.1/24\n", text)

	// Flip one byte on disk.
	require.NoError(t, os.WriteFile(snap.Path, []byte("interface eth0\n ip address 10.1.1.2/24\n"), 0644))

	ok, err = s.VerifyIntegrity(*snap)
	require.NoError(t, err)
	assert.False(t, ok, "tampered snapshot must fail verification")

	_, err = s.Content(*snap)
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrIntegrityViolation))
}

func TestPhantomDataFileNotListed(t *testing.T) {
	s := testStore(t)
	mustSave(t, s, "edge-router-01", "hostname edge-router-01\n", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	// Simulate a crash after the data write but before the manifest
	// append: the file exists, the commit point was never reached.
	dateDir := filepath.Join(s.Root(), "2026-03-01")
	phantom := filepath.Join(dateDir, "edge-router-01__9999999999999__running.cfg")
	require.NoError(t, os.WriteFile(phantom, []byte("uncommitted\n"), 0644))

	snaps, err := s.List("edge-router-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1, "phantom must not surface in listings")
}

func TestResolve(t *testing.T) {
	s := testStore(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	mustSave(t, s, "edge-router-01", "old\n", day1)
	mustSave(t, s, "edge-router-01", "new\n", day3)
	// Startup snapshots are never restore candidates.
	_, err := s.Save("edge-router-01", model.KindStartup, "startup\n", nil, day3.Add(time.Hour))
	require.NoError(t, err)

	latest, err := s.Resolve("edge-router-01", model.SelectorLatest)
	require.NoError(t, err)
	assert.Equal(t, day3, latest.Timestamp)
	assert.Equal(t, model.KindRunning, latest.Kind)

	byDate, err := s.Resolve("edge-router-01", model.Selector("2026-03-02"))
	require.NoError(t, err)
	assert.Equal(t, day1, byDate.Timestamp, "date selector picks newest on or before that day")

	onDay, err := s.Resolve("edge-router-01", model.Selector("2026-03-03"))
	require.NoError(t, err)
	assert.Equal(t, day3, onDay.Timestamp)
}

func TestResolveNoSuchBackup(t *testing.T) {
	s := testStore(t)
	mustSave(t, s, "edge-router-01", "cfg\n", time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))

	_, err := s.Resolve("never-backed-up", model.SelectorLatest)
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrNoSuchBackup))

	_, err = s.Resolve("edge-router-01", model.Selector("2026-03-01"))
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrNoSuchBackup), "no snapshot that early")

	_, err = s.Resolve("edge-router-01", model.Selector("not-a-date"))
	require.Error(t, err)
	assert.False(t, errclass.Is(err, errclass.ErrNoSuchBackup), "malformed selector is a usage error")
}

func TestCapture(t *testing.T) {
	mem := driver.NewMemoryDriver()
	mem.Seed("edge-router-01", "hostname edge-router-01\n")
	s := testStore(t)

	ctx := context.Background()
	sess, err := mem.Connect(ctx, model.Device{Name: "edge-router-01", Address: "10.0.0.1"})
	require.NoError(t, err)
	defer sess.Close()

	snap, err := s.Capture(ctx, sess, model.Device{Name: "edge-router-01"}, model.KindRunning)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hostname edge-router-01\n")), snap.SizeBytes)

	text, err := s.Content(*snap)
	require.NoError(t, err)
	assert.Equal(t, "hostname edge-router-01\n", text)
}

func TestCaptureFailurePersistsNothing(t *testing.T) {
	mem := driver.NewMemoryDriver()
	mem.Seed("edge-router-01", "cfg\n")
	mem.SetGetConfigFailure("edge-router-01", model.KindRunning)
	s := testStore(t)

	ctx := context.Background()
	sess, err := mem.Connect(ctx, model.Device{Name: "edge-router-01", Address: "10.0.0.1"})
	require.NoError(t, err)
	defer sess.Close()

	_, err = s.Capture(ctx, sess, model.Device{Name: "edge-router-01"}, model.KindRunning)
	require.Error(t, err)

	snaps, err := s.List("edge-router-01")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	keep := mustSave(t, s, "edge-router-01", "keep\n", day)
	gone := mustSave(t, s, "edge-router-01", "gone\n", day.Add(time.Hour))

	require.NoError(t, s.Delete(*gone))

	snaps, err := s.List("edge-router-01")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, keep.Checksum, snaps[0].Checksum)

	_, err = os.Stat(gone.Path)
	assert.True(t, os.IsNotExist(err))

	ok, err := s.VerifyIntegrity(snaps[0])
	require.NoError(t, err)
	assert.True(t, ok, "surviving snapshot untouched by manifest rewrite")
}

func TestManifestCorruptSurfaces(t *testing.T) {
	s := testStore(t)
	mustSave(t, s, "edge-router-01", "cfg\n", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	manifestPath := filepath.Join(s.Root(), "2026-03-01", "manifest.jsonl")
	f, err := os.OpenFile(manifestPath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{torn line")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.List("edge-router-01")
	require.Error(t, err)
	assert.True(t, errclass.Is(err, errclass.ErrManifestCorrupt))
}
