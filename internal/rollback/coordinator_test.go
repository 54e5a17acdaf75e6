package rollback

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/internal/executor"
	"github.com/fleetconf-project/fleetconf/internal/orchestrator"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/logging"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

type fixture struct {
	mem   *driver.MemoryDriver
	store *backupstore.Store
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(logging.LevelError, logging.FormatJSON)
	log.SetOutput(io.Discard)

	mem := driver.NewMemoryDriver()
	store := backupstore.New(filepath.Join(t.TempDir(), "backups"))
	orch := orchestrator.New(orchestrator.Options{
		Executor:      executor.New(mem, store, log),
		Log:           log,
		HaltThreshold: 0.20,
	})
	return &fixture{mem: mem, store: store, coord: NewCoordinator(store, orch)}
}

func rollbackRequest(devices []model.Device) *model.ChangeRequest {
	return &model.ChangeRequest{
		Operation:           model.OpRollback,
		Devices:             devices,
		BatchSize:           5,
		Rollback:            model.RollbackNever,
		ReachabilityTimeout: 5 * time.Second,
		ApplyTimeout:        5 * time.Second,
		VerifyTimeout:       5 * time.Second,
	}
}

func TestRollbackMissingBackupIsPerDevice(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	devices := []model.Device{
		{Name: "access-switch-tokyo-04", Address: "10.2.0.4"},
		{Name: "access-switch-tokyo-05", Address: "10.2.0.5"},
		{Name: "access-switch-tokyo-06", Address: "10.2.0.6"},
	}
	for _, d := range devices {
		f.mem.Seed(d.Name, fmt.Sprintf("hostname %s\ndrifted\n", d.Name))
	}
	// tokyo-05 has no snapshot for the selected date.
	for _, name := range []string{"access-switch-tokyo-04", "access-switch-tokyo-06"} {
		_, err := f.store.Save(name, model.KindRunning, fmt.Sprintf("hostname %s\ngolden\n", name), nil, day)
		require.NoError(t, err)
	}

	report, err := f.coord.Rollback(context.Background(), rollbackRequest(devices), model.Selector("2024-01-01"))
	require.NoError(t, err, "a missing backup is not a fatal run error")

	assert.Equal(t, 2, report.Counts[model.StatusSucceeded])
	assert.Equal(t, 1, report.Counts[model.StatusFailed])

	for _, oc := range report.Outcomes {
		if oc.Device == "access-switch-tokyo-05" {
			assert.Equal(t, model.StatusFailed, oc.Status)
			assert.Equal(t, errclass.ErrNoSuchBackup.Code, oc.ErrorClass)
			assert.Nil(t, oc.Backup, "failed resolution never contacts the device")
		} else {
			assert.Equal(t, model.StatusSucceeded, oc.Status, oc.Device)
			assert.NotNil(t, oc.Backup, "safety backup taken before restore")
		}
	}

	running, _ := f.mem.RunningConfig("access-switch-tokyo-04")
	assert.Equal(t, "hostname access-switch-tokyo-04\ngolden\n", running)
	running, _ = f.mem.RunningConfig("access-switch-tokyo-05")
	assert.Contains(t, running, "drifted", "device without a restore point left untouched")
}

func TestRollbackIdempotent(t *testing.T) {
	f := newFixture(t)
	device := model.Device{Name: "edge-router-01", Address: "10.0.0.1"}
	f.mem.Seed(device.Name, "hostname edge-router-01\nbad change\n")
	goldenDay := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	_, err := f.store.Save(device.Name, model.KindRunning, "hostname edge-router-01\ngolden\n", nil, goldenDay)
	require.NoError(t, err)

	ctx := context.Background()

	first, err := f.coord.Rollback(ctx, rollbackRequest([]model.Device{device}), model.SelectorLatest)
	require.NoError(t, err)
	require.Equal(t, 1, first.Counts[model.StatusSucceeded])
	running, _ := f.mem.RunningConfig(device.Name)
	assert.Equal(t, "hostname edge-router-01\ngolden\n", running)

	// The first rollback's safety backup captured "bad change" and is
	// now the newest snapshot; selecting "latest" again restores the
	// bad state. Idempotent recovery pins the date instead.
	snaps, err := f.store.List(device.Name)
	require.NoError(t, err)
	require.Len(t, snaps, 2, "safety backup committed by the first rollback")

	day := model.Selector(goldenDay.Format("2006-01-02"))
	second, err := f.coord.Rollback(ctx, rollbackRequest([]model.Device{device}), day)
	require.NoError(t, err, "re-running a rollback is not an error")
	assert.Equal(t, 1, second.Counts[model.StatusSucceeded])

	running, _ = f.mem.RunningConfig(device.Name)
	assert.Equal(t, "hostname edge-router-01\ngolden\n", running, "second restore is a content no-op")

	snaps, err = f.store.List(device.Name)
	require.NoError(t, err)
	assert.Len(t, snaps, 3, "each rollback takes its own safety backup")
}

func TestRollbackRejectsWrongOperation(t *testing.T) {
	f := newFixture(t)
	req := rollbackRequest([]model.Device{{Name: "edge-router-01", Address: "10.0.0.1"}})
	req.Operation = model.OpBulkUpdate
	_, err := f.coord.Rollback(context.Background(), req, model.SelectorLatest)
	require.Error(t, err)
}

func TestRollbackNeverRollsItselfBack(t *testing.T) {
	f := newFixture(t)
	device := model.Device{Name: "edge-router-01", Address: "10.0.0.1"}
	f.mem.Seed(device.Name, "current\n")
	f.mem.SetRejectApply(device.Name, true)
	_, err := f.store.Save(device.Name, model.KindRunning, "golden\n", nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	req := rollbackRequest([]model.Device{device})
	req.Rollback = model.RollbackAuto // coordinator must override this

	report, err := f.coord.Rollback(context.Background(), req, model.SelectorLatest)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	oc := report.Outcomes[0]
	assert.Equal(t, model.StatusFailed, oc.Status)
	assert.False(t, oc.RollbackAttemptedAndFailed, "no rollback-of-a-rollback was attempted")
}
