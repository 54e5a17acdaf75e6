package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func TestAppliesTo(t *testing.T) {
	router := model.Device{Name: "edge-router-01", Tags: []string{"edge", "ntp"}}
	plain := model.Device{Name: "core-switch-01"}

	assert.True(t, AppliesTo(model.Check{Name: "any"}, plain), "untagged check applies everywhere")
	assert.True(t, AppliesTo(model.Check{Name: "ntp", Tags: []string{"ntp"}}, router))
	assert.False(t, AppliesTo(model.Check{Name: "ntp", Tags: []string{"ntp"}}, plain))
	assert.True(t, AppliesTo(model.Check{Name: "either", Tags: []string{"dc", "edge"}}, router), "any matching tag suffices")
}

func TestRunChecks(t *testing.T) {
	mem := driver.NewMemoryDriver()
	mem.Seed("edge-router-01", "hostname edge-router-01\nntp server 10.0.0.1\n")
	mem.SetCommandOutput("edge-router-01", "show ntp status", "synchronized to 10.0.0.1")

	ctx := context.Background()
	device := model.Device{Name: "edge-router-01", Address: "10.0.0.1", Tags: []string{"ntp"}}
	sess, err := mem.Connect(ctx, device)
	require.NoError(t, err)
	defer sess.Close()

	checks := []model.Check{
		{Name: "ntp-synced", Command: "show ntp status", Pattern: `synchronized`, Tags: []string{"ntp"}},
		{Name: "ntp-configured", Command: "ntp server", Pattern: `ntp server 10\.0\.0\.1`},
		{Name: "has-dns", Command: "dns server", Pattern: `dns server`},
		{Name: "out-of-scope", Command: "irrelevant", Pattern: `x`, Tags: []string{"dc"}},
	}

	results, err := RunChecks(ctx, sess, device, checks)
	require.NoError(t, err)
	require.Len(t, results, 3, "out-of-scope check skipped")

	assert.True(t, results[0].Matched)
	assert.True(t, results[1].Matched, "default command searches the running config")
	assert.False(t, results[2].Matched)

	failed := Failed(results)
	assert.Equal(t, []string{"has-dns"}, failed)
}

func TestRunChecksInvalidPattern(t *testing.T) {
	mem := driver.NewMemoryDriver()
	mem.Seed("edge-router-01", "cfg\n")

	ctx := context.Background()
	device := model.Device{Name: "edge-router-01", Address: "10.0.0.1"}
	sess, err := mem.Connect(ctx, device)
	require.NoError(t, err)
	defer sess.Close()

	_, err = RunChecks(ctx, sess, device, []model.Check{{Name: "bad", Command: "c", Pattern: `[`}})
	require.Error(t, err)
}

func TestVerifierVerifyAll(t *testing.T) {
	store := backupstore.New(filepath.Join(t.TempDir(), "backups"))
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	good, err := store.Save("edge-router-01", model.KindRunning, "good\n", nil, day)
	require.NoError(t, err)
	bad, err := store.Save("edge-router-01", model.KindRunning, "bad\n", nil, day.Add(time.Hour))
	require.NoError(t, err)
	missing, err := store.Save("core-switch-01", model.KindRunning, "missing\n", nil, day)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(bad.Path, []byte("altered\n"), 0644))
	require.NoError(t, os.Remove(missing.Path))

	v := NewVerifier(store)
	results, err := v.VerifyAll()
	require.NoError(t, err)
	require.Len(t, results, 3)

	byKey := map[string]Result{}
	for _, r := range results {
		byKey[r.Device+"/"+r.Timestamp.Format(time.RFC3339)] = r
	}

	assert.True(t, byKey["edge-router-01/"+good.Timestamp.Format(time.RFC3339)].OK())
	tampered := byKey["edge-router-01/"+bad.Timestamp.Format(time.RFC3339)]
	assert.False(t, tampered.OK())
	assert.False(t, tampered.ChecksumValid)
	gone := byKey["core-switch-01/"+missing.Timestamp.Format(time.RFC3339)]
	assert.False(t, gone.OK())
	assert.True(t, gone.DataMissing)
}
