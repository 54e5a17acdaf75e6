package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/pkg/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 10, cfg.Batches.Update)
	assert.Equal(t, 20, cfg.Batches.Verify)
	assert.Equal(t, 5, cfg.Batches.Rollback)
	assert.InDelta(t, 0.20, cfg.Halt.FailureRateThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Reachability)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.Verify)
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".fleetconf")
	require.NoError(t, os.MkdirAll(cfgDir, 0755))
	yaml := `
batches:
  update: 25
halt:
  failure_rate_threshold: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Batches.Update)
	assert.InDelta(t, 0.5, cfg.Halt.FailureRateThreshold, 1e-9)
	// Untouched values keep defaults
	assert.Equal(t, 5, cfg.Batches.Rollback)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, ".fleetconf")
	require.NoError(t, os.MkdirAll(cfgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("batches: ["), 0644))

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Batches.Update = 0
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Halt.FailureRateThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Retention.KeepMinAge = "sideways"
	assert.Error(t, cfg.Validate())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Driver = "lab"
	cfg.Batches.Update = 7

	require.NoError(t, config.Save(dir, cfg))

	loaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "lab", loaded.Driver)
	assert.Equal(t, 7, loaded.Batches.Update)
}

func TestKeepMinAge(t *testing.T) {
	cfg := config.Default()
	cfg.Retention.KeepMinAge = "48h"
	assert.Equal(t, 48*time.Hour, cfg.KeepMinAge())

	cfg.Retention.KeepMinAge = ""
	assert.Equal(t, 7*24*time.Hour, cfg.KeepMinAge())
}
