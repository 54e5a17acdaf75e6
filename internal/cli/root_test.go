package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func executeCommand(args ...string) (stdout string, err error) {
	// Capture os.Stdout since the CLI uses fmt.Printf directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err = rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func setupWorkspace(t *testing.T) string {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(originalWd)
	})

	jsonOutput = false
	runDryRun = false
	runBatchSize = 0
	_, err := executeCommand("init")
	require.NoError(t, err)
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand("--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ordered batches")
}

func TestInitCommand_CreatesWorkspace(t *testing.T) {
	dir := setupWorkspace(t)

	_, err := os.Stat(filepath.Join(dir, ".fleetconf", "format_version"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "backups"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "inventory.yaml"))
	assert.NoError(t, err)
}

func TestInitCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(originalWd)
	})

	stdout, err := executeCommand("--json", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "workspace_id")
	jsonOutput = false
}

func TestConfigShow(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "driver: memory")
	assert.Contains(t, stdout, "failure_rate_threshold")
}

func TestHistoryCommand_Empty(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No snapshots.")
}

func TestDoctorCommand_Healthy(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("doctor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "healthy")
}

func TestTemplatesCommand_Empty(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("templates")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No templates.")
}

func TestReportList_Empty(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("report", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded.")
}

func TestPrunePlan_EmptyStore(t *testing.T) {
	setupWorkspace(t)

	stdout, err := executeCommand("prune", "plan")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 snapshots deletable")
}

func TestBackupCommand_DryRun(t *testing.T) {
	dir := setupWorkspace(t)

	inv := `devices:
  - name: edge-router-01
    address: 203.0.113.10
    role: router
  - name: edge-router-02
    address: 203.0.113.11
    role: router
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.yaml"), []byte(inv), 0644))

	stdout, err := executeCommand("backup", "--dry-run", "--batch-size", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "edge-router-01")
	assert.Contains(t, stdout, "edge-router-02")
	runDryRun = false
	runBatchSize = 0
}

func TestBackupCommand_UnreachableFleet(t *testing.T) {
	dir := setupWorkspace(t)

	// The memory driver has no seeded devices, so the whole fleet is
	// unreachable. That is not a failure, so the run completes.
	inv := `devices:
  - name: edge-router-01
    address: 203.0.113.10
    role: router
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inventory.yaml"), []byte(inv), 0644))

	stdout, err := executeCommand("backup", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stdout, "skipped-unreachable")

	// No backup was taken for the unreachable device.
	reportsDir := filepath.Join(dir, ".fleetconf", "runs")
	entries, err := os.ReadDir(reportsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	noProgress = false
}

func TestOutputJSON(t *testing.T) {
	jsonOutput = true
	assert.NoError(t, outputJSON(map[string]string{"test": "value"}))

	jsonOutput = false
	assert.NoError(t, outputJSON(map[string]string{"test": "value"}))
}

func TestFmtErr(t *testing.T) {
	fmtErr("probe error: %s", "detail")
}

func TestFilterChecks(t *testing.T) {
	checks := []model.Check{
		{Name: "ntp-sync", Tags: []string{"safety"}},
		{Name: "bgp-neighbors", Tags: []string{"routing"}},
		{Name: "hostname", Tags: nil},
	}

	out := filterChecks(checks, nil, nil)
	assert.Len(t, out, 3)

	out = filterChecks(checks, []string{"safety"}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "ntp-sync", out[0].Name)

	out = filterChecks(checks, nil, []string{"routing"})
	require.Len(t, out, 2)
	assert.Equal(t, "ntp-sync", out[0].Name)
	assert.Equal(t, "hostname", out[1].Name)

	out = filterChecks(checks, []string{"safety", "routing"}, []string{"routing"})
	require.Len(t, out, 1)
	assert.Equal(t, "ntp-sync", out[0].Name)
}

func TestHasAnyTag(t *testing.T) {
	c := model.Check{Name: "ntp-sync", Tags: []string{"safety", "time"}}
	assert.True(t, hasAnyTag(c, []string{"safety"}))
	assert.True(t, hasAnyTag(c, []string{"routing", "time"}))
	assert.False(t, hasAnyTag(c, []string{"routing"}))
	assert.False(t, hasAnyTag(c, nil))
}

func TestBatchSizeOr(t *testing.T) {
	runBatchSize = 0
	assert.Equal(t, 10, batchSizeOr(10))
	runBatchSize = 3
	assert.Equal(t, 3, batchSizeOr(10))
	runBatchSize = 0
}
