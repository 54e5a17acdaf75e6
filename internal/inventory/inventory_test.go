package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/internal/inventory"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

const fleetYAML = `
vars:
  domain: example.net
group_vars:
  nyc:
    ntp_server: 10.10.0.1
  tokyo:
    ntp_server: 10.20.0.1
devices:
  - name: core-router-nyc-01
    address: 10.0.0.1
    role: core
    groups: [nyc, routers]
  - name: edge-fw-nyc-01
    address: 10.0.0.2
    role: edge
    groups: [nyc]
  - name: access-switch-tokyo-05
    address: 10.1.0.5
    role: access
    groups: [tokyo]
    vars:
      ntp_server: 10.20.0.99
`

func mustParse(t *testing.T) *inventory.Inventory {
	t.Helper()
	inv, err := inventory.Parse([]byte(fleetYAML))
	require.NoError(t, err)
	return inv
}

func TestParse_Valid(t *testing.T) {
	inv := mustParse(t)
	require.Len(t, inv.Devices, 3)

	d, ok := inv.Get("core-router-nyc-01")
	require.True(t, ok)
	assert.Equal(t, model.DeviceRole("core"), d.Role)
	assert.True(t, d.InGroup("routers"))
}

func TestParse_DuplicateDevice(t *testing.T) {
	doc := `
devices:
  - name: sw1
    address: 10.0.0.1
  - name: sw1
    address: 10.0.0.2
`
	_, err := inventory.Parse([]byte(doc))
	assert.ErrorContains(t, err, "duplicate device")
}

func TestParse_MissingAddress(t *testing.T) {
	doc := "devices:\n  - name: sw1\n"
	_, err := inventory.Parse([]byte(doc))
	assert.ErrorContains(t, err, "no address")
}

func TestParse_InvalidName(t *testing.T) {
	doc := "devices:\n  - name: bad/name\n    address: 10.0.0.1\n"
	_, err := inventory.Parse([]byte(doc))
	assert.Error(t, err)
}

func TestSelect_All(t *testing.T) {
	inv := mustParse(t)
	devices, err := inv.Select("all")
	require.NoError(t, err)
	require.Len(t, devices, 3)
	// Inventory order preserved
	assert.Equal(t, "core-router-nyc-01", devices[0].Name)
	assert.Equal(t, "access-switch-tokyo-05", devices[2].Name)
}

func TestSelect_Group(t *testing.T) {
	inv := mustParse(t)
	devices, err := inv.Select("group:nyc")
	require.NoError(t, err)
	require.Len(t, devices, 2)
}

func TestSelect_Role(t *testing.T) {
	inv := mustParse(t)
	devices, err := inv.Select("role:access")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "access-switch-tokyo-05", devices[0].Name)
}

func TestSelect_SingleDevice(t *testing.T) {
	inv := mustParse(t)
	devices, err := inv.Select("edge-fw-nyc-01")
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func TestSelect_CommaSeparatedDeduplicates(t *testing.T) {
	inv := mustParse(t)
	devices, err := inv.Select("group:nyc,core-router-nyc-01")
	require.NoError(t, err)
	// core-router appears in both terms but only once in the result
	require.Len(t, devices, 2)
}

func TestSelect_UnknownDeviceSuggests(t *testing.T) {
	inv := mustParse(t)
	_, err := inv.Select("core-router")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core-router-nyc-01")
}

func TestSelect_EmptyGroup(t *testing.T) {
	inv := mustParse(t)
	_, err := inv.Select("group:nowhere")
	assert.Error(t, err)
}

func TestVarsFor_MergeOrder(t *testing.T) {
	inv := mustParse(t)

	core, _ := inv.Get("core-router-nyc-01")
	vars := inv.VarsFor(core)
	assert.Equal(t, "example.net", vars["domain"])
	assert.Equal(t, "10.10.0.1", vars["ntp_server"])

	// Device vars override group vars
	tokyo, _ := inv.Get("access-switch-tokyo-05")
	vars = inv.VarsFor(tokyo)
	assert.Equal(t, "10.20.0.99", vars["ntp_server"])
}
