package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func devices(n int) []model.Device {
	out := make([]model.Device, n)
	for i := range out {
		out[i] = model.Device{Name: fmt.Sprintf("device-%02d", i)}
	}
	return out
}

func TestPlanPartitions(t *testing.T) {
	batches, err := Plan(devices(23), 10)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 10)
	assert.Len(t, batches[2], 3)

	// Disjoint cover in input order.
	seen := map[string]bool{}
	i := 0
	for _, b := range batches {
		for _, d := range b {
			assert.Equal(t, fmt.Sprintf("device-%02d", i), d.Name, "input order preserved")
			assert.False(t, seen[d.Name], "device appears in exactly one batch")
			seen[d.Name] = true
			i++
		}
	}
	assert.Equal(t, 23, i)
}

func TestPlanExactMultiple(t *testing.T) {
	batches, err := Plan(devices(20), 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 10)
}

func TestPlanSizeLargerThanSet(t *testing.T) {
	batches, err := Plan(devices(3), 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestPlanEmpty(t *testing.T) {
	batches, err := Plan(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestPlanInvalidSize(t *testing.T) {
	_, err := Plan(devices(5), 0)
	require.Error(t, err)
	_, err = Plan(devices(5), -1)
	require.Error(t, err)
}
