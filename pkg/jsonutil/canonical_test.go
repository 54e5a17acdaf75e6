package jsonutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/pkg/jsonutil"
)

func TestCanonicalMarshal_SortsKeys(t *testing.T) {
	in := map[string]any{"zebra": 1, "alpha": 2, "mike": 3}
	out, err := jsonutil.CanonicalMarshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mike":3,"zebra":1}`, string(out))
}

func TestCanonicalMarshal_Deterministic(t *testing.T) {
	type record struct {
		Device   string         `json:"device"`
		Details  map[string]any `json:"details"`
		Checksum string         `json:"checksum"`
	}
	in := record{
		Device:   "edge-fw-01",
		Details:  map[string]any{"kind": "running", "bytes": 4096},
		Checksum: "abc",
	}

	first, err := jsonutil.CanonicalMarshal(in)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := jsonutil.CanonicalMarshal(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCanonicalMarshal_NestedStructures(t *testing.T) {
	in := map[string]any{
		"outer": map[string]any{"b": []any{3, 1, "x"}, "a": nil},
	}
	out, err := jsonutil.CanonicalMarshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"outer":{"a":null,"b":[3,1,"x"]}}`, string(out))
}

func TestCanonicalMarshal_Primitives(t *testing.T) {
	out, err := jsonutil.CanonicalMarshal("plain")
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, string(out))

	out, err = jsonutil.CanonicalMarshal(true)
	require.NoError(t, err)
	assert.Equal(t, `true`, string(out))
}

func TestCanonicalMarshal_UnmarshalableValue(t *testing.T) {
	_, err := jsonutil.CanonicalMarshal(make(chan int))
	assert.Error(t, err)
}
