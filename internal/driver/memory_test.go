package driver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func dev(name string) model.Device {
	return model.Device{Name: name, Address: "203.0.113.1"}
}

func TestNew_KnownAndUnknown(t *testing.T) {
	d, err := driver.New("memory")
	require.NoError(t, err)
	assert.NotNil(t, d)

	_, err = driver.New("telepathy")
	assert.Error(t, err)
}

func TestConnect_UnseededDeviceUnreachable(t *testing.T) {
	m := driver.NewMemoryDriver()
	_, err := m.Connect(context.Background(), dev("ghost"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrUnreachable))
}

func TestConnect_MarkedUnreachable(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")
	m.SetUnreachable("sw1", true)

	_, err := m.Connect(context.Background(), dev("sw1"))
	assert.True(t, errors.Is(err, errclass.ErrUnreachable))

	m.SetUnreachable("sw1", false)
	_, err = m.Connect(context.Background(), dev("sw1"))
	assert.NoError(t, err)
}

func TestConnect_ExpiredContext(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := m.Connect(ctx, dev("sw1"))
	assert.True(t, errors.Is(err, errclass.ErrTimeout))
}

func TestGetConfig_Kinds(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1\nntp server 10.10.0.1")

	sess, err := m.Connect(context.Background(), dev("sw1"))
	require.NoError(t, err)
	defer sess.Close()

	running, err := sess.GetConfig(context.Background(), model.KindRunning)
	require.NoError(t, err)
	assert.Contains(t, running, "ntp server")

	startup, err := sess.GetConfig(context.Background(), model.KindStartup)
	require.NoError(t, err)
	assert.Equal(t, running, startup)
}

func TestGetConfig_InjectedFailure(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")
	m.SetGetConfigFailure("sw1", model.KindRunning)

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	_, err := sess.GetConfig(context.Background(), model.KindRunning)
	assert.True(t, errors.Is(err, errclass.ErrDriverRejected))
}

func TestApply_UpdatesRunningConfig(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	require.NoError(t, sess.Apply(context.Background(), "hostname sw1\nntp server 10.10.0.2"))

	got, ok := m.RunningConfig("sw1")
	require.True(t, ok)
	assert.Contains(t, got, "10.10.0.2")
	assert.Len(t, m.Applied("sw1"), 1)
}

func TestApply_Rejected(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")
	m.SetRejectApply("sw1", true)

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	err := sess.Apply(context.Background(), "bad config")
	require.True(t, errors.Is(err, errclass.ErrDriverRejected))

	// Rejection leaves the running config untouched
	got, _ := m.RunningConfig("sw1")
	assert.Equal(t, "hostname sw1", got)
	// But the attempt is recorded
	assert.Len(t, m.Applied("sw1"), 1)
}

func TestRun_FixedOutput(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")
	m.SetCommandOutput("sw1", "show ntp associations", "*10.10.0.1 synced")

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	out, err := sess.Run(context.Background(), "show ntp associations")
	require.NoError(t, err)
	assert.Equal(t, "*10.10.0.1 synced", out)
}

func TestRun_DefaultGrepsRunningConfig(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1\nntp server 10.10.0.1\nntp server 10.10.0.2")

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	out, err := sess.Run(context.Background(), "show run | include ntp")
	require.NoError(t, err)
	assert.Contains(t, out, "10.10.0.1")
	assert.Contains(t, out, "10.10.0.2")
}

func TestSession_UseAfterClose(t *testing.T) {
	m := driver.NewMemoryDriver()
	m.Seed("sw1", "hostname sw1")

	sess, _ := m.Connect(context.Background(), dev("sw1"))
	require.NoError(t, sess.Close())

	_, err := sess.GetConfig(context.Background(), model.KindRunning)
	assert.Error(t, err)
}
