package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// MemoryDriver is a deterministic in-process driver. It backs tests,
// dry runs against seeded fixtures, and lab rehearsals; production
// transports implement Driver out of tree.
type MemoryDriver struct {
	mu      sync.Mutex
	devices map[string]*memoryDevice
}

type memoryDevice struct {
	running     string
	startup     string
	info        *model.DeviceInfo
	unreachable bool
	rejectApply bool
	failOnKind  model.SnapshotKind
	commands    map[string]string
	applied     []string
}

// NewMemoryDriver creates an empty in-memory fleet.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{devices: make(map[string]*memoryDevice)}
}

// Seed registers a device with its current running configuration.
func (m *MemoryDriver) Seed(name, runningConfig string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[name] = &memoryDevice{
		running:  runningConfig,
		startup:  runningConfig,
		commands: make(map[string]string),
	}
}

// SetUnreachable marks a device as not answering connections.
func (m *MemoryDriver) SetUnreachable(name string, unreachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.devices[name]; d != nil {
		d.unreachable = unreachable
	}
}

// SetRejectApply makes the device refuse configuration pushes.
func (m *MemoryDriver) SetRejectApply(name string, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.devices[name]; d != nil {
		d.rejectApply = reject
	}
}

// SetGetConfigFailure makes fetching the given kind fail, simulating a
// device that connects but cannot produce its configuration.
func (m *MemoryDriver) SetGetConfigFailure(name string, kind model.SnapshotKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.devices[name]; d != nil {
		d.failOnKind = kind
	}
}

// SetCommandOutput fixes the output of a verification command.
func (m *MemoryDriver) SetCommandOutput(name, command, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.devices[name]; d != nil {
		d.commands[command] = output
	}
}

// SetInfo attaches device metadata returned by Session.Info.
func (m *MemoryDriver) SetInfo(name string, info *model.DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := m.devices[name]; d != nil {
		d.info = info
	}
}

// RunningConfig returns the device's current configuration.
func (m *MemoryDriver) RunningConfig(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[name]
	if !ok {
		return "", false
	}
	return d.running, true
}

// Applied returns every payload pushed to the device, in order.
func (m *MemoryDriver) Applied(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[name]
	if !ok {
		return nil
	}
	out := make([]string, len(d.applied))
	copy(out, d.applied)
	return out
}

// Connect implements Driver.
func (m *MemoryDriver) Connect(ctx context.Context, device model.Device) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errclass.ErrTimeout.WithMessagef("connect %s: %v", device.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[device.Name]
	if !ok || d.unreachable {
		return nil, errclass.ErrUnreachable.WithMessagef("%s (%s) did not respond", device.Name, device.Address)
	}
	return &memorySession{driver: m, name: device.Name}, nil
}

type memorySession struct {
	driver *MemoryDriver
	name   string
	closed bool
}

func (s *memorySession) device() (*memoryDevice, error) {
	if s.closed {
		return nil, fmt.Errorf("session to %s is closed", s.name)
	}
	d, ok := s.driver.devices[s.name]
	if !ok {
		return nil, errclass.ErrUnreachable.WithMessagef("%s vanished mid-session", s.name)
	}
	return d, nil
}

func (s *memorySession) GetConfig(ctx context.Context, kind model.SnapshotKind) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errclass.ErrTimeout.WithMessagef("get-config %s: %v", s.name, err)
	}

	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	d, err := s.device()
	if err != nil {
		return "", err
	}
	if d.failOnKind != "" && d.failOnKind == kind {
		return "", errclass.ErrDriverRejected.WithMessagef("%s refused to export %s config", s.name, kind)
	}
	if kind == model.KindStartup {
		return d.startup, nil
	}
	return d.running, nil
}

func (s *memorySession) Info(ctx context.Context) (*model.DeviceInfo, error) {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	d, err := s.device()
	if err != nil {
		return nil, err
	}
	return d.info, nil
}

func (s *memorySession) Apply(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return errclass.ErrTimeout.WithMessagef("apply %s: %v", s.name, err)
	}

	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	d, err := s.device()
	if err != nil {
		return err
	}
	d.applied = append(d.applied, payload)
	if d.rejectApply {
		return errclass.ErrDriverRejected.WithMessagef("%s rejected configuration", s.name)
	}
	d.running = payload
	return nil
}

func (s *memorySession) Run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errclass.ErrTimeout.WithMessagef("run %s on %s: %v", command, s.name, err)
	}

	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	d, err := s.device()
	if err != nil {
		return "", err
	}
	if out, ok := d.commands[command]; ok {
		return out, nil
	}
	// Default behavior mirrors a "show" against the running config:
	// grep-like lines containing the last token of the command.
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	needle := fields[len(fields)-1]
	var lines []string
	for _, line := range strings.Split(d.running, "\n") {
		if strings.Contains(line, needle) {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (s *memorySession) Close() error {
	s.closed = true
	return nil
}
