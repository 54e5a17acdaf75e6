// Package driver defines the transport capability the orchestrator
// consumes. Session handling and vendor command syntax live behind this
// interface; the core never sees them.
package driver

import (
	"context"
	"fmt"

	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Driver opens sessions to devices.
type Driver interface {
	// Connect establishes a session. A device that does not respond
	// within the context deadline yields errclass.ErrUnreachable.
	Connect(ctx context.Context, device model.Device) (Session, error)
}

// Session is an open connection to one device.
type Session interface {
	// GetConfig fetches the device's configuration of the given kind.
	GetConfig(ctx context.Context, kind model.SnapshotKind) (string, error)
	// Info returns optional device metadata. A nil result is valid.
	Info(ctx context.Context) (*model.DeviceInfo, error)
	// Apply replaces the device configuration with payload. Rejection
	// yields errclass.ErrDriverRejected.
	Apply(ctx context.Context, payload string) error
	// Run executes a verification command and returns its output.
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// New returns the driver implementation for the configured kind.
func New(kind string) (Driver, error) {
	switch kind {
	case "memory":
		return NewMemoryDriver(), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", kind)
	}
}
