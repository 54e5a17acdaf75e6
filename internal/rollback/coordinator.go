// Package rollback restores device fleets to an earlier configuration.
// Each device's restore point is resolved independently, a safety
// backup is taken before restoring, and a rollback run never rolls
// itself back.
package rollback

import (
	"context"
	"fmt"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/executor"
	"github.com/fleetconf-project/fleetconf/internal/orchestrator"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Coordinator turns a restore-point selector into a fleet run.
type Coordinator struct {
	store *backupstore.Store
	orch  *orchestrator.Orchestrator
}

// NewCoordinator creates a coordinator over the given store and
// orchestrator.
func NewCoordinator(store *backupstore.Store, orch *orchestrator.Orchestrator) *Coordinator {
	return &Coordinator{store: store, orch: orch}
}

// PayloadFunc resolves each device's restore point lazily. A device
// with no matching snapshot fails on its own; sibling devices with
// valid backups proceed.
func (c *Coordinator) PayloadFunc(selector model.Selector) executor.PayloadFunc {
	return func(device model.Device) (model.Payload, error) {
		snap, err := c.store.Resolve(device.Name, selector)
		if err != nil {
			return model.Payload{}, err
		}
		return model.Payload{Snapshot: snap}, nil
	}
}

// Rollback runs the restore across the request's device set. The
// request's rollback policy is forced to "never": a failed restore is
// surfaced for manual intervention, not answered with another restore.
func (c *Coordinator) Rollback(ctx context.Context, req *model.ChangeRequest, selector model.Selector) (*model.RunReport, error) {
	if req.Operation != model.OpRollback {
		return nil, fmt.Errorf("rollback coordinator got operation %q", req.Operation)
	}
	req.Rollback = model.RollbackNever
	return c.orch.Run(ctx, req, c.PayloadFunc(selector))
}
