// Package executor runs the per-device change state machine:
// reachability check, backup, apply, verify, and rollback on failure.
// Every path through the machine ends in exactly one ChangeOutcome.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/internal/verify"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/logging"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// PayloadFunc resolves the desired configuration for one device at
// execution time. Rollback runs resolve their restore point here, so a
// missing backup surfaces as that device's failure, not the run's.
type PayloadFunc func(device model.Device) (model.Payload, error)

// MapPayloads builds a PayloadFunc over a staged payload map.
func MapPayloads(payloads map[string]model.Payload) PayloadFunc {
	return func(device model.Device) (model.Payload, error) {
		p, ok := payloads[device.Name]
		if !ok {
			return model.Payload{}, fmt.Errorf("no payload staged for %s", device.Name)
		}
		return p, nil
	}
}

// Executor executes the state machine for single devices. Safe for
// concurrent use; per-device state lives on the stack of Execute.
type Executor struct {
	driver driver.Driver
	store  *backupstore.Store
	log    *logging.Logger
	now    func() time.Time
}

// New creates an executor over the given driver and backup store.
func New(drv driver.Driver, store *backupstore.Store, log *logging.Logger) *Executor {
	return &Executor{driver: drv, store: store, log: log, now: time.Now}
}

// Execute drives one device to a terminal state. The returned outcome is
// the device's single, final record for this run; Execute never returns
// an error because every failure is a terminal state of the machine.
func (e *Executor) Execute(ctx context.Context, device model.Device, req *model.ChangeRequest, batch int, payloadFor PayloadFunc) (outcome model.ChangeOutcome) {
	outcome = model.ChangeOutcome{
		Device:    device.Name,
		Batch:     batch,
		StartedAt: e.now().UTC(),
	}
	defer func() {
		outcome.FinishedAt = e.now().UTC()
	}()
	log := e.log.WithFields(map[string]any{"device": device.Name, "batch": batch})

	// Run-level cancellation stops new batches, not devices already in
	// flight: a device that has started runs to a terminal state so it is
	// never left with a half-applied configuration. Per-operation
	// timeouts below still bound every call.
	ctx = context.WithoutCancel(ctx)

	// Resolve the payload before touching the device. For rollback runs
	// this is where a missing restore point fails the device.
	var payload model.Payload
	if req.ApplyPayloads() {
		var err error
		payload, err = payloadFor(device)
		if err != nil {
			log.ErrorErr("payload resolution failed", err)
			return e.fail(outcome, err)
		}
	}

	// CheckingReachability
	connectCtx, cancel := context.WithTimeout(ctx, req.ReachabilityTimeout)
	sess, err := e.driver.Connect(connectCtx, device)
	cancel()
	if err != nil {
		log.Warn("device unreachable, skipping", map[string]any{"error": err.Error()})
		outcome.Status = model.StatusSkippedUnreachable
		outcome.Error = err.Error()
		outcome.ErrorClass = errclass.ErrUnreachable.Code
		return outcome
	}
	defer sess.Close()

	// BackingUp. A failure here is terminal: no change is ever applied
	// without a durable pre-image.
	snap, err := e.store.Capture(ctx, sess, device, model.KindRunning)
	if err != nil {
		log.ErrorErr("backup failed", err)
		return e.fail(outcome, err)
	}
	outcome.Backup = snap
	log.Info("backup committed", map[string]any{"checksum": string(snap.Checksum)})

	if !req.ApplyPayloads() {
		outcome.Status = model.StatusSucceeded
		return outcome
	}

	text, err := e.payloadText(payload)
	if err != nil {
		log.ErrorErr("payload content unavailable", err)
		return e.fail(outcome, err)
	}

	// Applying
	if err := e.apply(ctx, sess, text, req.ApplyTimeout); err != nil {
		log.ErrorErr("apply rejected", err)
		return e.rollbackOrFail(ctx, log, sess, req, snap, outcome, err)
	}

	// Verifying. A device that accepted a bad config but fails its
	// health checks is treated exactly like an apply failure.
	checks, err := e.runChecks(ctx, sess, device, req)
	outcome.Checks = checks
	if err != nil {
		log.ErrorErr("verification failed", err)
		return e.rollbackOrFail(ctx, log, sess, req, snap, outcome, err)
	}

	log.Info("change succeeded")
	outcome.Status = model.StatusSucceeded
	return outcome
}

func (e *Executor) payloadText(payload model.Payload) (string, error) {
	if payload.Snapshot != nil {
		return e.store.Content(*payload.Snapshot)
	}
	return payload.Text, nil
}

func (e *Executor) apply(ctx context.Context, sess driver.Session, text string, timeout time.Duration) error {
	applyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sess.Apply(applyCtx, text)
}

func (e *Executor) runChecks(ctx context.Context, sess driver.Session, device model.Device, req *model.ChangeRequest) ([]model.CheckResult, error) {
	if len(req.Checks) == 0 {
		return nil, nil
	}
	verifyCtx, cancel := context.WithTimeout(ctx, req.VerifyTimeout)
	defer cancel()

	results, err := verify.RunChecks(verifyCtx, sess, device, req.Checks)
	if err != nil {
		return results, err
	}
	if failed := verify.Failed(results); len(failed) > 0 {
		return results, verify.MismatchError(failed)
	}
	return results, nil
}

// rollbackOrFail handles the failure edge out of Applying and Verifying.
// With an auto-rollback policy and a committed backup, the pre-change
// snapshot is re-applied; otherwise the failure is terminal as-is.
func (e *Executor) rollbackOrFail(ctx context.Context, log *logging.Logger, sess driver.Session, req *model.ChangeRequest, snap *model.Snapshot, outcome model.ChangeOutcome, cause error) model.ChangeOutcome {
	if req.Rollback != model.RollbackAuto || snap == nil {
		return e.fail(outcome, cause)
	}

	log.Warn("rolling back to pre-change snapshot", map[string]any{
		"snapshot": snap.Timestamp.Format(time.RFC3339),
		"cause":    cause.Error(),
	})

	text, err := e.store.Content(*snap)
	if err == nil {
		err = e.apply(ctx, sess, text, req.ApplyTimeout)
	}
	if err != nil {
		// The one unrecoverable-locally condition: the device may hold
		// an inconsistent configuration. Escalate, never downgrade.
		log.Error("rollback failed, device needs manual intervention", map[string]any{"error": err.Error()})
		outcome = e.fail(outcome, errclass.ErrRollbackFailed.WithMessagef("after %v: %v", cause, err))
		outcome.RollbackAttemptedAndFailed = true
		return outcome
	}

	log.Info("rolled back")
	outcome.Status = model.StatusRolledBack
	outcome.Error = cause.Error()
	outcome.ErrorClass = errclass.CodeOf(cause)
	return outcome
}

func (e *Executor) fail(outcome model.ChangeOutcome, err error) model.ChangeOutcome {
	outcome.Status = model.StatusFailed
	outcome.Error = err.Error()
	outcome.ErrorClass = errclass.CodeOf(err)
	return outcome
}
