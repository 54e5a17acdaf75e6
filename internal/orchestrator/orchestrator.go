// Package orchestrator drives whole-fleet runs: sequential batches,
// parallel devices within a batch, halt on elevated failure rates, and
// a single aggregated run report.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/batch"
	"github.com/fleetconf-project/fleetconf/internal/executor"
	"github.com/fleetconf-project/fleetconf/pkg/logging"
	"github.com/fleetconf-project/fleetconf/pkg/metrics"
	"github.com/fleetconf-project/fleetconf/pkg/model"
	"github.com/fleetconf-project/fleetconf/pkg/progress"
	"github.com/fleetconf-project/fleetconf/pkg/webhook"
)

// Options carries the orchestrator's collaborators. Audit, Metrics,
// Hooks, and Progress are optional; Reports persistence is skipped when
// RunsDir is empty.
type Options struct {
	Executor      *executor.Executor
	Log           *logging.Logger
	HaltThreshold float64

	Audit    Auditor
	Metrics  *metrics.Registry
	Hooks    *webhook.Client
	Progress progress.Callback
	RunsDir  string
}

// Auditor records run-level events. Satisfied by audit.FileAppender.
type Auditor interface {
	Append(eventType model.AuditEventType, runID model.RunID, device string, details map[string]any) error
}

// Orchestrator executes ChangeRequests batch by batch.
type Orchestrator struct {
	opts Options
	now  func() time.Time
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Progress == nil {
		opts.Progress = progress.Noop
	}
	return &Orchestrator{opts: opts, now: time.Now}
}

// RunPlan describes what a run would do, without touching any device.
type RunPlan struct {
	Operation   model.Operation      `json:"operation"`
	TargetCount int                  `json:"target_count"`
	BatchSize   int                  `json:"batch_size"`
	Batches     [][]string           `json:"batches"`
	Checks      []string             `json:"checks,omitempty"`
	Rollback    model.RollbackPolicy `json:"rollback_policy"`
}

// Plan computes the batch schedule for a request. Dry runs stop here.
func (o *Orchestrator) Plan(req *model.ChangeRequest) (*RunPlan, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	batches, err := batch.Plan(req.Devices, req.BatchSize)
	if err != nil {
		return nil, err
	}

	plan := &RunPlan{
		Operation:   req.Operation,
		TargetCount: len(req.Devices),
		BatchSize:   req.BatchSize,
		Rollback:    req.Rollback,
	}
	for _, b := range batches {
		names := make([]string, len(b))
		for i, d := range b {
			names[i] = d.Name
		}
		plan.Batches = append(plan.Batches, names)
	}
	for _, c := range req.Checks {
		plan.Checks = append(plan.Checks, c.Name)
	}
	return plan, nil
}

// Run executes the request and always produces a report, halted or not.
// Per-device failures never surface as the returned error; only setup
// problems (empty target set, bad batch size) do.
func (o *Orchestrator) Run(ctx context.Context, req *model.ChangeRequest, payloadFor executor.PayloadFunc) (*model.RunReport, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	batches, err := batch.Plan(req.Devices, req.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &model.RunReport{
		RunID:       model.NewRunID(),
		Operation:   req.Operation,
		StartedAt:   o.now().UTC(),
		TargetCount: len(req.Devices),
		Counts:      make(map[model.OutcomeStatus]int),
	}
	log := o.opts.Log.WithFields(map[string]any{"run_id": report.RunID.ShortID(), "operation": string(req.Operation)})
	log.Info("run started", map[string]any{"devices": len(req.Devices), "batches": len(batches)})

	o.audit(model.EventTypeRunStart, report.RunID, "", map[string]any{
		"operation": string(req.Operation),
		"devices":   len(req.Devices),
		"batches":   len(batches),
	})
	if o.opts.Hooks != nil {
		o.opts.Hooks.SendRunStarted(report.RunID.String(), string(req.Operation), len(req.Devices), true)
	}

	attempted := 0
	haltedAfter := -1
	for i, devices := range batches {
		// Cancellation stops new batches; it never aborts in-flight
		// device work, so there is a clean outcome for every device
		// that was started.
		if ctx.Err() != nil {
			report.HaltReason = model.HaltCancelled
			haltedAfter = i - 1
			break
		}

		log.Info("batch started", map[string]any{"batch": i, "size": len(devices)})
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordBatch()
		}

		outcomes := o.runBatch(ctx, devices, req, i, payloadFor)
		for _, oc := range outcomes {
			o.recordOutcome(report, oc)
		}
		attempted += len(devices)

		rate := float64(report.Failed()) / float64(attempted)
		if rate > o.opts.HaltThreshold && i < len(batches)-1 {
			log.Error("failure rate exceeded halt threshold, stopping run", map[string]any{
				"rate":      fmt.Sprintf("%.2f", rate),
				"threshold": o.opts.HaltThreshold,
				"batch":     i,
			})
			report.HaltReason = model.HaltFailureRate
			haltedAfter = i
			break
		}
	}

	if report.HaltReason != "" {
		report.HaltAfterBatch = &haltedAfter
		for i := haltedAfter + 1; i < len(batches); i++ {
			for _, d := range batches[i] {
				o.recordOutcome(report, model.ChangeOutcome{
					Device:     d.Name,
					Status:     model.StatusSkippedNotAttempted,
					Batch:      i,
					StartedAt:  o.now().UTC(),
					FinishedAt: o.now().UTC(),
				})
			}
		}
	}

	report.Elapsed = o.now().UTC().Sub(report.StartedAt)
	o.finish(log, req, report)
	return report, nil
}

// runBatch executes every device of one batch concurrently and waits
// for all of them to reach a terminal state.
func (o *Orchestrator) runBatch(ctx context.Context, devices []model.Device, req *model.ChangeRequest, batchIdx int, payloadFor executor.PayloadFunc) []model.ChangeOutcome {
	outcomes := make([]model.ChangeOutcome, len(devices))
	var wg sync.WaitGroup
	for i, device := range devices {
		wg.Add(1)
		go func(i int, device model.Device) {
			defer wg.Done()
			outcomes[i] = o.opts.Executor.Execute(ctx, device, req, batchIdx, payloadFor)
		}(i, device)
	}
	wg.Wait()
	return outcomes
}

// recordOutcome is the single writer of the consolidated result set.
// Counts are kept current here so the halt check after each batch sees
// the failures of the batch that just finished.
func (o *Orchestrator) recordOutcome(report *model.RunReport, oc model.ChangeOutcome) {
	report.Outcomes = append(report.Outcomes, oc)
	report.Counts[oc.Status]++
	o.opts.Progress(string(report.Operation), len(report.Outcomes), report.TargetCount,
		fmt.Sprintf("%s: %s", oc.Device, oc.Status))

	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordOutcome(string(oc.Status), oc.Duration())
		if oc.Backup != nil {
			o.opts.Metrics.RecordSnapshot(true, oc.Backup.SizeBytes)
		}
		if oc.Status == model.StatusRolledBack {
			o.opts.Metrics.RecordRollback(true)
		}
		if oc.RollbackAttemptedAndFailed {
			o.opts.Metrics.RecordRollback(false)
		}
	}
	if oc.Backup != nil {
		o.audit(model.EventTypeBackupCreate, report.RunID, oc.Device, map[string]any{
			"checksum": string(oc.Backup.Checksum),
			"kind":     string(oc.Backup.Kind),
		})
	}
	if oc.Status == model.StatusRolledBack || oc.RollbackAttemptedAndFailed {
		o.audit(model.EventTypeRollback, report.RunID, oc.Device, map[string]any{
			"restored": oc.Status == model.StatusRolledBack,
			"cause":    oc.Error,
		})
	}
	if oc.RollbackAttemptedAndFailed && o.opts.Hooks != nil {
		o.opts.Hooks.SendRollbackFailed(report.RunID.String(), oc.Device, oc.Error, true)
	}
}

func (o *Orchestrator) finish(log *logging.Logger, req *model.ChangeRequest, report *model.RunReport) {
	counts := map[string]int{}
	for status, n := range report.Counts {
		counts[string(status)] = n
	}

	if report.HaltReason != "" {
		log.Warn("run halted", map[string]any{"reason": string(report.HaltReason), "after_batch": *report.HaltAfterBatch})
		o.audit(model.EventTypeRunHalt, report.RunID, "", map[string]any{
			"reason":      string(report.HaltReason),
			"after_batch": *report.HaltAfterBatch,
		})
		if o.opts.Metrics != nil {
			o.opts.Metrics.RecordHalt(string(report.HaltReason))
		}
		if o.opts.Hooks != nil {
			o.opts.Hooks.SendRunHalted(report.RunID.String(), string(req.Operation), string(report.HaltReason), true)
		}
	} else {
		log.Info("run complete", map[string]any{"elapsed": report.Elapsed.String()})
	}

	o.audit(model.EventTypeRunComplete, report.RunID, "", map[string]any{"counts": counts})
	if o.opts.Metrics != nil {
		o.opts.Metrics.RecordRun(string(req.Operation), report.HaltReason != "")
	}
	if o.opts.Hooks != nil {
		o.opts.Hooks.SendRunCompleted(report.RunID.String(), string(req.Operation), counts, true)
	}

	if o.opts.RunsDir != "" {
		if err := SaveReport(o.opts.RunsDir, report); err != nil {
			log.ErrorErr("persist run report", err)
		}
	}
}

func (o *Orchestrator) audit(event model.AuditEventType, runID model.RunID, device string, details map[string]any) {
	if o.opts.Audit == nil {
		return
	}
	if err := o.opts.Audit.Append(event, runID, device, details); err != nil {
		o.opts.Log.ErrorErr("append audit record", err, map[string]any{"event": string(event)})
	}
}

func validate(req *model.ChangeRequest) error {
	if len(req.Devices) == 0 {
		return fmt.Errorf("target device set is empty")
	}
	if req.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", req.BatchSize)
	}
	seen := make(map[string]bool, len(req.Devices))
	for _, d := range req.Devices {
		if seen[d.Name] {
			return fmt.Errorf("device %s appears twice in the target set", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
