package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fleetconf-project/fleetconf/internal/executor"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

var (
	runBatchSize  int
	runDryRun     bool
	runTags       []string
	runSkipTags   []string
	runChecksFile string
	runStealLock  bool

	updatePayloadFile string
	deployTemplate    string
	enforceTemplate   string
)

var backupCmd = &cobra.Command{
	Use:   "backup [targets]",
	Short: "Snapshot device configurations without changing anything",
	Long: `Take a running-config snapshot of every target device.

Targets select devices from the inventory: a device name, "group:<name>",
"role:<name>", a comma-separated mix, or "all" (the default).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		devices := selectDevices(app, args)
		req := app.newRequest(model.OpBackup, devices, batchSizeOr(app.cfg.Batches.Update))
		executeRun(app, req, executor.MapPayloads(nil))
	},
}

var updateCmd = &cobra.Command{
	Use:   "update [targets]",
	Short: "Push a literal configuration to the target devices",
	Long: `Apply the configuration in --payload-file to every target device,
batch by batch, with a pre-change backup and automatic rollback on
apply or verification failure.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		text, err := os.ReadFile(updatePayloadFile)
		if err != nil {
			fmtErr("read payload: %v", err)
			os.Exit(1)
		}

		devices := selectDevices(app, args)
		req := app.newRequest(model.OpBulkUpdate, devices, batchSizeOr(app.cfg.Batches.Update))
		req.Checks = loadChecks()
		for _, d := range devices {
			req.Payloads[d.Name] = model.Payload{Text: string(text)}
		}
		executeRun(app, req, executor.MapPayloads(req.Payloads))
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy [targets]",
	Short: "Render and push per-device configurations from a template",
	Long: `Render --template once per target device with its inventory
variables (workspace vars, overridden by group vars, overridden by
device vars) and apply the result. Rendering happens before any device
is contacted; an undefined variable aborts the whole run.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()
		runTemplated(app, args, model.OpDeployTemplates, deployTemplate)
	},
}

var enforceCmd = &cobra.Command{
	Use:   "enforce [targets]",
	Short: "Enforce the compliance baseline on the target devices",
	Long: `Render the baseline --template per device, apply it, and verify the
device against the compliance checks. Non-compliant devices are rolled
back to their pre-change snapshot and reported.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()
		runTemplated(app, args, model.OpEnforceCompliance, enforceTemplate)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{backupCmd, updateCmd, deployCmd, enforceCmd} {
		cmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "override the configured batch size")
		cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "plan the run without contacting any device")
		cmd.Flags().StringSliceVar(&runTags, "tags", nil, "only run checks carrying one of these tags")
		cmd.Flags().StringSliceVar(&runSkipTags, "skip-tags", nil, "skip checks carrying one of these tags")
		cmd.Flags().StringVar(&runChecksFile, "checks", "", "YAML file with verification checks")
		cmd.Flags().BoolVar(&runStealLock, "steal-lock", false, "take over an expired fleet lock")
	}
	updateCmd.Flags().StringVar(&updatePayloadFile, "payload-file", "", "file with the configuration to apply")
	updateCmd.MarkFlagRequired("payload-file")
	deployCmd.Flags().StringVar(&deployTemplate, "template", "", "template id to render per device")
	deployCmd.MarkFlagRequired("template")
	enforceCmd.Flags().StringVar(&enforceTemplate, "template", "", "baseline template id")
	enforceCmd.MarkFlagRequired("template")

	rootCmd.AddCommand(backupCmd, updateCmd, deployCmd, enforceCmd)
}

func runTemplated(app *appContext, args []string, op model.Operation, templateID string) {
	inv := app.inventory()
	devices := selectDevices(app, args)
	renderer := app.renderer()

	req := app.newRequest(op, devices, batchSizeOr(app.cfg.Batches.Update))
	req.Checks = loadChecks()
	for _, d := range devices {
		text, err := renderer.Render(templateID, inv.VarsFor(d))
		if err != nil {
			fmtErr("render %s for %s: %v", templateID, d.Name, err)
			os.Exit(1)
		}
		req.Payloads[d.Name] = model.Payload{Text: text}
	}
	executeRun(app, req, executor.MapPayloads(req.Payloads))
}

// selectDevices resolves the target selector argument against the
// inventory. No argument means the whole fleet.
func selectDevices(app *appContext, args []string) []model.Device {
	selector := "all"
	if len(args) == 1 {
		selector = args[0]
	}
	devices, err := app.inventory().Select(selector)
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmtErr("selector %q matches no devices", selector)
		os.Exit(1)
	}
	return devices
}

func batchSizeOr(configured int) int {
	if runBatchSize > 0 {
		return runBatchSize
	}
	return configured
}

func (a *appContext) newRequest(op model.Operation, devices []model.Device, batchSize int) *model.ChangeRequest {
	return &model.ChangeRequest{
		Operation:           op,
		Devices:             devices,
		Payloads:            map[string]model.Payload{},
		BatchSize:           batchSize,
		Rollback:            model.RollbackAuto,
		ReachabilityTimeout: a.cfg.Timeouts.Reachability,
		ApplyTimeout:        a.cfg.Timeouts.Apply,
		VerifyTimeout:       a.cfg.Timeouts.Verify,
	}
}

// loadChecks reads the --checks file and applies --tags/--skip-tags
// filtering.
func loadChecks() []model.Check {
	if runChecksFile == "" {
		return nil
	}
	data, err := os.ReadFile(runChecksFile)
	if err != nil {
		fmtErr("read checks: %v", err)
		os.Exit(1)
	}
	var checks []model.Check
	if err := yaml.Unmarshal(data, &checks); err != nil {
		fmtErr("parse checks: %v", err)
		os.Exit(1)
	}
	return filterChecks(checks, runTags, runSkipTags)
}

func filterChecks(checks []model.Check, tags, skipTags []string) []model.Check {
	var out []model.Check
	for _, c := range checks {
		if len(tags) > 0 && !hasAnyTag(c, tags) {
			continue
		}
		if hasAnyTag(c, skipTags) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasAnyTag(c model.Check, tags []string) bool {
	for _, want := range tags {
		for _, have := range c.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// executeRun is the common tail of every run command: dry-run planning,
// fleet locking, signal-driven cancellation, and report output.
func executeRun(app *appContext, req *model.ChangeRequest, payloadFor executor.PayloadFunc) {
	orch := app.orchestrator(len(req.Devices), string(req.Operation))

	if runDryRun {
		plan, err := orch.Plan(req)
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		printPlan(plan)
		return
	}

	// SIGINT stops new batches; in-flight device work finishes cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := model.NewRunID()
	var report *model.RunReport
	err := app.withFleetLock(runID, string(req.Operation), runStealLock, func() error {
		var runErr error
		report, runErr = orch.Run(ctx, req, payloadFor)
		return runErr
	})
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}

	printReport(report)
	if len(report.NeedsIntervention()) > 0 || report.Failed() > 0 || report.HaltReason != "" {
		os.Exit(1)
	}
}
