package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/rollback"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

var rollbackAt string

var rollbackCmd = &cobra.Command{
	Use:   "rollback <device> [device...]",
	Short: "Restore devices to an earlier configuration snapshot",
	Long: `Restore each named device to the snapshot selected by --at:
"latest" (the default) or a YYYY-MM-DD date, resolving to the newest
snapshot taken on or before that day.

A safety backup of the current configuration is taken before each
restore, so a rollback is itself rollback-able. A device with no
matching snapshot fails on its own; the rest of the run proceeds.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		devices, err := app.inventory().Select(strings.Join(args, ","))
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		req := app.newRequest(model.OpRollback, devices, batchSizeOr(app.cfg.Batches.Rollback))
		req.Rollback = model.RollbackNever
		req.Checks = loadChecks()

		orch := app.orchestrator(len(devices), string(model.OpRollback))
		coord := rollback.NewCoordinator(app.store, orch)
		selector := model.Selector(rollbackAt)

		if runDryRun {
			plan, err := orch.Plan(req)
			if err != nil {
				fmtErr("%v", err)
				os.Exit(1)
			}
			printPlan(plan)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := model.NewRunID()
		var report *model.RunReport
		err = app.withFleetLock(runID, "rollback", runStealLock, func() error {
			var runErr error
			report, runErr = coord.Rollback(ctx, req, selector)
			return runErr
		})
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		printReport(report)
		if report.Failed() > 0 || report.HaltReason != "" {
			os.Exit(1)
		}
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackAt, "at", string(model.SelectorLatest),
		`restore point: "latest" or a YYYY-MM-DD date`)
	rollbackCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "override the configured rollback batch size")
	rollbackCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "plan the run without contacting any device")
	rollbackCmd.Flags().StringVar(&runChecksFile, "checks", "", "YAML file with post-restore checks")
	rollbackCmd.Flags().BoolVar(&runStealLock, "steal-lock", false, "take over an expired fleet lock")
	rootCmd.AddCommand(rollbackCmd)
}
