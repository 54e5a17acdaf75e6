package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/prune"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy to the backup store",
	Long: `Pruning is two-phase: "prune plan" records exactly which snapshots
the retention policy allows deleting, and "prune run <plan-id>" executes
a plan after revalidating it. The newest snapshot of every device is
always kept.`,
}

var prunePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and persist a prune plan without deleting anything",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		plan, err := app.pruner().Plan()
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		app.auditor.Append(model.EventTypePrunePlan, "", "", map[string]any{
			"plan_id":   plan.PlanID,
			"to_delete": len(plan.ToDelete),
		})

		if jsonOutput {
			outputJSON(plan)
			return
		}
		fmt.Printf("Plan %s: %d snapshots deletable (%d bytes), %d protected\n",
			plan.PlanID, len(plan.ToDelete), plan.EstimatedBytes, len(plan.Protected))
		for _, s := range plan.ToDelete {
			fmt.Printf("  delete %s %s %s\n", s.Device, s.Timestamp.Format(time.RFC3339), s.Kind)
		}
		if len(plan.ToDelete) > 0 {
			fmt.Printf("Run 'fleetconf prune run %s' to execute.\n", plan.PlanID)
		}
	},
}

var pruneRunCmd = &cobra.Command{
	Use:   "run <plan-id>",
	Short: "Execute a previously written prune plan",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		runID := model.NewRunID()
		err := app.withFleetLock(runID, "prune", runStealLock, func() error {
			app.auditor.Append(model.EventTypePruneRun, runID, "", map[string]any{"plan_id": args[0]})
			deleted, freed, err := app.pruner().Run(args[0])
			if err != nil {
				return err
			}
			if app.hooks != nil {
				app.hooks.SendPruneComplete(deleted, freed, true)
			}
			if jsonOutput {
				outputJSON(map[string]any{"deleted": deleted, "freed_bytes": freed})
			} else {
				fmt.Printf("Deleted %d snapshots, freed %d bytes.\n", deleted, freed)
			}
			return nil
		})
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
	},
}

func (a *appContext) pruner() *prune.Pruner {
	policy := model.RetentionPolicy{
		KeepMinSnapshots: a.cfg.Retention.KeepMinSnapshots,
		KeepMinAge:       a.cfg.KeepMinAge(),
	}
	return prune.NewPruner(a.store, a.ws.PruneDir(), policy, a.log)
}

func init() {
	pruneRunCmd.Flags().BoolVar(&runStealLock, "steal-lock", false, "take over an expired fleet lock")
	pruneCmd.AddCommand(prunePlanCmd, pruneRunCmd)
	rootCmd.AddCommand(pruneCmd)
}
