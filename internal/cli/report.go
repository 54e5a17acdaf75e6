package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/orchestrator"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect persisted run reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past runs, most recent first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		reports, err := orchestrator.ListReports(app.ws.RunsDir())
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(reports)
			return
		}
		if len(reports) == 0 {
			fmt.Println("No runs recorded.")
			return
		}
		for _, r := range reports {
			halted := ""
			if r.HaltReason != "" {
				halted = "  HALTED: " + string(r.HaltReason)
			}
			fmt.Printf("%s  %s  %-20s %d devices, %d failed%s\n",
				r.RunID.ShortID(), r.StartedAt.Format(time.RFC3339), r.Operation,
				r.TargetCount, r.Failed(), halted)
		}
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run report in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		report, err := orchestrator.LoadReport(app.ws.RunsDir(), args[0])
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(report)
			return
		}
		printReport(report)
		for _, oc := range report.Outcomes {
			backup := "-"
			if oc.Backup != nil {
				backup = string(oc.Backup.Checksum[:12])
			}
			fmt.Printf("  %-30s %-22s batch %d  backup %s\n", oc.Device, oc.Status, oc.Batch, backup)
		}
	},
}

func init() {
	reportCmd.AddCommand(reportListCmd, reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}
