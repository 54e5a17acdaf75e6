package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/doctor"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check workspace health",
	Long: `Check the workspace for problems: store inconsistencies (phantom or
missing snapshot files), stale fleet locks, interrupted writes, and a
broken audit chain. With --strict every snapshot checksum is
recomputed, which reads the whole backup store.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		result, err := doctor.NewDoctor(app.ws, app.store).Check(doctorStrict)
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
		} else if result.Healthy && len(result.Findings) == 0 {
			fmt.Println("Workspace is healthy.")
		} else {
			for _, f := range result.Findings {
				line := fmt.Sprintf("[%s] %s: %s", f.Severity, f.Category, f.Description)
				if f.Path != "" {
					line += " (" + f.Path + ")"
				}
				fmt.Println(line)
			}
		}
		if !result.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "recompute every snapshot checksum")
	rootCmd.AddCommand(doctorCmd)
}
