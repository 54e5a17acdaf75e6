package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/pkg/model"
)

var historyCmd = &cobra.Command{
	Use:   "history [device]",
	Short: "List configuration snapshots, most recent first",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		var snaps []model.Snapshot
		var err error
		if len(args) == 1 {
			snaps, err = app.store.List(args[0])
		} else {
			snaps, err = app.store.ListAll()
		}
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(snaps)
			return
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots.")
			return
		}
		for _, s := range snaps {
			fmt.Printf("%s  %-30s %-8s %8d bytes  %s\n",
				s.Timestamp.Format(time.RFC3339), s.Device, s.Kind, s.SizeBytes, s.Checksum[:12])
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
