package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/diff"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

var (
	diffFrom string
	diffTo   string
)

var diffCmd = &cobra.Command{
	Use:   "diff <device>",
	Short: "Compare device configuration snapshots, or a snapshot against the live device",
	Long: `Compare two stored snapshots of a device, or the most recent snapshot
against the device's live running configuration (--to live). A non-empty
live diff means the device has drifted since its last backup.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		name := args[0]
		differ := diff.NewDiffer(app.store)

		var result *diff.Result
		var err error
		if diffTo == "live" {
			dev, ok := app.inventory().Get(name)
			if !ok {
				fmtErr("device %q is not in the inventory", name)
				os.Exit(1)
			}
			ctx, cancel := context.WithTimeout(context.Background(), app.cfg.Timeouts.Reachability)
			defer cancel()
			sess, cerr := app.drv.Connect(ctx, dev)
			if cerr != nil {
				fmtErr("%v", cerr)
				os.Exit(1)
			}
			defer sess.Close()
			result, err = differ.Drift(ctx, sess, dev)
		} else {
			result, err = differ.Snapshots(name, model.Selector(diffFrom), model.Selector(diffTo))
		}
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			fmt.Print(result.FormatHuman())
		}
		if !result.InSync() {
			os.Exit(1)
		}
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffFrom, "from", string(model.SelectorLatest), "snapshot selector for the left side (latest or YYYY-MM-DD)")
	diffCmd.Flags().StringVar(&diffTo, "to", "live", "right side: a snapshot selector, or 'live' for the device's current config")
	rootCmd.AddCommand(diffCmd)
}
