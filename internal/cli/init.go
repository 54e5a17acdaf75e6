package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a fleetconf workspace",
	Long: `Create the workspace control directory, a default configuration,
an empty device inventory, and the backup store layout. Defaults to the
current directory.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}

		ws, err := workspace.Init(path)
		if err != nil {
			fmtErr("init workspace: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]string{
				"root":         ws.Root,
				"workspace_id": ws.WorkspaceID,
			})
			return
		}
		fmt.Printf("Initialized fleetconf workspace at %s\n", ws.Root)
		fmt.Printf("Edit %s to declare your devices.\n", ws.InventoryPath())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
