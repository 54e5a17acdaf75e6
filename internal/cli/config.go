package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fleetconf-project/fleetconf/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the workspace configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		if jsonOutput {
			outputJSON(app.cfg)
			return
		}
		data, err := yaml.Marshal(app.cfg)
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to .fleetconf/config.yaml",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		if err := config.Save(app.ws.Root, config.Default()); err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		fmt.Println("Wrote default configuration.")
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
