package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the workspace's configuration templates",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		ids, err := app.renderer().List()
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(ids)
			return
		}
		if len(ids) == 0 {
			fmt.Printf("No templates. Add *.tmpl files under %s.\n", app.ws.TemplatesDir())
			return
		}
		for _, id := range ids {
			fmt.Println(id)
		}
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}
