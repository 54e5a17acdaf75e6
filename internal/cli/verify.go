package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetconf-project/fleetconf/internal/verify"
)

var verifyAudit bool

var verifyCmd = &cobra.Command{
	Use:   "verify [device]",
	Short: "Verify stored snapshots against their checksums",
	Long: `Recompute every stored snapshot's SHA-256 checksum and compare it to
the manifest. Mismatches are reported, never repaired. With --audit the
audit log's hash chain is verified as well.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app := requireWorkspace()
		defer app.close()

		verifier := verify.NewVerifier(app.store)
		var results []verify.Result
		var err error
		if len(args) == 1 {
			results, err = verifier.VerifyDevice(args[0])
		} else {
			results, err = verifier.VerifyAll()
		}
		if err != nil {
			fmtErr("%v", err)
			os.Exit(1)
		}

		bad := 0
		for _, r := range results {
			if !r.OK() {
				bad++
			}
		}

		if verifyAudit {
			if err := app.auditor.Verify(); err != nil {
				fmtErr("audit chain: %v", err)
				bad++
			}
		}

		if jsonOutput {
			outputJSON(results)
		} else {
			for _, r := range results {
				if r.OK() {
					continue
				}
				detail := "checksum mismatch"
				if r.DataMissing {
					detail = "data file missing"
				} else if r.Error != "" {
					detail = r.Error
				}
				fmt.Printf("FAIL %s %s %s: %s\n", r.Device, r.Timestamp.Format(time.RFC3339), r.Kind, detail)
			}
			fmt.Printf("Verified %d snapshots, %d bad.\n", len(results), bad)
		}
		if bad > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAudit, "audit", false, "also verify the audit log hash chain")
	rootCmd.AddCommand(verifyCmd)
}
