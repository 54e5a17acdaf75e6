package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fleetconf-project/fleetconf/internal/orchestrator"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

func printPlan(plan *orchestrator.RunPlan) {
	if jsonOutput {
		outputJSON(plan)
		return
	}
	fmt.Printf("Plan: %s across %d devices in %d batches (size %d)\n",
		plan.Operation, plan.TargetCount, len(plan.Batches), plan.BatchSize)
	for i, batch := range plan.Batches {
		fmt.Printf("  batch %d: %s\n", i, strings.Join(batch, ", "))
	}
	if len(plan.Checks) > 0 {
		fmt.Printf("Checks: %s\n", strings.Join(plan.Checks, ", "))
	}
	fmt.Printf("Rollback policy: %s\n", plan.Rollback)
	fmt.Println("Dry run: no device was contacted.")
}

func printReport(report *model.RunReport) {
	if jsonOutput {
		outputJSON(report)
		return
	}

	fmt.Printf("Run %s (%s) finished in %s\n",
		report.RunID.ShortID(), report.Operation, report.Elapsed.Round(1e6))

	statuses := make([]string, 0, len(report.Counts))
	for status := range report.Counts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("  %-22s %d\n", status, report.Counts[model.OutcomeStatus(status)])
	}

	if report.HaltReason != "" {
		fmt.Printf("HALTED after batch %d: %s\n", *report.HaltAfterBatch, report.HaltReason)
	}

	for _, oc := range report.Outcomes {
		switch oc.Status {
		case model.StatusFailed, model.StatusSkippedUnreachable, model.StatusRolledBack:
			fmt.Printf("  %s: %s (%s)\n", oc.Device, oc.Status, oc.Error)
		}
	}

	if needs := report.NeedsIntervention(); len(needs) > 0 {
		fmt.Println()
		fmt.Println("MANUAL INTERVENTION REQUIRED - rollback failed, device state may be inconsistent:")
		for _, oc := range needs {
			fmt.Printf("  !! %s: %s\n", oc.Device, oc.Error)
		}
	}
}
