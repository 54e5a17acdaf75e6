// Package verify evaluates post-change compliance checks against live
// devices and audits the backup store's integrity.
package verify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// AppliesTo reports whether a check is in scope for a device: a check
// with no tags applies everywhere, a tagged check only to devices
// carrying at least one of its tags.
func AppliesTo(check model.Check, device model.Device) bool {
	if len(check.Tags) == 0 {
		return true
	}
	for _, tag := range check.Tags {
		if device.HasTag(tag) {
			return true
		}
	}
	return false
}

// RunChecks evaluates every in-scope check over an open session. All
// checks run even after a failure; the verify phase reports the full
// picture, not the first miss.
func RunChecks(ctx context.Context, sess driver.Session, device model.Device, checks []model.Check) ([]model.CheckResult, error) {
	var results []model.CheckResult
	for _, check := range checks {
		if !AppliesTo(check, device) {
			continue
		}
		result, err := runCheck(ctx, sess, check)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func runCheck(ctx context.Context, sess driver.Session, check model.Check) (model.CheckResult, error) {
	result := model.CheckResult{Name: check.Name, Command: check.Command}

	re, err := regexp.Compile(check.Pattern)
	if err != nil {
		return result, fmt.Errorf("check %q: invalid pattern: %w", check.Name, err)
	}

	output, err := sess.Run(ctx, check.Command)
	if err != nil {
		// The command failing to run is a device error, not a check
		// verdict; the caller decides what it means for the change.
		return result, err
	}

	result.Matched = re.MatchString(output)
	if !result.Matched {
		result.Output = truncate(output, 512)
	}
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Failed collects the names of checks that did not match.
func Failed(results []model.CheckResult) []string {
	var names []string
	for _, r := range results {
		if !r.Matched {
			names = append(names, r.Name)
		}
	}
	return names
}

// MismatchError builds the stable verification error for failed checks.
func MismatchError(failed []string) error {
	return errclass.ErrVerificationMismatch.WithMessagef("checks failed: %v", failed)
}
