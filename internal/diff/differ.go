// Package diff compares device configuration texts line by line.
package diff

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// ChangeType represents the type of configuration-line change.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
)

// Change is a single line that differs between the two configurations.
type Change struct {
	Line string     `json:"line"`
	Type ChangeType `json:"type"`
}

// Result is the outcome of comparing two configurations of one device.
type Result struct {
	Device       string    `json:"device"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	FromTime     time.Time `json:"from_time,omitempty"`
	ToTime       time.Time `json:"to_time,omitempty"`
	Changes      []*Change `json:"changes"`
	TotalAdded   int       `json:"total_added"`
	TotalRemoved int       `json:"total_removed"`
}

// InSync reports whether the two configurations are identical.
func (r *Result) InSync() bool {
	return r.TotalAdded == 0 && r.TotalRemoved == 0
}

// FormatHuman returns a readable representation of the diff.
func (r *Result) FormatHuman() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Diff %s: %s -> %s\n", r.Device, r.From, r.To))
	if !r.FromTime.IsZero() {
		sb.WriteString(fmt.Sprintf("From: %s\n", r.FromTime.Format("2006-01-02 15:04:05")))
	}
	if !r.ToTime.IsZero() {
		sb.WriteString(fmt.Sprintf("To:   %s\n", r.ToTime.Format("2006-01-02 15:04:05")))
	}
	sb.WriteString("\n")

	if r.InSync() {
		sb.WriteString("No changes.\n")
		return sb.String()
	}

	for _, c := range r.Changes {
		switch c.Type {
		case ChangeAdded:
			sb.WriteString(fmt.Sprintf("  + %s\n", c.Line))
		case ChangeRemoved:
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Line))
		}
	}
	sb.WriteString(fmt.Sprintf("\n%d added, %d removed\n", r.TotalAdded, r.TotalRemoved))

	return sb.String()
}

// Differ compares stored backups with each other and with live devices.
type Differ struct {
	store *backupstore.Store
}

// NewDiffer creates a new Differ over the given backup store.
func NewDiffer(store *backupstore.Store) *Differ {
	return &Differ{store: store}
}

// Snapshots compares two stored backups of a device, resolved by
// selector. Integrity of both snapshots is verified before reading.
func (d *Differ) Snapshots(device string, from, to model.Selector) (*Result, error) {
	fromSnap, err := d.store.Resolve(device, from)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", from, err)
	}
	toSnap, err := d.store.Resolve(device, to)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", to, err)
	}

	fromText, err := d.store.Content(*fromSnap)
	if err != nil {
		return nil, err
	}
	toText, err := d.store.Content(*toSnap)
	if err != nil {
		return nil, err
	}

	result := Lines(fromText, toText)
	result.Device = device
	result.From = string(from)
	result.To = string(to)
	result.FromTime = fromSnap.Timestamp
	result.ToTime = toSnap.Timestamp
	return result, nil
}

// Drift compares a device's most recent backup against its live running
// configuration. An empty result means the device has not drifted since
// the last backup.
func (d *Differ) Drift(ctx context.Context, sess driver.Session, device model.Device) (*Result, error) {
	snap, err := d.store.Resolve(device.Name, model.SelectorLatest)
	if err != nil {
		return nil, err
	}
	stored, err := d.store.Content(*snap)
	if err != nil {
		return nil, err
	}
	live, err := sess.GetConfig(ctx, model.KindRunning)
	if err != nil {
		return nil, fmt.Errorf("fetch running config: %w", err)
	}

	result := Lines(stored, live)
	result.Device = device.Name
	result.From = string(model.SelectorLatest)
	result.To = "live"
	result.FromTime = snap.Timestamp
	return result, nil
}

// Lines computes a line diff between two configuration texts using the
// longest common subsequence. Removed lines precede added lines within
// each changed region.
func Lines(from, to string) *Result {
	a := splitLines(from)
	b := splitLines(to)

	// LCS lengths; configs are small enough for the quadratic table.
	table := make([][]int, len(a)+1)
	for i := range table {
		table[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	result := &Result{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			result.Changes = append(result.Changes, &Change{Line: a[i], Type: ChangeRemoved})
			i++
		default:
			result.Changes = append(result.Changes, &Change{Line: b[j], Type: ChangeAdded})
			j++
		}
	}
	for ; i < len(a); i++ {
		result.Changes = append(result.Changes, &Change{Line: a[i], Type: ChangeRemoved})
	}
	for ; j < len(b); j++ {
		result.Changes = append(result.Changes, &Change{Line: b[j], Type: ChangeAdded})
	}

	for _, c := range result.Changes {
		if c.Type == ChangeAdded {
			result.TotalAdded++
		} else {
			result.TotalRemoved++
		}
	}
	return result
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}
