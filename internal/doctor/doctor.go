// Package doctor runs workspace health checks: store consistency,
// snapshot integrity, lock state, and the audit chain.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetconf-project/fleetconf/internal/audit"
	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/lock"
	"github.com/fleetconf-project/fleetconf/internal/verify"
	"github.com/fleetconf-project/fleetconf/internal/workspace"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Finding is one detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result aggregates all findings of one check pass.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs workspace health checks.
type Doctor struct {
	ws    *workspace.Workspace
	store *backupstore.Store
}

// NewDoctor creates a doctor for the given workspace.
func NewDoctor(ws *workspace.Workspace, store *backupstore.Store) *Doctor {
	return &Doctor{ws: ws, store: store}
}

// Check runs all diagnostics. Strict mode additionally recomputes every
// snapshot checksum, which reads the whole store.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true}

	d.checkFormatVersion(result)
	d.checkStoreConsistency(result)
	d.checkExpiredLock(result)
	d.checkOrphanTmp(result)
	d.checkAuditChain(result)
	if strict {
		d.checkSnapshotIntegrity(result)
	}

	for _, f := range result.Findings {
		if f.Severity != "warning" {
			result.Healthy = false
		}
	}
	return result, nil
}

func (d *Doctor) checkFormatVersion(result *Result) {
	path := filepath.Join(d.ws.ControlDir(), workspace.FormatVersionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "format",
			Description: "format_version file missing or unreadable",
			Severity:    "critical",
			Path:        path,
		})
		return
	}
	var version int
	fmt.Sscanf(string(data), "%d", &version)
	if version > workspace.FormatVersion {
		result.Findings = append(result.Findings, Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", version, workspace.FormatVersion),
			Severity:    "critical",
		})
	}
}

// checkStoreConsistency cross-references manifests and data files:
// a data file without a manifest line is a phantom (interrupted backup),
// a manifest line without its data file means lost snapshots.
func (d *Doctor) checkStoreConsistency(result *Result) {
	dates, err := d.store.DateDirs()
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "store",
			Description: fmt.Sprintf("cannot list backup store: %v", err),
			Severity:    "error",
		})
		return
	}

	committed := map[string]bool{}
	snaps, err := d.store.ListAll()
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "store",
			Description: fmt.Sprintf("cannot read manifests: %v", err),
			Severity:    "critical",
		})
		return
	}
	for _, s := range snaps {
		committed[s.Path] = true
		if _, err := os.Stat(s.Path); os.IsNotExist(err) {
			result.Findings = append(result.Findings, Finding{
				Category:    "store",
				Description: fmt.Sprintf("manifest lists %s %s but the data file is missing", s.Device, s.Timestamp.Format("2006-01-02T15:04:05Z")),
				Severity:    "critical",
				Path:        s.Path,
			})
		}
	}

	for _, date := range dates {
		dateDir := filepath.Join(d.store.Root(), date)
		entries, err := os.ReadDir(dateDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".cfg") {
				continue
			}
			path := filepath.Join(dateDir, name)
			if !committed[path] {
				result.Findings = append(result.Findings, Finding{
					Category:    "store",
					Description: "phantom data file without a manifest entry (interrupted backup)",
					Severity:    "warning",
					Path:        path,
				})
			}
		}
	}
}

func (d *Doctor) checkExpiredLock(result *Result) {
	mgr := lock.NewManager(d.ws.LocksDir(), model.LockPolicy{})
	state, rec, err := mgr.Status()
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "lock",
			Description: fmt.Sprintf("cannot read fleet lock: %v", err),
			Severity:    "error",
		})
		return
	}
	if state == model.LockStateExpired {
		result.Findings = append(result.Findings, Finding{
			Category:    "lock",
			Description: fmt.Sprintf("fleet lock held by run %s has expired; the run likely crashed", rec.RunID.ShortID()),
			Severity:    "warning",
			Path:        filepath.Join(d.ws.LocksDir(), "fleet.json"),
		})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	for _, root := range []string{d.ws.ControlDir(), d.store.Root()} {
		d.walkTmp(root, result)
	}
}

func (d *Doctor) walkTmp(root string, result *Result) {
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasPrefix(info.Name(), ".fleetconf-tmp-") {
			result.Findings = append(result.Findings, Finding{
				Category:    "tmp",
				Description: "orphan temp file from an interrupted write",
				Severity:    "warning",
				Path:        path,
			})
		}
		return nil
	})
}

func (d *Doctor) checkAuditChain(result *Result) {
	app := audit.NewFileAppender(d.ws.AuditLogPath())
	if err := app.Verify(); err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "audit",
			Description: err.Error(),
			Severity:    "critical",
			Path:        d.ws.AuditLogPath(),
		})
	}
}

func (d *Doctor) checkSnapshotIntegrity(result *Result) {
	verifier := verify.NewVerifier(d.store)
	results, err := verifier.VerifyAll()
	if err != nil {
		result.Findings = append(result.Findings, Finding{
			Category:    "integrity",
			Description: fmt.Sprintf("cannot verify snapshots: %v", err),
			Severity:    "error",
		})
		return
	}
	for _, r := range results {
		if r.DataMissing {
			// Already reported by the consistency check.
			continue
		}
		if !r.OK() {
			result.Findings = append(result.Findings, Finding{
				Category:    "integrity",
				Description: fmt.Sprintf("snapshot %s %s failed checksum verification", r.Device, r.Timestamp.Format("2006-01-02T15:04:05Z")),
				Severity:    "critical",
			})
		}
	}
}
