package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// SaveReport persists a run report as <runs>/<run-id>.json.
func SaveReport(runsDir string, report *model.RunReport) error {
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	path := filepath.Join(runsDir, report.RunID.String()+".json")
	return fsutil.AtomicWrite(path, data, 0644)
}

// LoadReport reads one persisted run report. The id may be a full run
// ID or an unambiguous prefix.
func LoadReport(runsDir, id string) (*model.RunReport, error) {
	path := filepath.Join(runsDir, id+".json")
	if _, err := os.Stat(path); err != nil {
		resolved, rerr := resolvePrefix(runsDir, id)
		if rerr != nil {
			return nil, rerr
		}
		path = resolved
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run report: %w", err)
	}
	var report model.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("unmarshal run report: %w", err)
	}
	return &report, nil
}

// ListReports loads every persisted report, most recent first.
func ListReports(runsDir string) ([]*model.RunReport, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}

	var reports []*model.RunReport
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		report, err := LoadReport(runsDir, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	return reports, nil
}

func resolvePrefix(runsDir, prefix string) (string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return "", fmt.Errorf("read runs dir: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".json") {
			matches = append(matches, filepath.Join(runsDir, e.Name()))
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no run report matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run id prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}
