package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetconf-project/fleetconf/pkg/config"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
)

const (
	FormatVersion     = 1
	ControlDirName    = ".fleetconf"
	FormatVersionFile = "format_version"
	WorkspaceIDFile   = "workspace_id"
	InventoryFile     = "inventory.yaml"
	TemplatesDirName  = "templates"
	BackupsDirName    = "backups"
)

// Workspace represents an initialized fleetconf workspace.
type Workspace struct {
	Root          string
	FormatVersion int
	WorkspaceID   string
}

// Init creates a new workspace rooted at path.
func Init(path string) (*Workspace, error) {
	controlDir := filepath.Join(path, ControlDirName)
	dirs := []string{
		controlDir,
		filepath.Join(controlDir, "audit"),
		filepath.Join(controlDir, "locks"),
		filepath.Join(controlDir, "runs"),
		filepath.Join(controlDir, "prune"),
		filepath.Join(path, TemplatesDirName),
		filepath.Join(path, BackupsDirName),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(controlDir, FormatVersionFile), []byte("1\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	workspaceID := uuid.NewString()
	if err := os.WriteFile(filepath.Join(controlDir, WorkspaceIDFile), []byte(workspaceID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write workspace_id: %w", err)
	}

	if err := config.Save(path, config.Default()); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	// Seed an empty inventory so `fleetconf backup all` fails with a
	// useful message instead of a missing-file error.
	invPath := filepath.Join(path, InventoryFile)
	if _, err := os.Stat(invPath); os.IsNotExist(err) {
		if err := os.WriteFile(invPath, []byte("devices: []\n"), 0644); err != nil {
			return nil, fmt.Errorf("write inventory: %w", err)
		}
	}

	if err := fsutil.FsyncDir(path); err != nil {
		return nil, fmt.Errorf("fsync workspace root: %w", err)
	}

	return &Workspace{
		Root:          path,
		FormatVersion: FormatVersion,
		WorkspaceID:   workspaceID,
	}, nil
}

// Discover walks up from cwd to find the workspace root (directory
// containing .fleetconf/).
func Discover(cwd string) (*Workspace, error) {
	path := cwd
	for {
		controlDir := filepath.Join(path, ControlDirName)
		if info, err := os.Stat(controlDir); err == nil && info.IsDir() {
			version, err := readFormatVersion(controlDir)
			if err != nil {
				return nil, err
			}
			if version > FormatVersion {
				return nil, errclass.ErrFormatUnsupported.WithMessagef(
					"format version %d > supported %d", version, FormatVersion)
			}
			workspaceID, _ := readWorkspaceID(controlDir)
			return &Workspace{
				Root:          path,
				FormatVersion: version,
				WorkspaceID:   workspaceID,
			}, nil
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no fleetconf workspace found (no %s/ in parent directories)", ControlDirName)
		}
		path = parent
	}
}

// ControlDir returns the workspace's control directory.
func (w *Workspace) ControlDir() string {
	return filepath.Join(w.Root, ControlDirName)
}

// BackupsDir returns the root of the backup store.
func (w *Workspace) BackupsDir() string {
	return filepath.Join(w.Root, BackupsDirName)
}

// TemplatesDir returns the template directory.
func (w *Workspace) TemplatesDir() string {
	return filepath.Join(w.Root, TemplatesDirName)
}

// InventoryPath returns the inventory file path.
func (w *Workspace) InventoryPath() string {
	return filepath.Join(w.Root, InventoryFile)
}

// AuditLogPath returns the audit log path.
func (w *Workspace) AuditLogPath() string {
	return filepath.Join(w.ControlDir(), "audit", "audit.jsonl")
}

// RunsDir returns the directory holding persisted run reports.
func (w *Workspace) RunsDir() string {
	return filepath.Join(w.ControlDir(), "runs")
}

// LocksDir returns the lock directory.
func (w *Workspace) LocksDir() string {
	return filepath.Join(w.ControlDir(), "locks")
}

// PruneDir returns the directory holding prune plans.
func (w *Workspace) PruneDir() string {
	return filepath.Join(w.ControlDir(), "prune")
}

func readFormatVersion(controlDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(controlDir, FormatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return version, nil
}

func readWorkspaceID(controlDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(controlDir, WorkspaceIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
