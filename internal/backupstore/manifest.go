package backupstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

const (
	manifestName = "manifest.jsonl"
	sumsName     = "SHA256SUMS"
)

// manifestWriter serializes appends to per-date manifests. flock guards
// against other processes, the mutex against goroutines sharing this
// store.
type manifestWriter struct {
	mu sync.Mutex
}

func newManifestWriter() *manifestWriter {
	return &manifestWriter{}
}

// append writes one manifest line. The line landing on disk is the
// moment the snapshot exists.
func (w *manifestWriter) append(dateDir string, entry model.ManifestEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal manifest entry: %w", err)
	}
	return w.appendLine(filepath.Join(dateDir, manifestName), append(data, '\n'))
}

// appendChecksumIndex adds a line in sha256sum -c format.
func (w *manifestWriter) appendChecksumIndex(dateDir string, checksum model.HashValue, fileName string) error {
	line := fmt.Sprintf("%s  %s\n", checksum, fileName)
	return w.appendLine(filepath.Join(dateDir, sumsName), []byte(line))
}

func (w *manifestWriter) appendLine(path string, line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("flock %s: %w", filepath.Base(path), err)
	}
	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", filepath.Base(path), err)
	}
	return nil
}

// remove rewrites the manifest and checksum index without the given
// snapshot's lines. Pruning is the only caller; it already holds the
// fleet lock, so a whole-file rewrite is safe here.
func (w *manifestWriter) remove(dateDir string, snap model.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fileName := filepath.Base(snap.Path)

	entries, err := readManifest(dateDir)
	if err != nil {
		return err
	}
	var buf strings.Builder
	for _, e := range entries {
		if e.File == fileName {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal manifest entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := fsutil.AtomicWrite(filepath.Join(dateDir, manifestName), []byte(buf.String()), 0644); err != nil {
		return fmt.Errorf("rewrite manifest: %w", err)
	}

	sumsPath := filepath.Join(dateDir, sumsName)
	sums, err := os.ReadFile(sumsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checksum index: %w", err)
	}
	var kept []string
	for _, line := range strings.Split(string(sums), "\n") {
		if line == "" || strings.HasSuffix(line, "  "+fileName) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	if err := fsutil.AtomicWrite(sumsPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("rewrite checksum index: %w", err)
	}
	return nil
}

// readManifest parses one date directory's manifest. A torn final line
// from an interrupted append is a corrupt store, not a skippable line.
func readManifest(dateDir string) ([]model.ManifestEntry, error) {
	file, err := os.Open(filepath.Join(dateDir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	var entries []model.ManifestEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry model.ManifestEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, errclass.ErrManifestCorrupt.WithMessagef(
				"%s line %d: %v", filepath.Join(filepath.Base(dateDir), manifestName), lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return entries, nil
}
