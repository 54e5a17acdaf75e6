// Package audit maintains the workspace's tamper-evident event log:
// hash-chained JSONL records of runs, backups, rollbacks, and pruning.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/jsonutil"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// FileAppender appends audit records to a JSONL file with a hash chain.
// Each record carries the previous record's hash; breaking the chain is
// detectable by Verify.
type FileAppender struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileAppender creates an appender writing to path.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path, now: time.Now}
}

// Append adds one record. The flock covers reading the chain tail and
// writing the new line, so concurrent processes never fork the chain.
func (a *FileAppender) Append(eventType model.AuditEventType, runID model.RunID, device string, details map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record := &model.AuditRecord{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		RunID:     runID,
		Device:    device,
		Details:   details,
		PrevHash:  prevHash,
	}
	record.RecordHash, err = computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	if _, err := file.Seek(0, 2); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Read returns every record in the log, oldest first.
func (a *FileAppender) Read() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return records, nil
}

// Verify walks the chain and recomputes every record's hash. The first
// broken link is reported with its position.
func (a *FileAppender) Verify() error {
	records, err := a.Read()
	if err != nil {
		return err
	}

	var prevHash model.HashValue
	for i, record := range records {
		if record.PrevHash != prevHash {
			return errclass.ErrAuditChainBroken.WithMessagef(
				"record %d: prev_hash does not match preceding record", i+1)
		}
		expect, err := computeRecordHash(&model.AuditRecord{
			Timestamp: record.Timestamp,
			EventType: record.EventType,
			RunID:     record.RunID,
			Device:    record.Device,
			Details:   record.Details,
			PrevHash:  record.PrevHash,
		})
		if err != nil {
			return err
		}
		if record.RecordHash != expect {
			return errclass.ErrAuditChainBroken.WithMessagef(
				"record %d: content does not match its hash", i+1)
		}
		prevHash = record.RecordHash
	}
	return nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, 0); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

// computeRecordHash hashes the record's canonical JSON with RecordHash
// left empty.
func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
