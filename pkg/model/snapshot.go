package model

import "time"

// SnapshotKind identifies which configuration a snapshot captured.
type SnapshotKind string

const (
	KindRunning SnapshotKind = "running"
	KindStartup SnapshotKind = "startup"
)

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// Snapshot is the immutable metadata record of one device-configuration
// capture. The configuration text itself lives in the data file at Path;
// the record is never mutated after the manifest append commits it.
type Snapshot struct {
	Device    string       `json:"device"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      SnapshotKind `json:"kind"`
	Checksum  HashValue    `json:"checksum"`
	SizeBytes int64        `json:"size_bytes"`
	Path      string       `json:"path"`
	Info      *DeviceInfo  `json:"info,omitempty"`
}

// ManifestEntry is one line of a date directory's manifest.jsonl.
// Appending the entry is the commit point for a backup: data written
// without a manifest line is a phantom and is never listed.
type ManifestEntry struct {
	Device    string       `json:"device"`
	Timestamp int64        `json:"timestamp_ms"`
	Kind      SnapshotKind `json:"kind"`
	Checksum  HashValue    `json:"checksum"`
	SizeBytes int64        `json:"size_bytes"`
	File      string       `json:"file"`
}

// Selector names a restore point: the literal "latest" or a
// calendar date in YYYY-MM-DD form.
type Selector string

// SelectorLatest resolves to the most recent snapshot for a device.
const SelectorLatest Selector = "latest"

// IsLatest reports whether the selector is the literal "latest".
func (s Selector) IsLatest() bool { return s == SelectorLatest }
