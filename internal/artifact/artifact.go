package artifact

import (
	"strings"
	"time"
)

// Location identifies which of the three canonical filesystem areas holds
// the artifact's bytes. The stored value must always match reality on disk.
type Location string

const (
	LocationStaging Location = "staging"
	LocationStorage Location = "storage"
	LocationArchive Location = "archive"
)

// Format is the declared layout of an artifact's content.
type Format string

const (
	FormatEventLog Format = "evtx"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatGeneric  Format = "generic"
)

// Artifact is one ingested file tracked through the pipeline. Rows are never
// hard-deleted; removal is a status flag so the audit trail survives.
type Artifact struct {
	ID              string
	CaseID          string
	Name            string
	Fingerprint     string
	Path            string
	Location        Location
	Format          Format
	Status          Status
	FailureReason   FailureReason
	Hidden          bool
	Degraded        bool
	CancelRequested bool
	EventCount      int64
	ViolationCount  int64
	IOCHitCount     int64
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsProcessing returns true when a worker currently owns the artifact.
func (a Artifact) IsProcessing() bool {
	return IsProcessingStatus(a.Status)
}

// StatusDisplay renders the status including any failure reason.
func (a Artifact) StatusDisplay() string {
	return Display(a.Status, a.FailureReason)
}

// DetectFormat maps a file name to a declared format.
func DetectFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(lastExt(name))) {
	case ".evtx":
		return FormatEventLog
	case ".csv", ".tsv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatGeneric
	}
}

// ParseLocation converts a string into a known Location.
func ParseLocation(value string) (Location, bool) {
	switch Location(strings.ToLower(strings.TrimSpace(value))) {
	case LocationStaging:
		return LocationStaging, true
	case LocationStorage:
		return LocationStorage, true
	case LocationArchive:
		return LocationArchive, true
	default:
		return "", false
	}
}

func lastExt(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx:]
}
