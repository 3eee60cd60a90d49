package artifact

import "strings"

// Status represents the pipeline lifecycle of an artifact.
type Status string

const (
	StatusStaged           Status = "staged"
	StatusFiltered         Status = "filtered"
	StatusArchivedEmpty    Status = "archived_empty"
	StatusQueued           Status = "queued"
	StatusProcessingIndex  Status = "processing_index"
	StatusProcessingDetect Status = "processing_detect"
	StatusProcessingHunt   Status = "processing_hunt"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// FailureReason is the structured reason code carried by failed artifacts.
// It is a closed set; nothing downstream parses free text.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonParseError   FailureReason = "parse-error"
	ReasonIndexError   FailureReason = "index-error"
	ReasonPathMismatch FailureReason = "path-mismatch"
	ReasonInternal     FailureReason = "internal"
)

var allStatuses = []Status{
	StatusStaged,
	StatusFiltered,
	StatusArchivedEmpty,
	StatusQueued,
	StatusProcessingIndex,
	StatusProcessingDetect,
	StatusProcessingHunt,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusProcessingIndex:  {},
	StatusProcessingDetect: {},
	StatusProcessingHunt:   {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// ProcessingStatuses returns the statuses that imply a worker holds the artifact.
func ProcessingStatuses() []Status {
	return []Status{StatusProcessingIndex, StatusProcessingDetect, StatusProcessingHunt}
}

// OutstandingStatuses returns statuses that imply exactly one work item exists.
func OutstandingStatuses() []Status {
	return append([]Status{StatusQueued}, ProcessingStatuses()...)
}

// IsTerminal reports whether no further transition is expected without
// operator intervention.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusArchivedEmpty, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Display renders the status for query surfaces, attaching the failure
// reason in the failed:<reason> form.
func Display(status Status, reason FailureReason) string {
	if status == StatusFailed && reason != ReasonNone {
		return string(status) + ":" + string(reason)
	}
	return string(status)
}
