// Package index writes parsed events into the search backend as documents
// and reads them back for the hunting stage.
package index

import (
	"fmt"
	"time"
)

// Document is one indexed event. DocID is deterministic so re-indexing the
// same artifact overwrites rather than duplicates.
type Document struct {
	DocID             string         `json:"doc_id"`
	CaseID            string         `json:"case_id"`
	ArtifactID        string         `json:"artifact_id"`
	Seq               int64          `json:"seq"`
	Timestamp         time.Time      `json:"timestamp"`
	Fields            map[string]any `json:"fields"`
	HasSigmaMatch     bool           `json:"has_sigma_match"`
	MatchedIndicators []string       `json:"matched_indicators,omitempty"`
}

// DocID builds the deterministic document identifier for an event.
func DocID(caseID, artifactID string, seq int64) string {
	return fmt.Sprintf("%s:%s:%d", caseID, artifactID, seq)
}

// FlagUpdate is a partial update applied to an existing document's match
// flags. Nil slices and false flags are written as-is; an update fully
// replaces the previous flags for the document.
type FlagUpdate struct {
	DocID             string   `json:"doc_id"`
	HasSigmaMatch     bool     `json:"has_sigma_match"`
	MatchedIndicators []string `json:"matched_indicators"`
}
