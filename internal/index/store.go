package index

import "context"

// Store is the search backend contract. The HTTP implementation talks to the
// shared index service; the memory implementation backs tests.
type Store interface {
	// BulkIndex upserts a batch of documents keyed by DocID.
	BulkIndex(ctx context.Context, docs []Document) error
	// ScanArtifact pages through an artifact's documents in Seq order,
	// invoking fn once per page.
	ScanArtifact(ctx context.Context, caseID, artifactID string, pageSize int, fn func([]Document) error) error
	// UpdateFlags replaces the match flags on existing documents.
	UpdateFlags(ctx context.Context, updates []FlagUpdate) error
	// PurgeArtifact deletes every document for the artifact. Indexing is
	// purge-then-insert so a partial prior run leaves no stragglers.
	PurgeArtifact(ctx context.Context, caseID, artifactID string) error
	Close() error
}
