// Package ingest receives uploaded files, detects duplicates, and stages
// accepted artifacts into case-scoped active storage. Staging never queues
// work; queueing is the dispatcher's job so path and status can't diverge.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/fileutil"
	"casefile/internal/fingerprint"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/store"
)

// DuplicateError reports that an identical fingerprint and name already exist
// in the case. It carries the existing record so callers can return it.
type DuplicateError struct {
	Existing *artifact.Artifact
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate artifact: %s already staged as %s", e.Existing.Name, e.Existing.ID)
}

// Stager ingests uploads into case-scoped active storage.
type Stager struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStager constructs a Stager.
func NewStager(cfg *config.Config, st *store.Store, m *metrics.Metrics, logger *slog.Logger) *Stager {
	return &Stager{
		cfg:     cfg,
		store:   st,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "stager"),
	}
}

// Stage fingerprints the source file, rejects duplicates, copies accepted
// bytes into `<storage>/<case>/<artifact-id>/<name>`, and persists one
// artifact row with status staged. The source file is left untouched.
func (s *Stager) Stage(ctx context.Context, caseID, name, sourcePath string) (*artifact.Artifact, error) {
	sum, size, err := fingerprint.File(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("fingerprint %s: %w", sourcePath, err)
	}

	existing, err := s.store.FindActiveByFingerprint(ctx, caseID, sum, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.IncDuplicatesRejected()
		s.logger.Info("duplicate upload rejected",
			logging.String(logging.FieldCaseID, caseID),
			logging.String(logging.FieldArtifactID, existing.ID),
			logging.String("name", name),
		)
		return existing, &DuplicateError{Existing: existing}
	}

	id := uuid.NewString()
	destDir := filepath.Join(s.cfg.CaseStorageDir(caseID), id)
	destPath := filepath.Join(destDir, filepath.Base(name))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if err := fileutil.CopyFileVerified(sourcePath, destPath); err != nil {
		_ = os.RemoveAll(destDir)
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}

	a := &artifact.Artifact{
		ID:          id,
		CaseID:      caseID,
		Name:        filepath.Base(name),
		Fingerprint: sum,
		Path:        destPath,
		Location:    artifact.LocationStorage,
		Format:      artifact.DetectFormat(name),
		Status:      artifact.StatusStaged,
	}
	if err := s.store.InsertArtifact(ctx, a); err != nil {
		_ = os.RemoveAll(destDir)
		return nil, err
	}

	s.metrics.IncArtifactsStaged()
	s.logger.Info("artifact staged",
		logging.String(logging.FieldCaseID, caseID),
		logging.String(logging.FieldArtifactID, a.ID),
		logging.String("name", a.Name),
		logging.String("format", string(a.Format)),
		logging.Int64("bytes", size),
	)
	return a, nil
}
