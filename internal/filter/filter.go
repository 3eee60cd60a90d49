// Package filter runs the usefulness gate after staging: artifacts without a
// single parseable event are relocated to the archive and never queued.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/fileutil"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/parser"
	"casefile/internal/services"
	"casefile/internal/store"
)

// Filter decides whether a staged artifact is worth processing.
type Filter struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New constructs a Filter.
func New(cfg *config.Config, st *store.Store, m *metrics.Metrics, logger *slog.Logger) *Filter {
	return &Filter{
		cfg:     cfg,
		store:   st,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "filter"),
	}
}

// Apply counts the artifact's events with a lightweight parse pass. Zero
// events: the file is moved to the archive FIRST, then path, location,
// hidden flag, and status are committed in a single update. The ordering is
// what keeps the recorded path from ever naming a location the file has
// already left. Non-empty artifacts advance to filtered in place.
func (f *Filter) Apply(ctx context.Context, a *artifact.Artifact) error {
	if a.Status != artifact.StatusStaged {
		return fmt.Errorf("filter: artifact %s has status %s, want %s", a.ID, a.Status, artifact.StatusStaged)
	}
	if _, err := os.Stat(a.Path); err != nil {
		if mErr := f.store.MarkFailed(ctx, a.ID, artifact.ReasonPathMismatch); mErr != nil {
			return mErr
		}
		return services.Wrap(services.ErrPathMismatch, "filter", "stat artifact",
			fmt.Sprintf("recorded path %s does not exist", a.Path), err)
	}

	count, err := parser.CountEvents(a.Path, a.Format)
	if err != nil {
		if errors.Is(err, parser.ErrMalformed) {
			if mErr := f.store.MarkFailed(ctx, a.ID, artifact.ReasonParseError); mErr != nil {
				return mErr
			}
			return services.Wrap(services.ErrParse, "filter", "count events", a.Name, err)
		}
		return fmt.Errorf("count events: %w", err)
	}

	if count == 0 {
		return f.archiveEmpty(ctx, a)
	}

	a.EventCount = count
	if err := f.store.UpdateArtifact(ctx, a); err != nil {
		return err
	}
	ok, err := f.store.TransitionStatus(ctx, a.ID, artifact.StatusStaged, artifact.StatusFiltered)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("filter: artifact %s changed status concurrently", a.ID)
	}
	a.Status = artifact.StatusFiltered

	f.logger.Info("artifact passed filter",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.Int64("events", count),
	)
	return nil
}

func (f *Filter) archiveEmpty(ctx context.Context, a *artifact.Artifact) error {
	archivePath := filepath.Join(f.cfg.CaseArchiveDir(a.CaseID), a.ID, filepath.Base(a.Path))
	if err := fileutil.MoveFile(a.Path, archivePath); err != nil {
		return fmt.Errorf("relocate to archive: %w", err)
	}

	if err := f.store.CommitRelocation(ctx, a.ID, archivePath, artifact.LocationArchive, true, artifact.StatusArchivedEmpty); err != nil {
		// The file moved but the record didn't commit. Move it back so
		// location and reality still agree before surfacing the error.
		if undoErr := fileutil.MoveFile(archivePath, a.Path); undoErr != nil {
			return fmt.Errorf("commit archive relocation: %w (undo failed: %v)", err, undoErr)
		}
		return fmt.Errorf("commit archive relocation: %w", err)
	}
	a.Path = archivePath
	a.Location = artifact.LocationArchive
	a.Hidden = true
	a.Status = artifact.StatusArchivedEmpty

	f.metrics.IncArchivedEmpty()
	f.logger.Info("empty artifact archived",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.String("archive_path", archivePath),
	)
	return nil
}
