package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/parser"
	"casefile/internal/services"
	"casefile/internal/store"
)

var errIndexUnavailable = errors.New("index backend unavailable")

// Indexer turns an artifact's events into index documents in bounded
// batches. Memory stays flat regardless of artifact size because batches are
// built, shipped, and released one at a time.
type Indexer struct {
	cfg     *config.Config
	store   *store.Store
	backend Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIndexer constructs an Indexer.
func NewIndexer(cfg *config.Config, st *store.Store, backend Store, m *metrics.Metrics, logger *slog.Logger) *Indexer {
	return &Indexer{
		cfg:     cfg,
		store:   st,
		backend: backend,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "index"),
	}
}

// Run indexes the artifact's events. Prior documents are purged first so a
// rerun after partial failure converges to the same index state. Each batch
// write gets one retry; a second failure aborts the run.
func (ix *Indexer) Run(ctx context.Context, a *artifact.Artifact) error {
	if err := ix.backend.PurgeArtifact(ctx, a.CaseID, a.ID); err != nil {
		return services.Wrap(services.ErrIndexWrite, "index", "purge prior documents", a.ID, err)
	}

	total, err := parser.Stream(ctx, a.Path, a.Format, ix.cfg.Search.BatchSize, func(batch []parser.Event) error {
		docs := make([]Document, 0, len(batch))
		for _, ev := range batch {
			docs = append(docs, Document{
				DocID:      DocID(a.CaseID, a.ID, ev.Seq),
				CaseID:     a.CaseID,
				ArtifactID: a.ID,
				Seq:        ev.Seq,
				Timestamp:  ev.Timestamp,
				Fields:     ev.Fields,
			})
		}
		if err := ix.bulkWithRetry(ctx, docs); err != nil {
			return err
		}
		ix.metrics.AddEventsIndexed(len(docs))
		return nil
	})
	if err != nil {
		if errors.Is(err, parser.ErrMalformed) {
			return services.Wrap(services.ErrParse, "index", "stream events", a.Name, err)
		}
		if errors.Is(err, services.ErrIndexWrite) {
			return err
		}
		return fmt.Errorf("index artifact %s: %w", a.ID, err)
	}

	if total != a.EventCount {
		a.EventCount = total
		if err := ix.store.UpdateArtifact(ctx, a); err != nil {
			return err
		}
	}

	ix.logger.Info("artifact indexed",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.Int64("events", total),
	)
	return nil
}

func (ix *Indexer) bulkWithRetry(ctx context.Context, docs []Document) error {
	err := ix.backend.BulkIndex(ctx, docs)
	if err == nil {
		return nil
	}
	ix.metrics.IncIndexBatchRetries()
	ix.logger.Warn("batch write failed, retrying once", logging.Error(err))

	if err := ix.backend.BulkIndex(ctx, docs); err != nil {
		return services.Wrap(services.ErrIndexWrite, "index", "bulk write", fmt.Sprintf("%d documents", len(docs)), err)
	}
	return nil
}
