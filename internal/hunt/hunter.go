package hunt

import (
	"context"
	"log/slog"
	"slices"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/store"
)

// Hunter runs the hunting stage: every enabled indicator for the case is
// evaluated against every indexed document of the artifact.
type Hunter struct {
	cfg     *config.Config
	store   *store.Store
	backend index.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New constructs a Hunter.
func New(cfg *config.Config, st *store.Store, backend index.Store, m *metrics.Metrics, logger *slog.Logger) *Hunter {
	return &Hunter{
		cfg:     cfg,
		store:   st,
		backend: backend,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "hunt"),
	}
}

// Run sweeps the artifact's documents. Each document's indicator flags are
// fully recomputed from the currently enabled set, which clears stale flags
// from prior runs on its own. Indicator hit counters only advance for
// documents the indicator had not flagged before, so a rerun settles rather
// than double-counts.
func (h *Hunter) Run(ctx context.Context, a *artifact.Artifact) error {
	indicators, err := h.store.EnabledIndicators(ctx, a.CaseID)
	if err != nil {
		return err
	}
	matchers := make([]matcher, 0, len(indicators))
	for _, ind := range indicators {
		matchers = append(matchers, compile(ind))
	}

	var flaggedDocs int64
	newHits := make(map[string]int64, len(indicators))

	err = h.backend.ScanArtifact(ctx, a.CaseID, a.ID, h.cfg.Search.PageSize, func(page []index.Document) error {
		updates := make([]index.FlagUpdate, 0, len(page))
		for _, doc := range page {
			var matched []string
			for _, m := range matchers {
				if !m.matchesDocument(doc.Fields) {
					continue
				}
				matched = append(matched, m.indicator.Value)
				if !slices.Contains(doc.MatchedIndicators, m.indicator.Value) {
					newHits[m.indicator.ID]++
				}
			}
			if len(matched) > 0 {
				flaggedDocs++
			}
			if !slices.Equal(matched, doc.MatchedIndicators) {
				updates = append(updates, index.FlagUpdate{
					DocID:             doc.DocID,
					HasSigmaMatch:     doc.HasSigmaMatch,
					MatchedIndicators: matched,
				})
			}
		}
		return h.backend.UpdateFlags(ctx, updates)
	})
	if err != nil {
		return err
	}

	var total int64
	for id, hits := range newHits {
		if hits == 0 {
			continue
		}
		if err := h.store.AddIndicatorHits(ctx, id, hits); err != nil {
			return err
		}
		total += hits
	}

	a.IOCHitCount = flaggedDocs
	if err := h.store.UpdateArtifact(ctx, a); err != nil {
		return err
	}

	h.metrics.AddIOCHits(total)
	h.logger.Info("hunt complete",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.Int("indicators", len(indicators)),
		logging.Int64("flagged_documents", flaggedDocs),
		logging.Int64("new_hits", total),
	)
	return nil
}
