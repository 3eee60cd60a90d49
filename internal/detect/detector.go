package detect

import (
	"context"
	"log/slog"

	"casefile/internal/artifact"
	"casefile/internal/config"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/rules"
	"casefile/internal/store"
)

// Detector runs the detection stage: scan the artifact with the signature
// engine, persist the violation set, and flag matched documents in the
// index.
type Detector struct {
	cfg     *config.Config
	store   *store.Store
	backend index.Store
	catalog *rules.Catalog
	engine  Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDetector constructs the detection handler using the default engine
// client.
func NewDetector(cfg *config.Config, st *store.Store, backend index.Store, catalog *rules.Catalog, m *metrics.Metrics, logger *slog.Logger) *Detector {
	engine, err := NewClient(cfg.Detection.EngineBinary, cfg.Detection.RulesDir, cfg.Detection.TimeoutSeconds)
	if err != nil {
		logger.Warn("detection engine unavailable", logging.Error(err))
	}
	var e Engine
	if engine != nil {
		e = engine
	}
	return NewDetectorWithEngine(cfg, st, backend, catalog, e, m, logger)
}

// NewDetectorWithEngine allows injecting the engine (used in tests).
func NewDetectorWithEngine(cfg *config.Config, st *store.Store, backend index.Store, catalog *rules.Catalog, engine Engine, m *metrics.Metrics, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		store:   st,
		backend: backend,
		catalog: catalog,
		engine:  engine,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "detect"),
	}
}

// Run executes detection for one artifact. An engine failure does not fail
// the artifact: the run is marked degraded and the pipeline continues, since
// indexed events keep their value without signature coverage. Violations are
// replaced wholesale so a rerun converges to the same set.
func (d *Detector) Run(ctx context.Context, a *artifact.Artifact) error {
	if d.engine == nil {
		return d.degrade(ctx, a, "engine not configured", nil)
	}

	matches, err := d.engine.Scan(ctx, a.Path)
	if err != nil {
		return d.degrade(ctx, a, "engine scan failed", err)
	}

	violations := make([]store.Violation, 0, len(matches))
	flagged := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		violation := store.Violation{
			ArtifactID: a.ID,
			CaseID:     a.CaseID,
			EventID:    index.DocID(a.CaseID, a.ID, match.EventSeq),
			RuleTitle:  match.RuleTitle,
		}
		if rule, ok := d.catalog.ByTitle(match.RuleTitle); ok {
			violation.RuleID = rule.ID
		} else {
			// Engine and loaded catalog have drifted apart. The violation
			// is kept with an empty rule id.
			d.logger.Warn("engine match has no catalog rule",
				logging.String(logging.FieldArtifactID, a.ID),
				logging.String("rule_title", match.RuleTitle),
			)
		}
		violations = append(violations, violation)
		flagged[violation.EventID] = struct{}{}
	}

	if err := d.store.ReplaceViolations(ctx, a.ID, violations); err != nil {
		return err
	}
	a.ViolationCount = int64(len(violations))
	if err := d.store.UpdateArtifact(ctx, a); err != nil {
		return err
	}

	if len(flagged) > 0 {
		updates := make([]index.FlagUpdate, 0, len(flagged))
		for docID := range flagged {
			updates = append(updates, index.FlagUpdate{DocID: docID, HasSigmaMatch: true})
		}
		if err := d.backend.UpdateFlags(ctx, updates); err != nil {
			return d.degrade(ctx, a, "flag matched documents", err)
		}
	}

	d.metrics.AddViolationsRecorded(len(violations))
	d.logger.Info("detection complete",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.Int("violations", len(violations)),
	)
	return nil
}

func (d *Detector) degrade(ctx context.Context, a *artifact.Artifact, reason string, cause error) error {
	d.metrics.IncEngineFailures()
	d.logger.Warn("detection degraded",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.String("reason", reason),
		logging.Error(cause),
	)
	if err := d.store.SetDegraded(ctx, a.ID, true); err != nil {
		return err
	}
	a.Degraded = true
	return nil
}
