package workflow

import (
	"context"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/index"
	"casefile/internal/logging"
)

// Recovery returns artifacts abandoned by dead workers to a re-runnable
// state. A worker that dies mid-stage leaves its artifact in a processing
// status with a decaying heartbeat and possibly partial stage output behind
// it.
type Recovery struct {
	m       *Manager
	backend index.Store
}

// NewRecovery constructs the recovery pass.
func NewRecovery(m *Manager, backend index.Store) *Recovery {
	return &Recovery{m: m, backend: backend}
}

// RecoverStale finds processing artifacts whose heartbeat expired, purges
// their partial output, and returns them to filtered for re-dispatch.
// Returns the number recovered.
func (r *Recovery) RecoverStale(ctx context.Context) (int, error) {
	timeout := time.Duration(r.m.cfg.Pipeline.StaleTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-timeout)

	stale, err := r.m.store.StaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, a := range stale {
		if err := r.backend.PurgeArtifact(ctx, a.CaseID, a.ID); err != nil {
			r.m.logger.Warn("purge partial index output failed",
				logging.String(logging.FieldArtifactID, a.ID),
				logging.Error(err),
			)
			continue
		}
		if err := r.m.store.PurgeViolations(ctx, a.ID); err != nil {
			return recovered, err
		}
		if err := r.m.store.ResetRunCounters(ctx, a.ID); err != nil {
			return recovered, err
		}

		ok, err := r.m.store.TransitionStatus(ctx, a.ID, a.Status, artifact.StatusFiltered)
		if err != nil {
			return recovered, err
		}
		if !ok {
			// The owning worker resumed between the query and the reset.
			// Its purge-then-insert stages tolerate the cleanup above.
			continue
		}
		recovered++
		r.m.metrics.IncStaleRecovered()
		r.m.logger.Info("stale artifact recovered",
			logging.String(logging.FieldArtifactID, a.ID),
			logging.String(logging.FieldStage, string(a.Status)),
		)
	}

	if recovered > 0 {
		if _, err := r.m.dispatcher.DispatchReady(ctx); err != nil {
			return recovered, err
		}
		if err := r.m.notifier.NotifyStaleRecovered(ctx, recovered); err != nil {
			r.m.logger.Warn("recovery notification failed", logging.Error(err))
		}
	}
	return recovered, nil
}

// RunLoops starts the periodic recovery and reconciliation sweeps. They stop
// when the context ends.
func (r *Recovery) RunLoops(ctx context.Context) {
	interval := time.Duration(r.m.cfg.Pipeline.ReconcileIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	grace := time.Duration(r.m.cfg.Pipeline.StaleTimeoutSeconds) * time.Second
	if grace <= 0 {
		grace = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RecoverStale(ctx); err != nil {
				r.m.logger.Warn("stale recovery sweep failed", logging.Error(err))
			}
			if _, err := r.m.dispatcher.Reconcile(ctx, grace); err != nil {
				r.m.logger.Warn("reconciliation sweep failed", logging.Error(err))
			}
		}
	}
}
