package dispatch

import (
	"context"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/logging"
)

// Reconcile repairs queued artifacts whose work item has gone missing, which
// happens when the broker loses state between a push and a pickup. Each
// orphan older than the grace window is returned to filtered and dispatched
// again. Returns the number of repairs made.
func (d *Dispatcher) Reconcile(ctx context.Context, grace time.Duration) (int, error) {
	pending, err := d.broker.PendingArtifacts(ctx)
	if err != nil {
		return 0, err
	}
	queued, err := d.store.ArtifactsByStatus(ctx, artifact.StatusQueued)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-grace)
	repaired := 0
	for _, a := range queued {
		if _, onQueue := pending[a.ID]; onQueue {
			continue
		}
		// A just-dispatched artifact may not be visible in the broker
		// snapshot yet. The grace window keeps those out of the sweep.
		if a.UpdatedAt.After(cutoff) {
			continue
		}

		ok, err := d.store.TransitionStatus(ctx, a.ID, artifact.StatusQueued, artifact.StatusFiltered)
		if err != nil {
			return repaired, err
		}
		if !ok {
			continue
		}
		a.Status = artifact.StatusFiltered
		if err := d.Dispatch(ctx, a); err != nil {
			d.logger.Warn("re-dispatch after reconcile failed",
				logging.String(logging.FieldArtifactID, a.ID),
				logging.Error(err),
			)
			continue
		}
		repaired++
		d.metrics.IncReconcileRepairs()
		d.logger.Info("orphaned queued artifact re-dispatched",
			logging.String(logging.FieldArtifactID, a.ID),
		)
	}

	if depth, err := d.broker.Depth(ctx); err == nil {
		d.metrics.SetQueueDepth(depth)
	}
	return repaired, nil
}

// DispatchReady queues every filtered artifact, used on daemon startup and
// after stale recovery. Returns how many were dispatched.
func (d *Dispatcher) DispatchReady(ctx context.Context) (int, error) {
	ready, err := d.store.ArtifactsByStatus(ctx, artifact.StatusFiltered)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, a := range ready {
		if err := d.Dispatch(ctx, a); err != nil {
			d.logger.Warn("dispatch failed",
				logging.String(logging.FieldArtifactID, a.ID),
				logging.Error(err),
			)
			continue
		}
		dispatched++
	}
	return dispatched, nil
}
