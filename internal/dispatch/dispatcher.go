// Package dispatch moves filtered artifacts onto the work queue. The status
// row and the broker item are updated in a fixed order (status first, push
// second, roll back on push failure) so the queued status and the work item
// appear and disappear together.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"casefile/internal/artifact"
	"casefile/internal/broker"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/services"
	"casefile/internal/store"
)

// Dispatcher submits filtered artifacts to the broker.
type Dispatcher struct {
	store   *store.Store
	broker  broker.Broker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New constructs a Dispatcher.
func New(st *store.Store, b broker.Broker, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   st,
		broker:  b,
		metrics: m,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Dispatch transitions a filtered artifact to queued and pushes its work
// item. The push reply carries the new queue depth, which verifies the
// submission landed. A failed push rolls the status back to filtered so the
// artifact is never queued without a work item behind it.
func (d *Dispatcher) Dispatch(ctx context.Context, a *artifact.Artifact) error {
	ok, err := d.store.TransitionStatus(ctx, a.ID, artifact.StatusFiltered, artifact.StatusQueued)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispatch: artifact %s is not filtered", a.ID)
	}

	item := broker.WorkItem{
		ID:         uuid.NewString(),
		ArtifactID: a.ID,
		CaseID:     a.CaseID,
		EnqueuedAt: time.Now().UTC(),
	}
	depth, err := d.broker.Push(ctx, item)
	if err != nil {
		if _, rbErr := d.store.TransitionStatus(ctx, a.ID, artifact.StatusQueued, artifact.StatusFiltered); rbErr != nil {
			return fmt.Errorf("push work item: %w (rollback failed: %v)", err, rbErr)
		}
		return services.Wrap(services.ErrTransient, "dispatch", "push work item", a.ID, err)
	}
	a.Status = artifact.StatusQueued

	d.metrics.SetQueueDepth(depth)
	d.logger.Info("artifact queued",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.String("work_item", item.ID),
		logging.Int64("queue_depth", depth),
	)
	return nil
}

// Revoke pulls a queued artifact back off the work queue and returns it to
// filtered. Artifacts already held by a worker cannot be revoked here; the
// cancel flag covers those.
func (d *Dispatcher) Revoke(ctx context.Context, artifactID string) (bool, error) {
	removed, err := d.broker.Revoke(ctx, artifactID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if _, err := d.store.TransitionStatus(ctx, artifactID, artifact.StatusQueued, artifact.StatusFiltered); err != nil {
		return true, err
	}
	d.logger.Info("artifact revoked from queue",
		logging.String(logging.FieldArtifactID, artifactID),
	)
	return true, nil
}
