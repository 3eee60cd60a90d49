package workflow

import (
	"context"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/logging"
)

// Intake polls for staged artifacts, runs the filter over them, and hands
// survivors to the dispatcher. It is the bridge between ingestion, which
// only writes rows, and the queue.
type Intake struct {
	m      *Manager
	filter Handler
}

// NewIntake constructs the intake loop around a filter handler.
func NewIntake(m *Manager, filter Handler) *Intake {
	return &Intake{m: m, filter: filter}
}

// RunLoop filters and dispatches until the context ends.
func (in *Intake) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(in.m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := in.Sweep(ctx); err != nil {
				in.m.logger.Warn("intake sweep failed", logging.Error(err))
			}
		}
	}
}

// Sweep runs one filter-and-dispatch pass. Filter failures are isolated per
// artifact; one bad file never blocks the rest of the batch.
func (in *Intake) Sweep(ctx context.Context) error {
	staged, err := in.m.store.ArtifactsByStatus(ctx, artifact.StatusStaged)
	if err != nil {
		return err
	}
	for _, a := range staged {
		if err := in.filter.Run(ctx, a); err != nil {
			in.m.logger.Warn("filter rejected artifact",
				logging.String(logging.FieldArtifactID, a.ID),
				logging.Error(err),
			)
		}
	}

	if _, err := in.m.dispatcher.DispatchReady(ctx); err != nil {
		return err
	}
	return nil
}
