package workflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/broker"
	"casefile/internal/logging"
	"casefile/internal/services"
)

// worker processes artifacts until shutdown or retirement. Retirement bounds
// the damage a slow leak can do: after enough tasks, or once the process
// heap outgrows the pool's memory allowance, the worker returns and the
// supervisor replaces it.
type worker struct {
	m              *Manager
	slot           int
	logger         *slog.Logger
	tasksProcessed int64
}

func newWorker(m *Manager, slot int) *worker {
	return &worker{
		m:      m,
		slot:   slot,
		logger: m.logger.With(logging.Int(logging.FieldWorkerID, slot)),
	}
}

func (w *worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := w.m.broker.Pop(ctx, w.m.pollInterval)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("broker pop failed", logging.Error(err))
			w.backoff(ctx)
			continue
		}
		if item == nil {
			continue
		}

		w.m.metrics.WorkerBusy()
		w.process(ctx, item)
		w.m.metrics.WorkerIdle()
		w.tasksProcessed++

		if w.shouldRetire() {
			return
		}
	}
}

// process walks one artifact through the stage sequence. Every status change
// is a compare-and-set; losing a race means another actor owns the artifact
// and the worker walks away.
func (w *worker) process(ctx context.Context, item *broker.WorkItem) {
	a, err := w.m.store.GetArtifact(ctx, item.ArtifactID)
	if err != nil {
		w.logger.Warn("work item names unknown artifact",
			logging.String(logging.FieldArtifactID, item.ArtifactID),
			logging.Error(err),
		)
		return
	}

	ok, err := w.m.store.TransitionStatus(ctx, a.ID, artifact.StatusQueued, w.m.stages[0].status)
	if err != nil {
		w.logger.Error("claim failed", logging.String(logging.FieldArtifactID, a.ID), logging.Error(err))
		return
	}
	if !ok {
		w.logger.Info("artifact no longer queued, skipping",
			logging.String(logging.FieldArtifactID, a.ID),
		)
		return
	}
	a.Status = w.m.stages[0].status

	if err := w.m.store.ResetRunCounters(ctx, a.ID); err != nil {
		w.fail(ctx, a, err)
		return
	}
	a.ViolationCount = 0
	a.IOCHitCount = 0

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.m.heartbeat.loop(heartbeatCtx, a.ID)
	}()
	defer func() {
		stopHeartbeat()
		<-heartbeatDone
	}()

	for i, st := range w.m.stages {
		if i > 0 {
			if w.cancelled(ctx, a, w.m.stages[i-1].status) {
				return
			}
			ok, err := w.m.store.TransitionStatus(ctx, a.ID, w.m.stages[i-1].status, st.status)
			if err != nil {
				w.fail(ctx, a, err)
				return
			}
			if !ok {
				w.logger.Warn("lost artifact between stages",
					logging.String(logging.FieldArtifactID, a.ID),
					logging.String(logging.FieldStage, string(st.status)),
				)
				return
			}
			a.Status = st.status
		}

		w.logger.Info("stage starting",
			logging.String(logging.FieldArtifactID, a.ID),
			logging.String(logging.FieldStage, string(st.status)),
		)
		if err := st.handler.Run(ctx, a); err != nil {
			if errors.Is(err, context.Canceled) {
				// Shutdown mid-stage. The artifact stays in its processing
				// status; the stale sweep reclaims it after the heartbeat
				// expires.
				return
			}
			w.fail(ctx, a, err)
			return
		}
	}

	last := w.m.stages[len(w.m.stages)-1].status
	if w.cancelled(ctx, a, last) {
		return
	}
	ok, err = w.m.store.TransitionStatus(ctx, a.ID, last, artifact.StatusCompleted)
	if err != nil {
		w.fail(ctx, a, err)
		return
	}
	if ok {
		a.Status = artifact.StatusCompleted
		w.logger.Info("artifact completed",
			logging.String(logging.FieldArtifactID, a.ID),
			logging.Int64("events", a.EventCount),
			logging.Int64("violations", a.ViolationCount),
			logging.Int64("ioc_hits", a.IOCHitCount),
		)
		if err := w.m.notifier.NotifyArtifactCompleted(ctx, a); err != nil {
			w.logger.Warn("completion notification failed", logging.Error(err))
		}
	}
}

// cancelled honors the advisory cancel flag at a stage boundary. The
// artifact returns to filtered with the flag consumed; partial output from
// completed stages stays, since every stage is purge-then-insert on rerun.
func (w *worker) cancelled(ctx context.Context, a *artifact.Artifact, current artifact.Status) bool {
	requested, err := w.m.store.CancelRequested(ctx, a.ID)
	if err != nil {
		w.logger.Warn("cancel flag check failed", logging.Error(err))
		return false
	}
	if !requested {
		return false
	}
	ok, err := w.m.store.CancelToFiltered(ctx, a.ID, current)
	if err != nil {
		w.logger.Error("cancel transition failed", logging.Error(err))
		return false
	}
	if ok {
		a.Status = artifact.StatusFiltered
		a.CancelRequested = false
		w.logger.Info("artifact cancelled at stage boundary",
			logging.String(logging.FieldArtifactID, a.ID),
			logging.String(logging.FieldStage, string(current)),
		)
	}
	return ok
}

func (w *worker) fail(ctx context.Context, a *artifact.Artifact, cause error) {
	reason := services.FailureReason(cause)
	w.logger.Error("artifact failed",
		logging.String(logging.FieldArtifactID, a.ID),
		logging.String("reason", string(reason)),
		logging.Error(cause),
	)
	if err := w.m.store.MarkFailed(ctx, a.ID, reason); err != nil {
		w.logger.Error("mark failed did not persist", logging.Error(err))
		return
	}
	a.Status = artifact.StatusFailed
	a.FailureReason = reason
	if err := w.m.notifier.NotifyArtifactFailed(ctx, a); err != nil {
		w.logger.Warn("failure notification failed", logging.Error(err))
	}
}

// shouldRetire enforces the retirement ceilings. HeapAlloc is process wide,
// so the memory check compares against the whole pool's allowance rather
// than a single worker's share.
func (w *worker) shouldRetire() bool {
	maxTasks := int64(w.m.cfg.Pipeline.MaxArtifactsPerWorker)
	if maxTasks > 0 && w.tasksProcessed >= maxTasks {
		return true
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return heapBudgetExceeded(stats.HeapAlloc, w.m.cfg.Pipeline.WorkerMemoryCeilingMB, w.m.cfg.Pipeline.Workers)
}

// heapBudgetExceeded reports whether the process heap has outgrown the
// pool's allowance of ceilingMB per worker.
func heapBudgetExceeded(heapAlloc uint64, ceilingMB, workers int) bool {
	if ceilingMB <= 0 {
		return false
	}
	if workers < 1 {
		workers = 1
	}
	return heapAlloc > uint64(ceilingMB)<<20*uint64(workers)
}

func (w *worker) backoff(ctx context.Context) {
	retry := time.Duration(w.m.cfg.Pipeline.ErrorRetryIntervalSecs) * time.Second
	if retry <= 0 {
		retry = 5 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(retry):
	}
}
