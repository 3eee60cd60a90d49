// Package broker carries ephemeral work items between the dispatcher and the
// worker pool. A work item on the queue is the physical half of the
// queued-status invariant: the two exist together or not at all.
package broker

import (
	"context"
	"errors"
	"time"
)

var errBrokerUnavailable = errors.New("broker unavailable")

// WorkItem is one queue entry driving an artifact through the worker pool.
// It is never persisted beyond the broker.
type WorkItem struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	CaseID     string    `json:"case_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Broker is the queue contract shared by the redis implementation and the
// in-memory test double.
type Broker interface {
	// Push enqueues a work item and returns the resulting queue depth.
	Push(ctx context.Context, item WorkItem) (int64, error)
	// Pop blocks up to the given timeout for the next work item. A nil
	// item with nil error means the timeout elapsed with an empty queue.
	Pop(ctx context.Context, timeout time.Duration) (*WorkItem, error)
	// Revoke removes a not-yet-dispatched work item for the artifact and
	// reports whether anything was removed.
	Revoke(ctx context.Context, artifactID string) (bool, error)
	// Depth returns the number of waiting work items.
	Depth(ctx context.Context) (int64, error)
	// PendingArtifacts lists artifact ids with waiting work items, used by
	// the reconciliation sweep.
	PendingArtifacts(ctx context.Context) (map[string]struct{}, error)
	Close() error
}
