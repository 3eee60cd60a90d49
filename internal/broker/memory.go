package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker used by tests and single-host
// evaluation runs where redis is unavailable.
type MemoryBroker struct {
	mu     sync.Mutex
	items  []WorkItem
	signal chan struct{}
	closed bool

	// FailPush simulates a broker outage for dispatcher rollback tests.
	FailPush bool
}

// NewMemory constructs an empty in-memory broker.
func NewMemory() *MemoryBroker {
	return &MemoryBroker{signal: make(chan struct{}, 1)}
}

func (b *MemoryBroker) Push(_ context.Context, item WorkItem) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailPush {
		return 0, errBrokerUnavailable
	}
	b.items = append(b.items, item)
	select {
	case b.signal <- struct{}{}:
	default:
	}
	return int64(len(b.items)), nil
}

func (b *MemoryBroker) Pop(ctx context.Context, timeout time.Duration) (*WorkItem, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			item := b.items[0]
			b.items = b.items[1:]
			b.mu.Unlock()
			return &item, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-b.signal:
		}
	}
}

func (b *MemoryBroker) Revoke(_ context.Context, artifactID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, item := range b.items {
		if item.ArtifactID == artifactID {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (b *MemoryBroker) Depth(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.items)), nil
}

func (b *MemoryBroker) PendingArtifacts(context.Context) (map[string]struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := make(map[string]struct{}, len(b.items))
	for _, item := range b.items {
		pending[item.ArtifactID] = struct{}{}
	}
	return pending, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
