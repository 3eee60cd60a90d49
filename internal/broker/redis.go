package broker

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"casefile/internal/config"
)

// RedisBroker backs the work queue with a redis list.
type RedisBroker struct {
	client *redis.Client
	key    string
}

// NewRedis creates a redis-backed broker from broker configuration.
func NewRedis(cfg config.Broker) (*RedisBroker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("broker addr is required")
	}
	if cfg.QueueKey == "" {
		return nil, fmt.Errorf("broker queue key is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisBroker{client: client, key: cfg.QueueKey}, nil
}

// Push enqueues a work item with LPUSH. The reply is the new list length,
// which doubles as submission verification for the dispatcher.
func (b *RedisBroker) Push(ctx context.Context, item WorkItem) (int64, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal work item: %w", err)
	}
	depth, err := b.client.LPush(ctx, b.key, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("push work item: %w", err)
	}
	return depth, nil
}

// Pop blocks on BRPOP for the next work item.
func (b *RedisBroker) Pop(ctx context.Context, timeout time.Duration) (*WorkItem, error) {
	res, err := b.client.BRPop(ctx, timeout, b.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop work item: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	var item WorkItem
	if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
		return nil, fmt.Errorf("unmarshal work item: %w", err)
	}
	return &item, nil
}

// Revoke removes waiting work items for an artifact with LREM. Items already
// held by a worker are untouched; revocation before pickup has no side
// effects by construction.
func (b *RedisBroker) Revoke(ctx context.Context, artifactID string) (bool, error) {
	items, err := b.client.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("scan queue: %w", err)
	}
	removed := false
	for _, raw := range items {
		var item WorkItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		if item.ArtifactID != artifactID {
			continue
		}
		n, err := b.client.LRem(ctx, b.key, 1, raw).Result()
		if err != nil {
			return removed, fmt.Errorf("remove work item: %w", err)
		}
		if n > 0 {
			removed = true
		}
	}
	return removed, nil
}

// Depth returns the queue length.
func (b *RedisBroker) Depth(ctx context.Context) (int64, error) {
	depth, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// PendingArtifacts lists artifact ids with waiting work items.
func (b *RedisBroker) PendingArtifacts(ctx context.Context) (map[string]struct{}, error) {
	items, err := b.client.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	pending := make(map[string]struct{}, len(items))
	for _, raw := range items {
		var item WorkItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		pending[item.ArtifactID] = struct{}{}
	}
	return pending, nil
}

// Close closes the redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
