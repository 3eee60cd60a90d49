package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"casefile/internal/logging"
	"casefile/internal/store"
)

// heartbeatMonitor refreshes an in-flight artifact's heartbeat so the stale
// sweep can tell a slow worker from a dead one.
type heartbeatMonitor struct {
	store    *store.Store
	logger   *slog.Logger
	interval time.Duration
}

func newHeartbeatMonitor(st *store.Store, logger *slog.Logger, interval time.Duration) *heartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &heartbeatMonitor{
		store:    st,
		logger:   logging.NewComponentLogger(logger, "heartbeat"),
		interval: interval,
	}
}

// loop beats for one artifact until the context ends.
func (h *heartbeatMonitor) loop(ctx context.Context, artifactID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, artifactID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.String(logging.FieldArtifactID, artifactID),
					logging.Error(err),
				)
			}
		}
	}
}
