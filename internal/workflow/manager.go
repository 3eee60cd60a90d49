// Package workflow coordinates the worker pool that drives queued artifacts
// through the indexing, detection, and hunting stages.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/broker"
	"casefile/internal/config"
	"casefile/internal/dispatch"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/notifications"
	"casefile/internal/store"
)

// Handler executes one pipeline stage for an artifact.
type Handler interface {
	Run(ctx context.Context, a *artifact.Artifact) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, a *artifact.Artifact) error

func (f HandlerFunc) Run(ctx context.Context, a *artifact.Artifact) error {
	return f(ctx, a)
}

// stage pairs a processing status with the handler that runs under it.
type stage struct {
	status  artifact.Status
	handler Handler
}

// Manager owns the worker pool. Workers pull work items from the broker and
// walk each artifact through the stage sequence with compare-and-set status
// transitions, so no database lock is ever held across stage I/O.
type Manager struct {
	cfg        *config.Config
	store      *store.Store
	broker     broker.Broker
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	stages       []stage
	pollInterval time.Duration
	heartbeat    *heartbeatMonitor
	notifier     notifications.Service

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a workflow manager with the three standard stages.
func NewManager(cfg *config.Config, st *store.Store, b broker.Broker, d *dispatch.Dispatcher, m *metrics.Metrics, logger *slog.Logger, indexer, detector, hunter Handler) *Manager {
	pollInterval := time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		store:      st,
		broker:     b,
		dispatcher: d,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "workflow"),
		stages: []stage{
			{status: artifact.StatusProcessingIndex, handler: indexer},
			{status: artifact.StatusProcessingDetect, handler: detector},
			{status: artifact.StatusProcessingHunt, handler: hunter},
		},
		pollInterval: pollInterval,
		heartbeat: newHeartbeatMonitor(
			st,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatSeconds)*time.Second,
		),
		notifier: notifications.NewService(cfg),
	}
}

// SetNotifier replaces the notification service built from the config.
func (m *Manager) SetNotifier(svc notifications.Service) {
	if svc != nil {
		m.notifier = svc
	}
}

// Start launches the supervisor and worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.superviseWorker(runCtx, i)
	}
	m.logger.Info("worker pool started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for workers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("worker pool stopped")
}

// superviseWorker runs one worker slot, respawning a fresh worker whenever
// the current one retires at its task or memory ceiling. The slot survives
// until shutdown.
func (m *Manager) superviseWorker(ctx context.Context, slot int) {
	defer m.wg.Done()
	for {
		w := newWorker(m, slot)
		w.run(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}
		m.metrics.IncWorkerRestarts()
		m.logger.Info("worker retired, respawning",
			logging.Int(logging.FieldWorkerID, slot),
			logging.Int64("tasks", w.tasksProcessed),
		)
	}
}
