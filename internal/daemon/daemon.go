// Package daemon wires the long-running services together and enforces
// single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"casefile/internal/config"
	"casefile/internal/logging"
	"casefile/internal/metrics"
	"casefile/internal/store"
	"casefile/internal/workflow"
)

// Daemon coordinates the worker pool, the maintenance sweeps, and the
// metrics endpoint behind a filesystem lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager
	recovery *workflow.Recovery
	intake   *workflow.Intake
	metrics  *metrics.Metrics

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	metricsSrv *http.Server
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, rec *workflow.Recovery, in *workflow.Intake, m *metrics.Metrics) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || wf == nil || rec == nil || in == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, recovery, and intake")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "casefiled.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: wf,
		recovery: rec,
		intake:   in,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers any work abandoned by a previous
// run, and launches the worker pool and background sweeps.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another casefiled instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	recovered, err := d.recovery.RecoverStale(d.ctx)
	if err != nil {
		d.logger.Warn("startup stale recovery failed", logging.Error(err))
	} else if recovered > 0 {
		d.logger.Info("recovered artifacts from previous run", logging.Int("count", recovered))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.recovery.RunLoops(d.ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.intake.RunLoop(d.ctx)
	}()

	if d.cfg.Metrics.Enabled {
		d.startMetricsServer()
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts everything down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.metricsSrv.Shutdown(shutdownCtx)
		cancel()
		d.metricsSrv = nil
	}

	d.cancel()
	d.workflow.Stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock failed", logging.Error(err))
	}
	d.logger.Info("daemon stopped")
}

// Close releases resources after Stop.
func (d *Daemon) Close() error {
	return d.store.Close()
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := d.store.CheckHealth(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              d.cfg.Metrics.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.metricsSrv = srv
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", logging.Error(err))
		}
	}()
	d.logger.Info("metrics endpoint listening", logging.String("bind", d.cfg.Metrics.Bind))
}
