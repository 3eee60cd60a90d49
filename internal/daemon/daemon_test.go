package daemon_test

import (
	"context"
	"strings"
	"testing"

	"casefile/internal/artifact"
	"casefile/internal/broker"
	"casefile/internal/config"
	"casefile/internal/daemon"
	"casefile/internal/dispatch"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/store"
	"casefile/internal/testsupport"
	"casefile/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config, st *store.Store) *daemon.Daemon {
	t.Helper()

	b := broker.NewMemory()
	backend := index.NewMemory()
	logger := logging.NewNop()

	handler := workflow.HandlerFunc(func(context.Context, *artifact.Artifact) error { return nil })
	d := dispatch.New(st, b, nil, logger)
	manager := workflow.NewManager(cfg, st, b, d, nil, logger, handler, handler, handler)
	recovery := workflow.NewRecovery(manager, backend)
	intake := workflow.NewIntake(manager, handler)

	dm, err := daemon.New(cfg, st, logger, manager, recovery, intake, nil)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	t.Cleanup(func() {
		b.Close()
	})
	return dm
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	d := newDaemon(t, cfg, st)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start on a running daemon must fail")
	}
	d.Stop()

	// A stopped daemon releases the lock and can start again.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestSecondInstanceRejectedByLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := newDaemon(t, cfg, st)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	second := newDaemon(t, cfg, st)
	err := second.Start(context.Background())
	if err == nil {
		second.Stop()
		t.Fatal("second instance must not acquire the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}
