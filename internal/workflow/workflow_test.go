package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"casefile/internal/artifact"
	"casefile/internal/broker"
	"casefile/internal/config"
	"casefile/internal/detect"
	"casefile/internal/dispatch"
	"casefile/internal/hunt"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/rules"
	"casefile/internal/store"
	"casefile/internal/testsupport"
	"casefile/internal/workflow"
)

type stubEngine struct {
	matches []detect.Match
}

func (e *stubEngine) Scan(context.Context, string) ([]detect.Match, error) {
	return e.matches, nil
}

type pipeline struct {
	cfg     *config.Config
	store   *store.Store
	broker  *broker.MemoryBroker
	backend *index.MemoryStore
	manager *workflow.Manager
	dsp     *dispatch.Dispatcher
}

func newPipeline(t *testing.T, engine detect.Engine) *pipeline {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	b := broker.NewMemory()
	backend := index.NewMemory()
	logger := logging.NewNop()

	d := dispatch.New(st, b, nil, logger)
	indexer := index.NewIndexer(cfg, st, backend, nil, logger)
	detector := detect.NewDetectorWithEngine(cfg, st, backend, &rules.Catalog{}, engine, nil, logger)
	hunter := hunt.New(cfg, st, backend, nil, logger)
	manager := workflow.NewManager(cfg, st, b, d, nil, logger, indexer, detector, hunter)

	t.Cleanup(func() {
		manager.Stop()
		b.Close()
	})
	return &pipeline{cfg: cfg, store: st, broker: b, backend: backend, manager: manager, dsp: d}
}

func waitForStatus(t *testing.T, st *store.Store, id string, want artifact.Status) *artifact.Artifact {
	t.Helper()

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		a, err := st.GetArtifact(context.Background(), id)
		if err != nil {
			t.Fatalf("GetArtifact failed: %v", err)
		}
		if a.Status == want {
			return a
		}
		if a.Status == artifact.StatusFailed && want != artifact.StatusFailed {
			t.Fatalf("artifact failed (%s) while waiting for %s", artifact.Display(a.Status, a.FailureReason), want)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("artifact %s never reached %s", id, want)
	return nil
}

func TestPipelineDrivesArtifactToCompleted(t *testing.T) {
	engine := &stubEngine{matches: []detect.Match{
		{EventSeq: 2, RuleTitle: "Suspicious PowerShell Download", Level: "high"},
	}}
	p := newPipeline(t, engine)
	ctx := context.Background()

	path := filepath.Join(p.cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path,
		`{"EventID":1,"user":"alice"}`,
		`{"EventID":2,"user":"mallory","CommandLine":"powershell -enc ..."}`,
		`{"EventID":3,"user":"bob"}`,
	)
	a := testsupport.SeedArtifact(t, p.store, "case-1", "events.jsonl", path, artifact.StatusFiltered)
	testsupport.SeedIndicator(t, p.store, "case-1", artifact.IndicatorUsername, "mallory")

	if err := p.dsp.Dispatch(ctx, a); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if err := p.manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := waitForStatus(t, p.store, a.ID, artifact.StatusCompleted)
	if done.EventCount != 3 {
		t.Fatalf("event count = %d, want 3", done.EventCount)
	}
	if done.ViolationCount != 1 {
		t.Fatalf("violation count = %d, want 1", done.ViolationCount)
	}
	if done.IOCHitCount != 1 {
		t.Fatalf("ioc hit count = %d, want 1", done.IOCHitCount)
	}

	if p.backend.Count() != 3 {
		t.Fatalf("indexed %d documents, want 3", p.backend.Count())
	}
	flagged, _ := p.backend.Get(index.DocID("case-1", a.ID, 2))
	if !flagged.HasSigmaMatch {
		t.Fatal("violating document not flagged")
	}
	if len(flagged.MatchedIndicators) != 1 {
		t.Fatalf("matched indicators = %v", flagged.MatchedIndicators)
	}
}

func TestPipelineHonorsCancelAtStageBoundary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	b := broker.NewMemory()
	logger := logging.NewNop()
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusFiltered)

	// The first stage requests cancellation against its own artifact, as an
	// operator would from the CLI while the stage runs.
	firstStage := workflow.HandlerFunc(func(ctx context.Context, a *artifact.Artifact) error {
		return st.RequestCancel(ctx, a.ID)
	})
	sentinel := workflow.HandlerFunc(func(context.Context, *artifact.Artifact) error {
		t.Error("stage after the cancel point must not run")
		return nil
	})

	d := dispatch.New(st, b, nil, logger)
	manager := workflow.NewManager(cfg, st, b, d, nil, logger, firstStage, sentinel, sentinel)
	t.Cleanup(func() {
		manager.Stop()
		b.Close()
	})

	if err := d.Dispatch(ctx, a); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancelled := waitForStatus(t, st, a.ID, artifact.StatusFiltered)
	if cancelled.CancelRequested {
		t.Fatal("cancel flag must be consumed")
	}
}

func TestPipelineFailsArtifactOnStageError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	b := broker.NewMemory()
	logger := logging.NewNop()
	ctx := context.Background()

	// A missing file behind the artifact path makes the indexing stage fail
	// with a parse error.
	a := testsupport.SeedArtifact(t, st, "case-1", "gone.jsonl",
		filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "gone.jsonl"), artifact.StatusFiltered)

	backend := index.NewMemory()
	indexer := index.NewIndexer(cfg, st, backend, nil, logger)
	d := dispatch.New(st, b, nil, logger)
	manager := workflow.NewManager(cfg, st, b, d, nil, logger, indexer, indexer, indexer)
	t.Cleanup(func() {
		manager.Stop()
		b.Close()
	})

	if err := d.Dispatch(ctx, a); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	failed := waitForStatus(t, st, a.ID, artifact.StatusFailed)
	if failed.FailureReason == artifact.ReasonNone {
		t.Fatal("failed artifact must carry a reason")
	}
}

func TestRecoverStaleReturnsAbandonedArtifact(t *testing.T) {
	engine := &stubEngine{}
	p := newPipeline(t, engine)
	ctx := context.Background()

	a := testsupport.SeedStaleArtifact(t, p.store, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	if err := p.backend.BulkIndex(ctx, []index.Document{{
		DocID: index.DocID("case-1", a.ID, 1), CaseID: "case-1", ArtifactID: a.ID, Seq: 1,
	}}); err != nil {
		t.Fatalf("BulkIndex: %v", err)
	}

	recovery := workflow.NewRecovery(p.manager, p.backend)
	recovered, err := recovery.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("recovered = %d, want 1", recovered)
	}

	if p.backend.Count() != 0 {
		t.Fatalf("partial index output survived recovery: %d docs", p.backend.Count())
	}
	// DispatchReady requeues the recovered artifact immediately.
	fetched, err := p.store.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if fetched.Status != artifact.StatusQueued {
		t.Fatalf("status = %s after recovery, want queued", fetched.Status)
	}
}
