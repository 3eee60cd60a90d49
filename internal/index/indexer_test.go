package index_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"casefile/internal/artifact"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/services"
	"casefile/internal/testsupport"
)

func TestRunIndexesAllEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSearchBatchSize(2))
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	path := filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path,
		`{"EventID":1,"user":"alice"}`,
		`{"EventID":2,"user":"bob"}`,
		`{"EventID":3,"user":"carol"}`,
	)
	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", path, artifact.StatusProcessingIndex)

	ix := index.NewIndexer(cfg, st, backend, nil, logging.NewNop())
	if err := ix.Run(ctx, a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if backend.Count() != 3 {
		t.Fatalf("indexed %d documents, want 3", backend.Count())
	}
	doc, ok := backend.Get(index.DocID("case-1", a.ID, 1))
	if !ok {
		t.Fatal("first document missing")
	}
	if doc.Fields["user"] != "alice" {
		t.Fatalf("unexpected document fields: %#v", doc.Fields)
	}
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	path := filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path, `{"EventID":1}`, `{"EventID":2}`)
	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", path, artifact.StatusProcessingIndex)

	ix := index.NewIndexer(cfg, st, backend, nil, logging.NewNop())
	for i := 0; i < 3; i++ {
		if err := ix.Run(ctx, a); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}
	if backend.Count() != 2 {
		t.Fatalf("indexed %d documents after reruns, want 2", backend.Count())
	}
}

func TestRunRetriesFailedBatchOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	backend.FailBulk = 1
	ctx := context.Background()

	path := filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path, `{"EventID":1}`)
	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", path, artifact.StatusProcessingIndex)

	ix := index.NewIndexer(cfg, st, backend, nil, logging.NewNop())
	if err := ix.Run(ctx, a); err != nil {
		t.Fatalf("single transient failure must be retried away: %v", err)
	}
	if backend.Count() != 1 {
		t.Fatalf("indexed %d documents, want 1", backend.Count())
	}
}

func TestRunGivesUpAfterSecondBatchFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	backend.FailBulk = 2
	ctx := context.Background()

	path := filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path, `{"EventID":1}`)
	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", path, artifact.StatusProcessingIndex)

	ix := index.NewIndexer(cfg, st, backend, nil, logging.NewNop())
	err := ix.Run(ctx, a)
	if !errors.Is(err, services.ErrIndexWrite) {
		t.Fatalf("expected index write error, got %v", err)
	}
	if services.FailureReason(err) != artifact.ReasonIndexError {
		t.Fatalf("failure reason = %s, want index-error", services.FailureReason(err))
	}
}

func TestRunCorrectsEventCountDrift(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	path := filepath.Join(cfg.CaseStorageDir("case-1"), "a1", "events.jsonl")
	testsupport.WriteJSONL(t, path, `{"EventID":1}`, `{"EventID":2}`)
	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", path, artifact.StatusProcessingIndex)
	a.EventCount = 99

	ix := index.NewIndexer(cfg, st, backend, nil, logging.NewNop())
	if err := ix.Run(ctx, a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fetched, err := st.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if fetched.EventCount != 2 {
		t.Fatalf("event count = %d, want 2", fetched.EventCount)
	}
}
