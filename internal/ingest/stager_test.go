package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casefile/internal/artifact"
	"casefile/internal/ingest"
	"casefile/internal/logging"
	"casefile/internal/testsupport"
)

func TestStageCopiesIntoCaseStorage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "upload.jsonl")
	testsupport.WriteJSONL(t, source, `{"EventID":1}`)

	stager := ingest.NewStager(cfg, st, nil, logging.NewNop())
	a, err := stager.Stage(ctx, "case-1", "upload.jsonl", source)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if a.Status != artifact.StatusStaged || a.Location != artifact.LocationStorage {
		t.Fatalf("unexpected staged artifact: %#v", a)
	}
	if !strings.HasPrefix(a.Path, cfg.CaseStorageDir("case-1")) {
		t.Fatalf("artifact path %s not under case storage", a.Path)
	}
	if _, err := os.Stat(a.Path); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source must be left untouched: %v", err)
	}
}

func TestStageRejectsDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "upload.jsonl")
	testsupport.WriteJSONL(t, source, `{"EventID":1}`)

	stager := ingest.NewStager(cfg, st, nil, logging.NewNop())
	first, err := stager.Stage(ctx, "case-1", "upload.jsonl", source)
	if err != nil {
		t.Fatalf("first Stage failed: %v", err)
	}

	existing, err := stager.Stage(ctx, "case-1", "upload.jsonl", source)
	var dup *ingest.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if existing == nil || existing.ID != first.ID {
		t.Fatalf("duplicate must return the existing record, got %#v", existing)
	}
}

func TestStageAllowsSameContentInOtherCase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "upload.jsonl")
	testsupport.WriteJSONL(t, source, `{"EventID":1}`)

	stager := ingest.NewStager(cfg, st, nil, logging.NewNop())
	if _, err := stager.Stage(ctx, "case-1", "upload.jsonl", source); err != nil {
		t.Fatalf("Stage into case-1 failed: %v", err)
	}
	if _, err := stager.Stage(ctx, "case-2", "upload.jsonl", source); err != nil {
		t.Fatalf("dedupe must be case-scoped: %v", err)
	}
}

func TestStageAllowsSameContentUnderDifferentName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	dir := t.TempDir()
	source := filepath.Join(dir, "upload.jsonl")
	testsupport.WriteJSONL(t, source, `{"EventID":1}`)
	renamed := filepath.Join(dir, "renamed.jsonl")
	testsupport.WriteJSONL(t, renamed, `{"EventID":1}`)

	stager := ingest.NewStager(cfg, st, nil, logging.NewNop())
	if _, err := stager.Stage(ctx, "case-1", "upload.jsonl", source); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if _, err := stager.Stage(ctx, "case-1", "renamed.jsonl", renamed); err != nil {
		t.Fatalf("identical bytes under a new name must stage: %v", err)
	}
}
