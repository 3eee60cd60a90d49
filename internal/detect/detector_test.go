package detect_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"casefile/internal/artifact"
	"casefile/internal/detect"
	"casefile/internal/index"
	"casefile/internal/logging"
	"casefile/internal/rules"
	"casefile/internal/testsupport"
)

type stubEngine struct {
	matches []detect.Match
	err     error
	scans   int
}

func (e *stubEngine) Scan(context.Context, string) ([]detect.Match, error) {
	e.scans++
	return e.matches, e.err
}

func TestRunRecordsViolationsAndFlagsDocuments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	docID := index.DocID("case-1", a.ID, 4)
	if err := backend.BulkIndex(ctx, []index.Document{
		{DocID: index.DocID("case-1", a.ID, 3), CaseID: "case-1", ArtifactID: a.ID, Seq: 3},
		{DocID: docID, CaseID: "case-1", ArtifactID: a.ID, Seq: 4},
	}); err != nil {
		t.Fatalf("BulkIndex: %v", err)
	}

	engine := &stubEngine{matches: []detect.Match{
		{EventSeq: 4, RuleTitle: "Suspicious PowerShell Download", Level: "high"},
	}}
	d := detect.NewDetectorWithEngine(cfg, st, backend, &rules.Catalog{}, engine, nil, logging.NewNop())
	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	violations, err := st.ViolationsForArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("ViolationsForArtifact failed: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(violations))
	}
	if violations[0].EventID != docID {
		t.Fatalf("violation event id = %q, want %q", violations[0].EventID, docID)
	}

	doc, _ := backend.Get(docID)
	if !doc.HasSigmaMatch {
		t.Fatal("matched document not flagged")
	}
	unmatched, _ := backend.Get(index.DocID("case-1", a.ID, 3))
	if unmatched.HasSigmaMatch {
		t.Fatal("unmatched document flagged")
	}

	fetched, err := st.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if fetched.ViolationCount != 1 {
		t.Fatalf("violation count = %d, want 1", fetched.ViolationCount)
	}
	if fetched.Degraded {
		t.Fatal("healthy run must not degrade the artifact")
	}
}

func TestRunReplacesViolationsOnRerun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	engine := &stubEngine{matches: []detect.Match{
		{EventSeq: 1, RuleTitle: "Rule A", Level: "high"},
		{EventSeq: 2, RuleTitle: "Rule B", Level: "low"},
	}}
	d := detect.NewDetectorWithEngine(cfg, st, backend, &rules.Catalog{}, engine, nil, logging.NewNop())
	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	engine.matches = engine.matches[:1]
	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	count, err := st.CountViolations(ctx, a.ID)
	if err != nil {
		t.Fatalf("CountViolations failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("violations = %d after rerun, want 1", count)
	}
}

func TestRunWarnsWhenRuleTitleNotInCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	engine := &stubEngine{matches: []detect.Match{
		{EventSeq: 1, RuleTitle: "Retired Rule", Level: "medium"},
	}}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := detect.NewDetectorWithEngine(cfg, st, backend, &rules.Catalog{}, engine, nil, logger)
	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	violations, err := st.ViolationsForArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("ViolationsForArtifact failed: %v", err)
	}
	if len(violations) != 1 || violations[0].RuleID != "" {
		t.Fatalf("unexpected violations: %#v", violations)
	}
	logged := buf.String()
	if !strings.Contains(logged, "no catalog rule") || !strings.Contains(logged, "Retired Rule") {
		t.Fatalf("catalog drift not logged:\n%s", logged)
	}
}

func TestRunDegradesOnEngineFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	backend := index.NewMemory()
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	engine := &stubEngine{err: errors.New("exit status 2")}
	d := detect.NewDetectorWithEngine(cfg, st, backend, &rules.Catalog{}, engine, nil, logging.NewNop())

	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("engine failure must not fail the stage: %v", err)
	}

	fetched, err := st.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if !fetched.Degraded {
		t.Fatal("artifact not marked degraded")
	}
	if fetched.Status != artifact.StatusProcessingDetect {
		t.Fatalf("status = %s, want processing_detect", fetched.Status)
	}
}

func TestRunDegradesWhenEngineMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.SeedArtifact(t, st, "case-1", "events.jsonl", "/tmp/events.jsonl", artifact.StatusProcessingDetect)
	d := detect.NewDetectorWithEngine(cfg, st, index.NewMemory(), &rules.Catalog{}, nil, nil, logging.NewNop())

	if err := d.Run(ctx, a); err != nil {
		t.Fatalf("missing engine must degrade, not fail: %v", err)
	}
	fetched, err := st.GetArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if !fetched.Degraded {
		t.Fatal("artifact not marked degraded")
	}
}
