package parser_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"casefile/internal/artifact"
	"casefile/internal/parser"
	"casefile/internal/testsupport"
)

func TestCountEventsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	testsupport.WriteJSONL(t, path,
		`{"timestamp":"2024-03-01T10:00:00Z","EventID":4624,"user":"alice"}`,
		`{"timestamp":"2024-03-01T10:00:01Z","EventID":4625,"user":"bob"}`,
		`{"timestamp":"2024-03-01T10:00:02Z","EventID":4688,"user":"carol"}`,
	)

	count, err := parser.CountEvents(path, artifact.FormatJSONL)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestCountEventsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	testsupport.WriteFile(t, path, "")

	count, err := parser.CountEvents(path, artifact.FormatJSONL)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestStreamJSONLRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	testsupport.WriteJSONL(t, path,
		`{"EventID":1}`,
		`{not json`,
	)

	_, err := parser.Stream(context.Background(), path, artifact.FormatJSONL, 10, func([]parser.Event) error { return nil })
	if !errors.Is(err, parser.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestStreamJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	testsupport.WriteFile(t, path, `[{"EventID":1},{"EventID":2}]`)

	var total int
	count, err := parser.Stream(context.Background(), path, artifact.FormatJSON, 1, func(batch []parser.Event) error {
		total += len(batch)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if count != 2 || total != 2 {
		t.Fatalf("count=%d total=%d, want 2/2", count, total)
	}
}

func TestStreamCSVMapsHeaderToFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	testsupport.WriteFile(t, path, "timestamp,user,action\n2024-03-01T10:00:00Z,alice,login\n2024-03-01T11:00:00Z,bob,logout\n")

	var events []parser.Event
	_, err := parser.Stream(context.Background(), path, artifact.FormatCSV, 10, func(batch []parser.Event) error {
		events = append(events, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Fields["user"] != "alice" || events[1].Fields["action"] != "logout" {
		t.Fatalf("header mapping broken: %#v", events)
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("timestamp column must populate event timestamp")
	}
}

func TestStreamGenericWrapsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	testsupport.WriteFile(t, path, "first line\nsecond line\n")

	var events []parser.Event
	_, err := parser.Stream(context.Background(), path, artifact.FormatGeneric, 10, func(batch []parser.Event) error {
		events = append(events, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Fields["message"] != "first line" {
		t.Fatalf("unexpected generic fields: %#v", events[0].Fields)
	}
}

func TestStreamAssignsMonotonicSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	testsupport.WriteJSONL(t, path, `{"a":1}`, `{"a":2}`, `{"a":3}`)

	var seqs []int64
	_, err := parser.Stream(context.Background(), path, artifact.FormatJSONL, 2, func(batch []parser.Event) error {
		for _, ev := range batch {
			seqs = append(seqs, ev.Seq)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	for i, seq := range seqs {
		if seq != int64(i+1) {
			t.Fatalf("seq[%d] = %d, want %d", i, seq, i+1)
		}
	}
}
