package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"casefile/internal/logs"
	"casefile/internal/testsupport"
)

func TestTailReturnsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casefile.log")
	testsupport.WriteFile(t, path, "one\ntwo\nthree\nfour\n")

	lines, offset, err := logs.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Fatalf("lines = %v", lines)
	}
	if offset == 0 {
		t.Fatal("offset must point past the read content")
	}
}

func TestTailMissingFile(t *testing.T) {
	lines, offset, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(lines) != 0 || offset != 0 {
		t.Fatalf("lines = %v offset = %d", lines, offset)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "casefile.log")
	testsupport.WriteFile(t, path, "old\n")

	_, offset, err := logs.Tail(path, 0)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}

	got := make(chan string, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		_ = logs.Follow(ctx, path, offset, func(line string) { got <- line })
	}()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := file.WriteString("new line\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	file.Close()

	select {
	case line := <-got:
		if line != "new line" {
			t.Fatalf("line = %q", line)
		}
	case <-ctx.Done():
		t.Fatal("appended line never streamed")
	}
}
