package ingest_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"casefile/internal/ingest"
)

func TestExpandArchivePassesThroughPlainFiles(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "events.jsonl")
	if err := os.WriteFile(source, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	paths, err := ingest.ExpandArchive(source, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ExpandArchive failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != source {
		t.Fatalf("plain file must pass through unchanged, got %v", paths)
	}
}

func TestExpandArchiveUnpacksZip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "bundle.zip")

	f, err := os.Create(source)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		"one.jsonl": `{"a":1}`,
		"two.csv":   "h\nv\n",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close zip file: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	paths, err := ingest.ExpandArchive(source, outDir)
	if err != nil {
		t.Fatalf("ExpandArchive failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d extracted paths, want 2", len(paths))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("extracted file missing: %v", err)
		}
	}
}

func TestExpandArchiveUnpacksGzip(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "events.jsonl.gz")

	f, err := os.Create(source)
	if err != nil {
		t.Fatalf("create gzip: %v", err)
	}
	gw := gzip.NewWriter(f)
	if _, err := gw.Write([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close gzip file: %v", err)
	}

	paths, err := ingest.ExpandArchive(source, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ExpandArchive failed: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d extracted paths, want 1", len(paths))
	}
	contents, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(contents) != `{"a":1}` {
		t.Fatalf("unexpected extracted contents: %q", contents)
	}
}
