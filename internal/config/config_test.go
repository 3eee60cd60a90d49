package config_test

import (
	"path/filepath"
	"strings"
	"testing"

	"casefile/internal/config"
	"casefile/internal/testsupport"
)

func validConfig(t *testing.T) config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.StorageDir = filepath.Join(base, "storage")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	testsupport.WriteFile(t, path, `
[paths]
staging_dir = "`+filepath.Join(base, "staging")+`"
storage_dir = "`+filepath.Join(base, "storage")+`"
archive_dir = "`+filepath.Join(base, "archive")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[pipeline]
workers = 2
worker_memory_ceiling_mb = 256

[search]
batch_size = 100
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Fatalf("workers = %d, want 2", cfg.Pipeline.Workers)
	}
	if cfg.Search.BatchSize != 100 {
		t.Fatalf("batch size = %d, want 100", cfg.Search.BatchSize)
	}
	if cfg.Search.PageSize != 250 {
		t.Fatalf("page size = %d, want the default 250", cfg.Search.PageSize)
	}
}

func TestLoadMissingExplicitPathUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("missing file reported as existing")
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("workers = %d, want the default 4", cfg.Pipeline.Workers)
	}
}

func TestValidateRejectsOversizedWorkerPool(t *testing.T) {
	cfg := validConfig(t)
	cfg.Pipeline.Workers = 16
	cfg.Pipeline.WorkerMemoryCeilingMB = 512
	cfg.Pipeline.MemoryBudgetMB = 4096

	err := cfg.Validate()
	if err == nil {
		t.Fatal("pool worst case above the memory budget must be rejected")
	}
	if !strings.Contains(err.Error(), "memory_budget_mb") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsStaleTimeoutBelowHeartbeat(t *testing.T) {
	cfg := validConfig(t)
	cfg.Pipeline.HeartbeatSeconds = 60
	cfg.Pipeline.StaleTimeoutSeconds = 60

	if err := cfg.Validate(); err == nil {
		t.Fatal("stale timeout at the heartbeat interval must be rejected")
	}
}

func TestValidateRejectsSharedArtifactDirectories(t *testing.T) {
	cfg := validConfig(t)
	cfg.Paths.ArchiveDir = cfg.Paths.StorageDir

	if err := cfg.Validate(); err == nil {
		t.Fatal("storage and archive must not share a directory")
	}
}
