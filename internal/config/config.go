package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the three canonical artifact areas plus log storage.
// Staging holds uploads in transit, storage holds processable artifacts,
// archive holds hidden zero-value artifacts.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StorageDir string `toml:"storage_dir"`
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
}

// Broker contains work-queue connection settings.
type Broker struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	QueueKey string `toml:"queue_key"`
}

// Search contains settings for the document index backend.
type Search struct {
	Endpoint  string `toml:"endpoint"`
	Index     string `toml:"index"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	BatchSize int    `toml:"batch_size"`
	PageSize  int    `toml:"page_size"`
	TimeoutS  int    `toml:"timeout_seconds"`
}

// Detection contains settings for the external signature engine.
type Detection struct {
	EngineBinary   string `toml:"engine_binary"`
	RulesDir       string `toml:"rules_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains worker pool sizing and resource ceilings. The pool-wide
// worst case (workers x worker_memory_ceiling_mb) must fit host memory with
// margin; Validate enforces the product against pipeline.memory_budget_mb.
type Pipeline struct {
	Workers                int `toml:"workers"`
	WorkerMemoryCeilingMB  int `toml:"worker_memory_ceiling_mb"`
	MemoryBudgetMB         int `toml:"memory_budget_mb"`
	MaxArtifactsPerWorker  int `toml:"max_artifacts_per_worker"`
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	HeartbeatSeconds       int `toml:"heartbeat_seconds"`
	StaleTimeoutSeconds    int `toml:"stale_timeout_seconds"`
	ReconcileIntervalSecs  int `toml:"reconcile_interval_seconds"`
	ErrorRetryIntervalSecs int `toml:"error_retry_interval_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains the prometheus exposition settings.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Notifications contains ntfy push settings. An empty topic disables
// notifications entirely.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Config encapsulates all configuration values for casefile.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Broker        Broker        `toml:"broker"`
	Search        Search        `toml:"search"`
	Detection     Detection     `toml:"detection"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/casefile/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("casefile.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	fields := []*string{
		&c.Paths.StagingDir,
		&c.Paths.StorageDir,
		&c.Paths.ArchiveDir,
		&c.Paths.LogDir,
		&c.Detection.RulesDir,
	}
	for _, field := range fields {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// EnsureDirectories creates the staging, storage, archive, and log areas.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StorageDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CaseStorageDir returns the active-storage directory for a case.
func (c *Config) CaseStorageDir(caseID string) string {
	return filepath.Join(c.Paths.StorageDir, caseID)
}

// CaseArchiveDir returns the archive directory for a case.
func (c *Config) CaseArchiveDir(caseID string) string {
	return filepath.Join(c.Paths.ArchiveDir, caseID)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
