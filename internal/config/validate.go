package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		return errors.New("paths.archive_dir must be set")
	}
	seen := map[string]string{}
	for name, dir := range map[string]string{
		"staging_dir": c.Paths.StagingDir,
		"storage_dir": c.Paths.StorageDir,
		"archive_dir": c.Paths.ArchiveDir,
	} {
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("paths.%s and paths.%s must not share a directory", name, other)
		}
		seen[dir] = name
	}
	return nil
}

func (c *Config) validateBroker() error {
	if strings.TrimSpace(c.Broker.Addr) == "" {
		return errors.New("broker.addr must be set")
	}
	if strings.TrimSpace(c.Broker.QueueKey) == "" {
		return errors.New("broker.queue_key must be set")
	}
	return nil
}

func (c *Config) validateSearch() error {
	if c.Search.BatchSize <= 0 {
		return errors.New("search.batch_size must be positive")
	}
	if c.Search.PageSize <= 0 {
		return errors.New("search.page_size must be positive")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if strings.TrimSpace(c.Detection.EngineBinary) == "" {
		return errors.New("detection.engine_binary must be set")
	}
	if c.Detection.TimeoutSeconds <= 0 {
		return errors.New("detection.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if c.Pipeline.WorkerMemoryCeilingMB <= 0 {
		return errors.New("pipeline.worker_memory_ceiling_mb must be positive")
	}
	if c.Pipeline.MaxArtifactsPerWorker <= 0 {
		return errors.New("pipeline.max_artifacts_per_worker must be positive")
	}
	if c.Pipeline.HeartbeatSeconds <= 0 {
		return errors.New("pipeline.heartbeat_seconds must be positive")
	}
	if c.Pipeline.StaleTimeoutSeconds <= c.Pipeline.HeartbeatSeconds {
		return errors.New("pipeline.stale_timeout_seconds must exceed pipeline.heartbeat_seconds")
	}
	// The pool-wide worst case must fit the configured budget.
	worstCase := c.Pipeline.Workers * c.Pipeline.WorkerMemoryCeilingMB
	if c.Pipeline.MemoryBudgetMB > 0 && worstCase > c.Pipeline.MemoryBudgetMB {
		return fmt.Errorf(
			"pipeline.workers (%d) x pipeline.worker_memory_ceiling_mb (%d) = %d MB exceeds pipeline.memory_budget_mb (%d)",
			c.Pipeline.Workers, c.Pipeline.WorkerMemoryCeilingMB, worstCase, c.Pipeline.MemoryBudgetMB,
		)
	}
	return nil
}
