package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"casefile/internal/artifact"
)

// HealthSummary describes aggregated artifact counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Staged     int
	Filtered   int
	Queued     int
	Processing int
	Archived   int
	Completed  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the metadata database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalArtifacts   int
	Error            string
}

// Stats returns a count of artifacts grouped by status.
func (s *Store) Stats(ctx context.Context) (map[artifact.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM artifacts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("artifact stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[artifact.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[artifact.Status(status)] = count
	}
	return stats, rows.Err()
}

// Health aggregates artifact state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case artifact.StatusStaged:
			health.Staged += count
		case artifact.StatusFiltered:
			health.Filtered += count
		case artifact.StatusQueued:
			health.Queued += count
		case artifact.StatusArchivedEmpty:
			health.Archived += count
		case artifact.StatusCompleted:
			health.Completed += count
		case artifact.StatusFailed:
			health.Failed += count
		default:
			if artifact.IsProcessingStatus(status) {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the metadata database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("metadata database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat metadata database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("metadata database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("metadata database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping metadata database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'artifacts'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM artifacts")
		if err := row.Scan(&health.TotalArtifacts); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count artifacts: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
