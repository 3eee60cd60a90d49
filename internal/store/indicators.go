package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"casefile/internal/artifact"
)

const indicatorColumns = "id, case_id, type, value, enabled, strategy, hit_count"

// UpsertIndicator inserts or replaces an indicator definition. Hit counts are
// preserved across updates of the same id.
func (s *Store) UpsertIndicator(ctx context.Context, ind *artifact.Indicator) error {
	if ind == nil {
		return errors.New("indicator is nil")
	}
	if ind.Strategy == "" {
		ind.Strategy = artifact.DefaultStrategy(ind.Type)
	}
	now := timestamp(time.Now().UTC())
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO indicators (id, case_id, type, value, enabled, strategy, hit_count, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (id) DO UPDATE SET
             case_id = excluded.case_id, type = excluded.type, value = excluded.value,
             enabled = excluded.enabled, strategy = excluded.strategy, updated_at = excluded.updated_at`,
		ind.ID,
		ind.CaseID,
		string(ind.Type),
		ind.Value,
		boolToInt(ind.Enabled),
		string(ind.Strategy),
		ind.HitCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert indicator: %w", err)
	}
	return nil
}

// EnabledIndicators returns the enabled indicator set for a case.
func (s *Store) EnabledIndicators(ctx context.Context, caseID string) ([]*artifact.Indicator, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+indicatorColumns+` FROM indicators WHERE case_id = ? AND enabled = 1 ORDER BY created_at`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("enabled indicators: %w", err)
	}
	defer rows.Close()

	return collectIndicators(rows)
}

// ListIndicators returns every indicator for a case.
func (s *Store) ListIndicators(ctx context.Context, caseID string) ([]*artifact.Indicator, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+indicatorColumns+` FROM indicators WHERE case_id = ? ORDER BY created_at`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list indicators: %w", err)
	}
	defer rows.Close()

	return collectIndicators(rows)
}

// AddIndicatorHits increments an indicator's cumulative hit counter.
func (s *Store) AddIndicatorHits(ctx context.Context, id string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	now := timestamp(time.Now().UTC())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE indicators SET hit_count = hit_count + ?, updated_at = ? WHERE id = ?`,
		delta,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("add indicator hits: %w", err)
	}
	return nil
}

func collectIndicators(rows *sql.Rows) ([]*artifact.Indicator, error) {
	var indicators []*artifact.Indicator
	for rows.Next() {
		var (
			ind      artifact.Indicator
			indType  string
			strategy string
			enabled  int
		)
		if err := rows.Scan(&ind.ID, &ind.CaseID, &indType, &ind.Value, &enabled, &strategy, &ind.HitCount); err != nil {
			return nil, err
		}
		ind.Type = artifact.IndicatorType(indType)
		ind.Strategy = artifact.MatchStrategy(strategy)
		ind.Enabled = enabled != 0
		indicators = append(indicators, &ind)
	}
	return indicators, rows.Err()
}
