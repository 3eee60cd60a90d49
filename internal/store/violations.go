package store

import (
	"context"
	"fmt"
	"time"
)

// Violation is a recorded match between an artifact event and a detection
// rule. Rows are immutable; reruns replace the artifact's whole set.
type Violation struct {
	ID         int64
	ArtifactID string
	CaseID     string
	EventID    string
	RuleID     string
	RuleTitle  string
	CreatedAt  time.Time
}

// ReplaceViolations purges the artifact's prior violations and inserts the
// new set in one transaction so re-runs never double-count.
func (s *Store) ReplaceViolations(ctx context.Context, artifactID string, violations []Violation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin violations tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM violations WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("purge violations: %w", err)
	}

	now := timestamp(time.Now().UTC())
	for _, v := range violations {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO violations (artifact_id, case_id, event_id, rule_id, rule_title, created_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			artifactID,
			v.CaseID,
			v.EventID,
			v.RuleID,
			v.RuleTitle,
			now,
		); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit violations: %w", err)
	}
	return nil
}

// PurgeViolations removes all violations recorded for an artifact. Used by
// the recovery pass before re-dispatching a partially processed artifact.
func (s *Store) PurgeViolations(ctx context.Context, artifactID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM violations WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("purge violations: %w", err)
	}
	return nil
}

// ViolationsForArtifact returns the artifact's violations ordered by insertion.
func (s *Store) ViolationsForArtifact(ctx context.Context, artifactID string) ([]Violation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, artifact_id, case_id, event_id, rule_id, rule_title, created_at
         FROM violations WHERE artifact_id = ? ORDER BY id`,
		artifactID,
	)
	if err != nil {
		return nil, fmt.Errorf("violations for artifact: %w", err)
	}
	defer rows.Close()

	var violations []Violation
	for rows.Next() {
		var (
			v          Violation
			createdRaw string
		)
		if err := rows.Scan(&v.ID, &v.ArtifactID, &v.CaseID, &v.EventID, &v.RuleID, &v.RuleTitle, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			v.CreatedAt = created
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountViolations returns the number of violations recorded for an artifact.
func (s *Store) CountViolations(ctx context.Context, artifactID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM violations WHERE artifact_id = ?`, artifactID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return count, nil
}
