package store

import (
	"context"
	"fmt"
	"time"

	"casefile/internal/artifact"
)

// TransitionStatus performs a compare-and-set status change. It reports false
// without error when the artifact was not in the expected status, so callers
// can detect races without holding locks across I/O.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to artifact.Status) (bool, error) {
	now := time.Now().UTC()
	var heartbeat any
	if artifact.IsProcessingStatus(to) {
		heartbeat = timestamp(now)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET status = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to),
		heartbeat,
		timestamp(now),
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed sets a terminal failed status with a structured reason. The
// heartbeat is cleared so the stale sweep ignores the row.
func (s *Store) MarkFailed(ctx context.Context, id string, reason artifact.FailureReason) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET status = ?, failure_reason = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		string(artifact.StatusFailed),
		string(reason),
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// CommitRelocation updates path, location, hidden flag, and status in one
// statement. Callers must have moved the file on disk first; the two fields
// are never written separately.
func (s *Store) CommitRelocation(ctx context.Context, id, path string, location artifact.Location, hidden bool, status artifact.Status) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET path = ?, location = ?, hidden = ?, status = ?, updated_at = ? WHERE id = ?`,
		path,
		string(location),
		boolToInt(hidden),
		string(status),
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("commit relocation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCounters adds per-stage counter deltas. Counters only grow within a
// processing run; negative deltas are rejected.
func (s *Store) AddCounters(ctx context.Context, id string, events, violations, hits int64) error {
	if events < 0 || violations < 0 || hits < 0 {
		return fmt.Errorf("counter deltas must be non-negative")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET event_count = event_count + ?, violation_count = violation_count + ?,
             ioc_hit_count = ioc_hit_count + ?, updated_at = ?
         WHERE id = ?`,
		events,
		violations,
		hits,
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("add counters: %w", err)
	}
	return nil
}

// ResetRunCounters zeroes the violation and IOC hit counters ahead of a
// reprocessing run so purge-then-insert stages start from a clean slate.
func (s *Store) ResetRunCounters(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET violation_count = 0, ioc_hit_count = 0, updated_at = ? WHERE id = ?`,
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("reset run counters: %w", err)
	}
	return nil
}

// SetDegraded records that the detection stage completed without engine output.
func (s *Store) SetDegraded(ctx context.Context, id string, degraded bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET degraded = ?, updated_at = ? WHERE id = ?`,
		boolToInt(degraded),
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("set degraded: %w", err)
	}
	return nil
}

// UpdateHeartbeat refreshes the heartbeat timestamp for an in-flight artifact.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		timestamp(now),
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// RequestCancel sets the advisory cancellation flag. Workers honor it at the
// next stage boundary; an in-flight stage is never preempted.
func (s *Store) RequestCancel(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		timestamp(now),
		id,
	)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// CancelRequested reports the advisory cancellation flag.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM artifacts WHERE id = ?`, id).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("cancel requested: %w", err)
	}
	return flag != 0, nil
}

// CancelToFiltered honors an advisory cancellation at a stage boundary: the
// artifact leaves its processing status, returns to filtered, and the flag is
// consumed, all in one compare-and-set statement.
func (s *Store) CancelToFiltered(ctx context.Context, id string, from artifact.Status) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET status = ?, cancel_requested = 0, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(artifact.StatusFiltered),
		timestamp(now),
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("cancel to filtered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// StaleProcessing returns artifacts stuck in a processing status whose
// heartbeat expired before the cutoff. Rows without a heartbeat are never
// reported: entering a processing status always stamps one, so a NULL here
// is not evidence of abandonment. The recovery pass decides what to do with
// the results; this query never mutates.
func (s *Store) StaleProcessing(ctx context.Context, cutoff time.Time) ([]*artifact.Artifact, error) {
	statuses := artifact.ProcessingStatuses()
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	args = append(args, timestamp(cutoff))

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts
         WHERE status IN (`+placeholders+`) AND last_heartbeat < ?
         ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("stale processing: %w", err)
	}
	defer rows.Close()

	return collectArtifacts(rows)
}

// RetryFailed moves failed artifacts back to filtered so the dispatcher can
// requeue them. With no ids, every failed artifact is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := timestamp(time.Now().UTC())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE artifacts
             SET status = ?, failure_reason = NULL, cancel_requested = 0, updated_at = ?
             WHERE status = ?`,
			string(artifact.StatusFiltered),
			now,
			string(artifact.StatusFailed),
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed artifacts: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, string(artifact.StatusFiltered), now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(artifact.StatusFailed))
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET status = ?, failure_reason = NULL, cancel_requested = 0, updated_at = ?
         WHERE id IN (`+placeholders+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected artifacts: %w", err)
	}
	return res.RowsAffected()
}
