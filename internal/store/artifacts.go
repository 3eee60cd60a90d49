package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"casefile/internal/artifact"
)

const artifactColumns = "id, case_id, name, fingerprint, path, location, format, status, failure_reason, hidden, degraded, cancel_requested, event_count, violation_count, ioc_hit_count, last_heartbeat, created_at, updated_at"

// InsertArtifact persists a new artifact row.
func (s *Store) InsertArtifact(ctx context.Context, a *artifact.Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (`+artifactColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.CaseID,
		a.Name,
		a.Fingerprint,
		a.Path,
		string(a.Location),
		string(a.Format),
		string(a.Status),
		nullableString(string(a.FailureReason)),
		boolToInt(a.Hidden),
		boolToInt(a.Degraded),
		boolToInt(a.CancelRequested),
		a.EventCount,
		a.ViolationCount,
		a.IOCHitCount,
		nullableTime(a.LastHeartbeat),
		timestamp(a.CreatedAt),
		timestamp(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetArtifact fetches an artifact by identifier.
func (s *Store) GetArtifact(ctx context.Context, id string) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// FindActiveByFingerprint returns the first non-archived, non-failed artifact
// in the case matching both fingerprint and declared name. Archived and
// failed rows do not block re-upload.
func (s *Store) FindActiveByFingerprint(ctx context.Context, caseID, fingerprint, name string) (*artifact.Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts
         WHERE case_id = ? AND fingerprint = ? AND name = ? AND status NOT IN (?, ?)
         ORDER BY created_at LIMIT 1`,
		caseID,
		fingerprint,
		name,
		string(artifact.StatusArchivedEmpty),
		string(artifact.StatusFailed),
	)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return a, nil
}

// UpdateArtifact persists changes to an existing artifact row. The heartbeat
// column is owned by the claim and heartbeat statements and is never written
// here, so a stage handler persisting counters from a pre-claim snapshot
// cannot erase the timestamp the stale sweep relies on.
func (s *Store) UpdateArtifact(ctx context.Context, a *artifact.Artifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE artifacts
         SET name = ?, fingerprint = ?, path = ?, location = ?, format = ?,
             status = ?, failure_reason = ?, hidden = ?, degraded = ?,
             cancel_requested = ?, event_count = ?, violation_count = ?,
             ioc_hit_count = ?, updated_at = ?
         WHERE id = ?`,
		a.Name,
		a.Fingerprint,
		a.Path,
		string(a.Location),
		string(a.Format),
		string(a.Status),
		nullableString(string(a.FailureReason)),
		boolToInt(a.Hidden),
		boolToInt(a.Degraded),
		boolToInt(a.CancelRequested),
		a.EventCount,
		a.ViolationCount,
		a.IOCHitCount,
		timestamp(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
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

// ArtifactsByStatus returns artifacts matching any of the provided statuses
// ordered by creation time.
func (s *Store) ArtifactsByStatus(ctx context.Context, statuses ...artifact.Status) ([]*artifact.Artifact, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE status IN (`+placeholders+`) ORDER BY created_at`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	return collectArtifacts(rows)
}

// ListArtifacts returns all artifacts for a case, or every artifact when
// caseID is empty, ordered by creation time.
func (s *Store) ListArtifacts(ctx context.Context, caseID string) ([]*artifact.Artifact, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if caseID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE case_id = ? ORDER BY created_at`, caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	return collectArtifacts(rows)
}

func collectArtifacts(rows *sql.Rows) ([]*artifact.Artifact, error) {
	var artifacts []*artifact.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*artifact.Artifact, error) {
	var (
		id               string
		caseID           string
		name             string
		fingerprint      string
		path             string
		location         string
		format           string
		statusStr        string
		failureReason    sql.NullString
		hidden           int
		degraded         int
		cancelRequested  int
		eventCount       int64
		violationCount   int64
		iocHitCount      int64
		lastHeartbeatRaw sql.NullString
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&id,
		&caseID,
		&name,
		&fingerprint,
		&path,
		&location,
		&format,
		&statusStr,
		&failureReason,
		&hidden,
		&degraded,
		&cancelRequested,
		&eventCount,
		&violationCount,
		&iocHitCount,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	a := &artifact.Artifact{
		ID:              id,
		CaseID:          caseID,
		Name:            name,
		Fingerprint:     fingerprint,
		Path:            path,
		Location:        artifact.Location(location),
		Format:          artifact.Format(format),
		Status:          artifact.Status(statusStr),
		FailureReason:   artifact.FailureReason(failureReason.String),
		Hidden:          hidden != 0,
		Degraded:        degraded != 0,
		CancelRequested: cancelRequested != 0,
		EventCount:      eventCount,
		ViolationCount:  violationCount,
		IOCHitCount:     iocHitCount,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		a.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		a.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			a.LastHeartbeat = &heartbeat
		}
	}
	return a, nil
}
