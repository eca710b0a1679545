package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

const deadPromoteThreshold = 3

// GetDeadSource retrieves the breaker row for an (account, source) pair.
func (s *Store) GetDeadSource(accountID, source string) (*models.DeadSource, error) {
	var ds models.DeadSource
	err := s.db.Get(&ds,
		`SELECT * FROM dead_sources WHERE account_id = ? AND source = ?`, accountID, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dead source: %w", err)
	}
	return &ds, nil
}

// RecordSourceFailure upserts the breaker row, incrementing fail_count and
// promoting to dead at the threshold.
func (s *Store) RecordSourceFailure(accountID, source string) (*models.DeadSource, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var ds models.DeadSource
	err = tx.Get(&ds, `SELECT * FROM dead_sources WHERE account_id = ? AND source = ?`, accountID, source)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ds = models.DeadSource{
			ID:           uuid.New().String(),
			AccountID:    accountID,
			Source:       source,
			FailCount:    1,
			Status:       models.SourceStatusSuspect,
			LastFailedAt: now,
		}
		_, err = tx.Exec(
			`INSERT INTO dead_sources (id, account_id, source, fail_count, status, last_failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ds.ID, ds.AccountID, ds.Source, ds.FailCount, ds.Status, ds.LastFailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert dead source: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("query dead source: %w", err)
	default:
		ds.FailCount++
		ds.LastFailedAt = now
		if ds.FailCount >= deadPromoteThreshold {
			ds.Status = models.SourceStatusDead
		}
		_, err = tx.Exec(
			`UPDATE dead_sources SET fail_count = ?, status = ?, last_failed_at = ? WHERE id = ?`,
			ds.FailCount, ds.Status, ds.LastFailedAt, ds.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update dead source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &ds, nil
}

// RecordSourceSuccess deletes the breaker row entirely. A success is a full
// reset, not a decrement.
func (s *Store) RecordSourceSuccess(accountID, source string) error {
	_, err := s.db.Exec(
		`DELETE FROM dead_sources WHERE account_id = ? AND source = ?`, accountID, source)
	return err
}

// ListDeadSources returns all breaker rows for an account.
func (s *Store) ListDeadSources(accountID string) ([]models.DeadSource, error) {
	var sources []models.DeadSource
	err := s.db.Select(&sources,
		`SELECT * FROM dead_sources WHERE account_id = ? ORDER BY last_failed_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query dead sources: %w", err)
	}
	return sources, nil
}
