package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

const errorSummaryLimit = 512

// OpenSession opens a new session for a (device, account) pair. Any session
// still marked running for the same pair is aborted first so at most one
// stays open.
func (s *Store) OpenSession(deviceID, accountID string) (*models.Session, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE device_id = ? AND account_id = ? AND status = ?`,
		models.SessionStatusAborted, now, deviceID, accountID, models.SessionStatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("abort stale sessions: %w", err)
	}

	sess := &models.Session{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		AccountID: accountID,
		Status:    models.SessionStatusRunning,
		StartedAt: now,
	}
	_, err = tx.Exec(
		`INSERT INTO sessions (id, device_id, account_id, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.DeviceID, sess.AccountID, sess.Status, sess.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return sess, nil
}

// CloseSession records the aggregate outcome of a run.
func (s *Store) CloseSession(id string, status models.SessionStatus, actionsDone, errCount int, errSummary string) error {
	if len(errSummary) > errorSummaryLimit {
		errSummary = errSummary[:errorSummaryLimit]
	}
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, actions_done = ?, errors = ?, error_summary = ?, ended_at = ? WHERE id = ?`,
		status, actionsDone, errCount, errSummary, time.Now().UTC(), id,
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Get(&sess, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return &sess, nil
}

// ListRecentSessions returns the most recent sessions, newest first.
func (s *Store) ListRecentSessions(limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []models.Session
	err := s.db.Select(&sessions,
		`SELECT * FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return sessions, nil
}
