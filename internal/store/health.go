package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// OpenHealthEvent creates an unresolved health event for an
// (account, event_type) pair. Idempotent: if one is already open the existing
// row is returned and created reports false.
func (s *Store) OpenHealthEvent(accountID, eventType, detail string) (ev *models.HealthEvent, created bool, err error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing models.HealthEvent
	err = tx.Get(&existing,
		`SELECT * FROM health_events WHERE account_id = ? AND event_type = ? AND resolved_at IS NULL`,
		accountID, eventType)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("query health event: %w", err)
	}

	ev = &models.HealthEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		EventType: eventType,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.Exec(
		`INSERT INTO health_events (id, account_id, event_type, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.AccountID, ev.EventType, ev.Detail, ev.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert health event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return ev, true, nil
}

// ResolveHealthEvent marks every open event of a type for an account resolved.
func (s *Store) ResolveHealthEvent(accountID, eventType string) error {
	_, err := s.db.Exec(
		`UPDATE health_events SET resolved_at = ? WHERE account_id = ? AND event_type = ? AND resolved_at IS NULL`,
		time.Now().UTC(), accountID, eventType,
	)
	return err
}

// ListOpenHealthEvents returns all unresolved events, oldest first.
func (s *Store) ListOpenHealthEvents() ([]models.HealthEvent, error) {
	var events []models.HealthEvent
	err := s.db.Select(&events,
		`SELECT * FROM health_events WHERE resolved_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query health events: %w", err)
	}
	return events, nil
}
