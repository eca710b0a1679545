package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// CreateAccountParams carries the fields for a new account.
type CreateAccountParams struct {
	DeviceID    string
	Username    string
	Credentials string
	WindowStart int
	WindowEnd   int
	Tag         string
	Settings    string
	WarmupUntil *time.Time
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(p CreateAccountParams) (*models.Account, error) {
	now := time.Now().UTC()
	acc := &models.Account{
		ID:          uuid.New().String(),
		DeviceID:    p.DeviceID,
		Username:    p.Username,
		Credentials: p.Credentials,
		WindowStart: p.WindowStart,
		WindowEnd:   p.WindowEnd,
		Tag:         p.Tag,
		Status:      models.AccountStatusActive,
		WarmupUntil: p.WarmupUntil,
		SettingsRaw: p.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.Exec(
		`INSERT INTO accounts (id, device_id, username, credentials, window_start, window_end, tag, status, warmup_until, settings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.DeviceID, acc.Username, acc.Credentials, acc.WindowStart, acc.WindowEnd,
		acc.Tag, acc.Status, acc.WarmupUntil, acc.SettingsRaw, acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(id string) (*models.Account, error) {
	var acc models.Account
	err := s.db.Get(&acc, `SELECT * FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acc, nil
}

// ListAccountsForDevice returns all accounts owned by a device, oldest first.
func (s *Store) ListAccountsForDevice(deviceID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Select(&accounts,
		`SELECT * FROM accounts WHERE device_id = ? ORDER BY created_at ASC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query device accounts: %w", err)
	}
	return accounts, nil
}

// ListActiveAccountsForDevice returns only status=active accounts for a device.
func (s *Store) ListActiveAccountsForDevice(deviceID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Select(&accounts,
		`SELECT * FROM accounts WHERE device_id = ? AND status = ? ORDER BY created_at ASC`,
		deviceID, models.AccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	return accounts, nil
}

// ListAccountsByTag returns active accounts sharing a dedup tag.
func (s *Store) ListAccountsByTag(tag string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Select(&accounts,
		`SELECT * FROM accounts WHERE tag = ? AND tag != '' ORDER BY created_at ASC`, tag)
	if err != nil {
		return nil, fmt.Errorf("query accounts by tag: %w", err)
	}
	return accounts, nil
}

// UpdateAccountStatus updates the lifecycle status of an account.
func (s *Store) UpdateAccountStatus(id string, status models.AccountStatus) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	return err
}

// SetAccountWarmup sets or clears the warmup expiry for an account.
func (s *Store) SetAccountWarmup(id string, until *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE accounts SET warmup_until = ?, updated_at = ? WHERE id = ?`,
		until, time.Now().UTC(), id,
	)
	return err
}
