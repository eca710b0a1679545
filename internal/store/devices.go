package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// CreateDevice inserts a new device.
func (s *Store) CreateDevice(id, name string) (*models.Device, error) {
	now := time.Now().UTC()
	if id == "" {
		id = uuid.New().String()
	}
	dev := &models.Device{
		ID:        id,
		Name:      name,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO devices (id, name, enabled, connected, created_at, updated_at) VALUES (?, ?, 1, 0, ?, ?)`,
		dev.ID, dev.Name, dev.CreatedAt, dev.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert device: %w", err)
	}
	return dev, nil
}

// GetDevice retrieves a device by ID.
func (s *Store) GetDevice(id string) (*models.Device, error) {
	var dev models.Device
	err := s.db.Get(&dev, `SELECT * FROM devices WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	return &dev, nil
}

// ListDevices returns all devices.
func (s *Store) ListDevices() ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.Select(&devices, `SELECT * FROM devices ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	return devices, nil
}

// ListEnabledDevices returns devices eligible for orchestration.
func (s *Store) ListEnabledDevices() ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.Select(&devices, `SELECT * FROM devices WHERE enabled = 1 ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("query enabled devices: %w", err)
	}
	return devices, nil
}

// SetDeviceEnabled flips the orchestration eligibility of a device.
func (s *Store) SetDeviceEnabled(id string, enabled bool) error {
	_, err := s.db.Exec(
		`UPDATE devices SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id,
	)
	return err
}

// SetDeviceConnected records the externally observed connection state.
func (s *Store) SetDeviceConnected(id string, connected bool) error {
	_, err := s.db.Exec(
		`UPDATE devices SET connected = ?, updated_at = ? WHERE id = ?`,
		connected, time.Now().UTC(), id,
	)
	return err
}
