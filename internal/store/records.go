package store

import (
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// AppendActionRecord writes one immutable ledger entry.
func (s *Store) AppendActionRecord(deviceID, accountID string, kind models.ActionKind, targetID string, success bool, errMsg string) (*models.ActionRecord, error) {
	rec := &models.ActionRecord{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		AccountID: accountID,
		Kind:      kind,
		TargetID:  targetID,
		Success:   success,
		Error:     errMsg,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO action_records (id, device_id, account_id, kind, target_id, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.DeviceID, rec.AccountID, rec.Kind, rec.TargetID, rec.Success, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert action record: %w", err)
	}
	return rec, nil
}

// CountSuccessfulActionsSince counts successful records for a
// (device, account, kind) triple created at or after the cutoff.
func (s *Store) CountSuccessfulActionsSince(deviceID, accountID string, kind models.ActionKind, since time.Time) (int, error) {
	var n int
	err := s.db.Get(&n,
		`SELECT COUNT(*) FROM action_records
		 WHERE device_id = ? AND account_id = ? AND kind = ? AND success = 1 AND created_at >= ?`,
		deviceID, accountID, kind, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// RecentTargetsSince returns the distinct target ids successfully acted upon
// by an account for a kind since the cutoff.
func (s *Store) RecentTargetsSince(accountID string, kind models.ActionKind, since time.Time) ([]string, error) {
	var targets []string
	err := s.db.Select(&targets,
		`SELECT DISTINCT target_id FROM action_records
		 WHERE account_id = ? AND kind = ? AND success = 1 AND target_id != '' AND created_at >= ?`,
		accountID, kind, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query recent targets: %w", err)
	}
	return targets, nil
}

// TagFollowedTargets returns the union of target ids successfully followed by
// any account sharing the tag, excluding the asking account.
func (s *Store) TagFollowedTargets(tag, excludeAccountID string) ([]string, error) {
	if tag == "" {
		return nil, nil
	}
	var targets []string
	err := s.db.Select(&targets,
		`SELECT DISTINCT r.target_id FROM action_records r
		 JOIN accounts a ON a.id = r.account_id
		 WHERE a.tag = ? AND r.account_id != ? AND r.kind = ? AND r.success = 1 AND r.target_id != ''`,
		tag, excludeAccountID, models.ActionFollow)
	if err != nil {
		return nil, fmt.Errorf("query tag targets: %w", err)
	}
	return targets, nil
}

// ListActionRecordsForSessionWindow returns records for an account between two
// instants, oldest first.
func (s *Store) ListActionRecordsForSessionWindow(accountID string, from, to time.Time) ([]models.ActionRecord, error) {
	var records []models.ActionRecord
	err := s.db.Select(&records,
		`SELECT * FROM action_records WHERE account_id = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC`,
		accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query action records: %w", err)
	}
	return records, nil
}
