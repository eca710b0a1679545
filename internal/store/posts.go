package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// SchedulePost queues a content post for an account.
func (s *Store) SchedulePost(accountID, caption, mediaPath string, dueAt time.Time) (*models.ScheduledPost, error) {
	post := &models.ScheduledPost{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Caption:   caption,
		MediaPath: mediaPath,
		Status:    models.PostStatusPending,
		DueAt:     dueAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO scheduled_posts (id, account_id, caption, media_path, status, due_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.AccountID, post.Caption, post.MediaPath, post.Status, post.DueAt, post.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert scheduled post: %w", err)
	}
	return post, nil
}

// NextDuePost returns the oldest pending post whose due time has passed, or
// nil when nothing is due.
func (s *Store) NextDuePost(accountID string, now time.Time) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := s.db.Get(&post,
		`SELECT * FROM scheduled_posts
		 WHERE account_id = ? AND status = ? AND due_at <= ?
		 ORDER BY due_at ASC LIMIT 1`,
		accountID, models.PostStatusPending, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query due post: %w", err)
	}
	return &post, nil
}

// MarkPost updates the status of a scheduled post.
func (s *Store) MarkPost(id, status string) error {
	_, err := s.db.Exec(`UPDATE scheduled_posts SET status = ? WHERE id = ?`, status, id)
	return err
}
