package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/google/uuid"
)

// CreateJobParams carries the fields for a new job definition.
type CreateJobParams struct {
	Kind        models.ActionKind
	Target      string
	TargetCount int
	DailyLimit  int
	HourlyLimit int
	Priority    int
}

// CreateJob inserts a new job definition.
func (s *Store) CreateJob(p CreateJobParams) (*models.JobDefinition, error) {
	now := time.Now().UTC()
	job := &models.JobDefinition{
		ID:          uuid.New().String(),
		Kind:        p.Kind,
		Target:      p.Target,
		TargetCount: p.TargetCount,
		DailyLimit:  p.DailyLimit,
		HourlyLimit: p.HourlyLimit,
		Priority:    p.Priority,
		Status:      models.JobStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.Exec(
		`INSERT INTO job_definitions (id, kind, target, target_count, daily_limit, hourly_limit, priority, status, completed_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID, job.Kind, job.Target, job.TargetCount, job.DailyLimit, job.HourlyLimit,
		job.Priority, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job definition by ID.
func (s *Store) GetJob(id string) (*models.JobDefinition, error) {
	var job models.JobDefinition
	err := s.db.Get(&job, `SELECT * FROM job_definitions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return &job, nil
}

// ListJobs returns all job definitions, optionally filtered by status.
func (s *Store) ListJobs(status models.JobStatus) ([]models.JobDefinition, error) {
	query := `SELECT * FROM job_definitions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	var jobs []models.JobDefinition
	if err := s.db.Select(&jobs, query, args...); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return jobs, nil
}

// AssignJob links a job definition to an account.
func (s *Store) AssignJob(jobID, accountID string) (*models.JobAssignment, error) {
	now := time.Now().UTC()
	as := &models.JobAssignment{
		ID:        uuid.New().String(),
		JobID:     jobID,
		AccountID: accountID,
		Status:    models.AssignmentStatusAssigned,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(
		`INSERT INTO job_assignments (id, job_id, account_id, completed_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?)`,
		as.ID, as.JobID, as.AccountID, as.Status, as.CreatedAt, as.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	return as, nil
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(id string) (*models.JobAssignment, error) {
	var as models.JobAssignment
	err := s.db.Get(&as, `SELECT * FROM job_assignments WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query assignment: %w", err)
	}
	return &as, nil
}

// ListAssignmentsForJob returns all assignments under one definition.
func (s *Store) ListAssignmentsForJob(jobID string) ([]models.JobAssignment, error) {
	var assignments []models.JobAssignment
	err := s.db.Select(&assignments,
		`SELECT * FROM job_assignments WHERE job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job assignments: %w", err)
	}
	return assignments, nil
}

// AssignmentPair is a job definition joined with one account's assignment.
type AssignmentPair struct {
	Job        models.JobDefinition
	Assignment models.JobAssignment
}

// ListActiveAssignments returns (definition, assignment) pairs for an account
// where the definition is active, the assignment is assigned or active, and
// the assignment has not reached the job's target. Ordered priority desc,
// then definition creation time asc.
func (s *Store) ListActiveAssignments(accountID string) ([]AssignmentPair, error) {
	rows, err := s.db.Queryx(
		`SELECT j.id, j.kind, j.target, j.target_count, j.daily_limit, j.hourly_limit, j.priority, j.status, j.completed_count, j.created_at, j.updated_at,
		        a.id, a.job_id, a.account_id, a.completed_count, a.status, a.created_at, a.updated_at
		 FROM job_definitions j
		 JOIN job_assignments a ON a.job_id = j.id
		 WHERE a.account_id = ?
		   AND j.status = ?
		   AND a.status IN (?, ?)
		   AND (j.target_count <= 0 OR j.completed_count < j.target_count)
		 ORDER BY j.priority DESC, j.created_at ASC`,
		accountID, models.JobStatusActive,
		models.AssignmentStatusAssigned, models.AssignmentStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("query active assignments: %w", err)
	}
	defer rows.Close()

	var pairs []AssignmentPair
	for rows.Next() {
		var p AssignmentPair
		err := rows.Scan(
			&p.Job.ID, &p.Job.Kind, &p.Job.Target, &p.Job.TargetCount, &p.Job.DailyLimit,
			&p.Job.HourlyLimit, &p.Job.Priority, &p.Job.Status, &p.Job.CompletedCount,
			&p.Job.CreatedAt, &p.Job.UpdatedAt,
			&p.Assignment.ID, &p.Assignment.JobID, &p.Assignment.AccountID,
			&p.Assignment.CompletedCount, &p.Assignment.Status,
			&p.Assignment.CreatedAt, &p.Assignment.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan assignment pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// CountAssignmentSuccessSince counts successful ledger entries for one
// assignment's job written by the account since the cutoff. Used for the
// daily budget computation.
func (s *Store) CountAssignmentSuccessSince(accountID string, kind models.ActionKind, target string, since time.Time) (int, error) {
	// Job targets are namespaced in the ledger as "<target>:<sub-target>",
	// so a prefix match covers every sub-step of the job.
	var n int
	err := s.db.Get(&n,
		`SELECT COUNT(*) FROM action_records
		 WHERE account_id = ? AND kind = ? AND success = 1 AND target_id LIKE ? AND created_at >= ?`,
		accountID, kind, target+"%", since.UTC())
	if err != nil {
		return 0, fmt.Errorf("count assignment success: %w", err)
	}
	return n, nil
}

// RecordJobOutcome appends one outcome to an assignment. On success it
// increments the assignment's count, recomputes the definition's total as the
// sum across all assignments, and cascades completion to the definition and
// every assignment under it once the sum meets the target. The whole update
// runs in one transaction; the total is always re-aggregated rather than
// incremented so interleaved writers converge.
func (s *Store) RecordJobOutcome(assignmentID string, success bool) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var as models.JobAssignment
	if err := tx.Get(&as, `SELECT * FROM job_assignments WHERE id = ?`, assignmentID); err != nil {
		return fmt.Errorf("query assignment: %w", err)
	}

	if !success {
		// Failures never advance counters; nothing else to update.
		return tx.Commit()
	}

	_, err = tx.Exec(
		`UPDATE job_assignments SET completed_count = completed_count + 1, status = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		models.AssignmentStatusActive, now, assignmentID, models.AssignmentStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("increment assignment: %w", err)
	}

	var total int
	if err := tx.Get(&total,
		`SELECT COALESCE(SUM(completed_count), 0) FROM job_assignments WHERE job_id = ?`, as.JobID); err != nil {
		return fmt.Errorf("aggregate assignments: %w", err)
	}

	var job models.JobDefinition
	if err := tx.Get(&job, `SELECT * FROM job_definitions WHERE id = ?`, as.JobID); err != nil {
		return fmt.Errorf("query job: %w", err)
	}

	status := job.Status
	if job.TargetCount > 0 && total >= job.TargetCount {
		status = models.JobStatusCompleted
	}

	_, err = tx.Exec(
		`UPDATE job_definitions SET completed_count = ?, status = ?, updated_at = ? WHERE id = ?`,
		total, status, now, as.JobID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	if status == models.JobStatusCompleted {
		_, err = tx.Exec(
			`UPDATE job_assignments SET status = ?, updated_at = ? WHERE job_id = ?`,
			models.AssignmentStatusCompleted, now, as.JobID,
		)
		if err != nil {
			return fmt.Errorf("cascade completion: %w", err)
		}
	}

	return tx.Commit()
}
