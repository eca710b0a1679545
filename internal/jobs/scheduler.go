// Package jobs maps prioritized bulk objectives to per-account work with
// session budgets.
package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/drover/internal/store"
)

// Unbounded marks a budget with no target-count cap.
const Unbounded = int(^uint(0) >> 1)

// Scheduler computes per-account job work from the shared store.
type Scheduler struct {
	store *store.Store
	log   *slog.Logger
}

// New creates a scheduler.
func New(s *store.Store, log *slog.Logger) *Scheduler {
	return &Scheduler{store: s, log: log}
}

// ListActiveAssignments returns the (definition, assignment) pairs an account
// should work on, ordered priority desc then definition creation asc.
func (sch *Scheduler) ListActiveAssignments(accountID string) ([]store.AssignmentPair, error) {
	return sch.store.ListActiveAssignments(accountID)
}

// SessionBudget computes how many targets this run may complete for one
// assignment: min(daily remaining, target remaining). A zero or negative
// budget means the assignment is a no-op this run; it is not removed from the
// list.
func (sch *Scheduler) SessionBudget(pair store.AssignmentPair, now time.Time) (int, error) {
	job, as := pair.Job, pair.Assignment

	budget := Unbounded
	if job.TargetCount > 0 {
		budget = job.TargetCount - as.CompletedCount
	}

	if job.DailyLimit > 0 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		doneToday, err := sch.store.CountAssignmentSuccessSince(as.AccountID, job.Kind, job.Target, midnight)
		if err != nil {
			return 0, fmt.Errorf("session budget for job %s: %w", job.ID, err)
		}
		if remaining := job.DailyLimit - doneToday; remaining < budget {
			budget = remaining
		}
	}

	if budget < 0 {
		budget = 0
	}
	return budget, nil
}

// RecordOutcome appends one sub-step outcome to the ledger and, on success,
// advances the assignment and re-aggregates the definition's total. Completion
// cascades to every assignment under the job inside the same transaction.
func (sch *Scheduler) RecordOutcome(deviceID string, pair store.AssignmentPair, targetID string, success bool, errMsg string) error {
	// Namespace the ledger target under the job target so budget counting
	// can match all of the job's sub-steps by prefix.
	ledgerTarget := pair.Job.Target
	if targetID != "" {
		ledgerTarget = pair.Job.Target + ":" + targetID
	}
	if _, err := sch.store.AppendActionRecord(deviceID, pair.Assignment.AccountID, pair.Job.Kind, ledgerTarget, success, errMsg); err != nil {
		return fmt.Errorf("append job record: %w", err)
	}

	if err := sch.store.RecordJobOutcome(pair.Assignment.ID, success); err != nil {
		return fmt.Errorf("record job outcome: %w", err)
	}

	if success {
		sch.log.Debug("job progress",
			"job", pair.Job.ID, "assignment", pair.Assignment.ID, "target", targetID)
	}
	return nil
}
