// Package models defines the core domain types for Drover.
package models

import "time"

// AccountStatus represents the lifecycle state of an automation account.
type AccountStatus string

const (
	AccountStatusActive               AccountStatus = "active"
	AccountStatusLoggedOut            AccountStatus = "logged_out"
	AccountStatusSuspended            AccountStatus = "suspended"
	AccountStatusVerificationRequired AccountStatus = "verification_required"
	AccountStatusTwoFactorRequired    AccountStatus = "2fa_required"
)

// Terminal reports whether the status excludes the account from further runs
// until an operator resolves it.
func (s AccountStatus) Terminal() bool {
	switch s {
	case AccountStatusSuspended, AccountStatusVerificationRequired, AccountStatusTwoFactorRequired:
		return true
	}
	return false
}

// SessionStatus represents the outcome of one engine run.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusAborted   SessionStatus = "aborted"
)

// JobStatus represents the state of a job definition.
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
)

// AssignmentStatus represents the state of a per-account job share.
type AssignmentStatus string

const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

// SourceStatus represents the circuit-breaker state of an external target.
type SourceStatus string

const (
	SourceStatusSuspect SourceStatus = "suspect"
	SourceStatusDead    SourceStatus = "dead"
)

// ActionKind identifies one automation capability.
type ActionKind string

const (
	ActionFollow       ActionKind = "follow"
	ActionUnfollow     ActionKind = "unfollow"
	ActionLike         ActionKind = "like"
	ActionComment      ActionKind = "comment"
	ActionDM           ActionKind = "dm"
	ActionEngage       ActionKind = "engage"
	ActionReels        ActionKind = "reels"
	ActionShare        ActionKind = "share"
	ActionSave         ActionKind = "save"
	ActionPostContent  ActionKind = "post_content"
	ActionReport       ActionKind = "report"
	ActionJobDispatch  ActionKind = "job_dispatch"
	ActionListDispatch ActionKind = "list_dispatch"
)

// Device is a physical endpoint that runs one account session at a time.
type Device struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Enabled   bool      `db:"enabled" json:"enabled"`
	Connected bool      `db:"connected" json:"connected"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Account is a target-application identity with its own schedule and limits.
// WindowStart/WindowEnd are hours of day; start==end==0 disables the account's
// schedule entirely, start==end!=0 marks it always-on.
type Account struct {
	ID          string        `db:"id" json:"id"`
	DeviceID    string        `db:"device_id" json:"device_id"`
	Username    string        `db:"username" json:"username"`
	Credentials string        `db:"credentials" json:"-"`
	WindowStart int           `db:"window_start" json:"window_start"`
	WindowEnd   int           `db:"window_end" json:"window_end"`
	Tag         string        `db:"tag" json:"tag,omitempty"`
	Status      AccountStatus `db:"status" json:"status"`
	WarmupUntil *time.Time    `db:"warmup_until" json:"warmup_until,omitempty"`
	SettingsRaw string        `db:"settings" json:"-"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// InWarmup reports whether the account is still inside its warmup phase.
func (a *Account) InWarmup(now time.Time) bool {
	return a.WarmupUntil != nil && now.Before(*a.WarmupUntil)
}

// Session is one bounded engine run for a device+account pair.
type Session struct {
	ID           string        `db:"id" json:"id"`
	DeviceID     string        `db:"device_id" json:"device_id"`
	AccountID    string        `db:"account_id" json:"account_id"`
	Status       SessionStatus `db:"status" json:"status"`
	ActionsDone  int           `db:"actions_done" json:"actions_done"`
	Errors       int           `db:"errors" json:"errors"`
	ErrorSummary string        `db:"error_summary" json:"error_summary,omitempty"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	EndedAt      *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
}

// ActionRecord is an immutable ledger entry for one attempted action.
type ActionRecord struct {
	ID        string     `db:"id" json:"id"`
	DeviceID  string     `db:"device_id" json:"device_id"`
	AccountID string     `db:"account_id" json:"account_id"`
	Kind      ActionKind `db:"kind" json:"kind"`
	TargetID  string     `db:"target_id" json:"target_id,omitempty"`
	Success   bool       `db:"success" json:"success"`
	Error     string     `db:"error" json:"error,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// JobDefinition is a bulk objective shared across accounts.
// CompletedCount is always the derived sum of its assignments' counts.
type JobDefinition struct {
	ID             string     `db:"id" json:"id"`
	Kind           ActionKind `db:"kind" json:"kind"`
	Target         string     `db:"target" json:"target"`
	TargetCount    int        `db:"target_count" json:"target_count"`
	DailyLimit     int        `db:"daily_limit" json:"daily_limit"`
	HourlyLimit    int        `db:"hourly_limit" json:"hourly_limit"`
	Priority       int        `db:"priority" json:"priority"`
	Status         JobStatus  `db:"status" json:"status"`
	CompletedCount int        `db:"completed_count" json:"completed_count"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// JobAssignment links a job definition to one account.
type JobAssignment struct {
	ID             string           `db:"id" json:"id"`
	JobID          string           `db:"job_id" json:"job_id"`
	AccountID      string           `db:"account_id" json:"account_id"`
	CompletedCount int              `db:"completed_count" json:"completed_count"`
	Status         AssignmentStatus `db:"status" json:"status"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// DeadSource is the circuit-breaker row for one (account, external target).
type DeadSource struct {
	ID           string       `db:"id" json:"id"`
	AccountID    string       `db:"account_id" json:"account_id"`
	Source       string       `db:"source" json:"source"`
	FailCount    int          `db:"fail_count" json:"fail_count"`
	Status       SourceStatus `db:"status" json:"status"`
	LastFailedAt time.Time    `db:"last_failed_at" json:"last_failed_at"`
}

// HealthEvent is a persisted, deduplicated flag that an account entered a
// terminal, operator-remediable state.
type HealthEvent struct {
	ID         string     `db:"id" json:"id"`
	AccountID  string     `db:"account_id" json:"account_id"`
	EventType  string     `db:"event_type" json:"event_type"`
	Detail     string     `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// ScheduledPost is a queued content post with a due time.
type ScheduledPost struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"account_id"`
	Caption   string    `db:"caption" json:"caption"`
	MediaPath string    `db:"media_path" json:"media_path"`
	Status    string    `db:"status" json:"status"`
	DueAt     time.Time `db:"due_at" json:"due_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	PostStatusPending = "pending"
	PostStatusPosted  = "posted"
	PostStatusFailed  = "failed"
)
