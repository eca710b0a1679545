// Package limiter enforces per-account rate limits, interaction dedup, and
// the dead-source circuit breaker on top of the action ledger.
package limiter

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/store"
)

// deadRetryAge is how old a dead source's last failure must be before it is
// eligible for a half-open retry.
const deadRetryAge = 7 * 24 * time.Hour

// dedupWindow returns the trailing dedup window for a kind.
func dedupWindow(kind models.ActionKind) time.Duration {
	switch kind {
	case models.ActionFollow, models.ActionUnfollow:
		return 30 * 24 * time.Hour
	case models.ActionLike, models.ActionComment, models.ActionSave, models.ActionShare:
		return 14 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Limiter is the per-run view of the rate/dedup ledger for one
// (device, account). It caches targets acted on during the run in memory and
// persists every attempt through the shared ledger so re-invocations stay
// idempotent.
type Limiter struct {
	store    *store.Store
	log      *slog.Logger
	deviceID string
	account  models.Account
	settings models.AccountSettings
	rng      *rand.Rand

	seen map[models.ActionKind]map[string]struct{}
}

// NewRun creates a limiter scoped to one engine run.
func NewRun(s *store.Store, log *slog.Logger, deviceID string, account models.Account, settings models.AccountSettings) *Limiter {
	return &Limiter{
		store:    s,
		log:      log,
		deviceID: deviceID,
		account:  account,
		settings: settings,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		seen:     make(map[models.ActionKind]map[string]struct{}),
	}
}

// localMidnight returns the start of the current day in local time.
func localMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// DailyRemaining returns how many successful actions of a kind the account
// may still perform today. capped is false when the kind carries no daily
// limit.
func (l *Limiter) DailyRemaining(kind models.ActionKind, now time.Time) (remaining int, capped bool, err error) {
	limit := l.settings.DailyLimit(kind)
	if limit <= 0 {
		return 0, false, nil
	}
	done, err := l.store.CountSuccessfulActionsSince(l.deviceID, l.account.ID, kind, localMidnight(now))
	if err != nil {
		return 0, true, fmt.Errorf("daily count for %s: %w", kind, err)
	}
	return limit - done, true, nil
}

// SessionTarget draws the per-run random sub-quota for a kind within the
// configured [min,max], further capped by the remaining daily budget.
func (l *Limiter) SessionTarget(kind models.ActionKind, now time.Time) (int, error) {
	lo, hi := l.settings.SessionMin, l.settings.SessionMax
	target := lo
	if hi > lo {
		target = lo + l.rng.Intn(hi-lo+1)
	}

	remaining, capped, err := l.DailyRemaining(kind, now)
	if err != nil {
		return 0, err
	}
	if capped {
		if remaining <= 0 {
			return 0, nil
		}
		if remaining < target {
			target = remaining
		}
	}
	return target, nil
}

// AllowTarget reports whether a target may be acted on for a kind. It checks
// the in-run cache, the trailing dedup window of persisted records, and (for
// follows, when enabled) the cross-account tag dedup.
func (l *Limiter) AllowTarget(kind models.ActionKind, targetID string, now time.Time) (bool, error) {
	if targetID == "" {
		return true, nil
	}
	if _, ok := l.seen[kind][targetID]; ok {
		return false, nil
	}

	recent, err := l.store.RecentTargetsSince(l.account.ID, kind, now.Add(-dedupWindow(kind)))
	if err != nil {
		return false, fmt.Errorf("recent targets for %s: %w", kind, err)
	}
	for _, t := range recent {
		if t == targetID {
			return false, nil
		}
	}

	if kind == models.ActionFollow && l.settings.TagDedupEnabled && l.account.Tag != "" {
		peers, err := l.store.TagFollowedTargets(l.account.Tag, l.account.ID)
		if err != nil {
			return false, fmt.Errorf("tag dedup: %w", err)
		}
		for _, t := range peers {
			if t == targetID {
				l.log.Debug("target already followed by tag peer",
					"tag", l.account.Tag, "target", targetID)
				return false, nil
			}
		}
	}
	return true, nil
}

// NoteResult logs one sub-step attempt through the shared ledger and updates
// the in-run cache. Actions must call this for every destructive sub-step so
// the ledger stays authoritative.
func (l *Limiter) NoteResult(kind models.ActionKind, targetID string, success bool, errMsg string) error {
	if _, err := l.store.AppendActionRecord(l.deviceID, l.account.ID, kind, targetID, success, errMsg); err != nil {
		return err
	}
	if success && targetID != "" {
		if l.seen[kind] == nil {
			l.seen[kind] = make(map[string]struct{})
		}
		l.seen[kind][targetID] = struct{}{}
	}
	return nil
}

// SourceAllowed consults the dead-source breaker before time is spent on an
// external source. A dead source whose last failure is older than the retry
// age is eligible again (half-open).
func (l *Limiter) SourceAllowed(source string, now time.Time) (bool, error) {
	ds, err := l.store.GetDeadSource(l.account.ID, source)
	if err != nil {
		return false, err
	}
	if ds == nil || ds.Status != models.SourceStatusDead {
		return true, nil
	}
	if now.Sub(ds.LastFailedAt) > deadRetryAge {
		return true, nil
	}
	return false, nil
}

// NoteSourceFailure increments the breaker for a source.
func (l *Limiter) NoteSourceFailure(source string) error {
	ds, err := l.store.RecordSourceFailure(l.account.ID, source)
	if err != nil {
		return err
	}
	if ds.Status == models.SourceStatusDead {
		l.log.Info("source marked dead", "account", l.account.Username, "source", source, "fail_count", ds.FailCount)
	}
	return nil
}

// NoteSourceSuccess fully resets the breaker for a source.
func (l *Limiter) NoteSourceSuccess(source string) error {
	return l.store.RecordSourceSuccess(l.account.ID, source)
}
