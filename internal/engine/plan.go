package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/store"
)

// plannedAction is one entry of the ordered action plan for a run.
type plannedAction struct {
	kind   models.ActionKind
	pair   *store.AssignmentPair
	post   *models.ScheduledPost
	budget int
}

// optionalKinds are the settings-toggled actions, minus engage which is
// always ordered first when enabled.
var optionalKinds = []models.ActionKind{
	models.ActionFollow,
	models.ActionUnfollow,
	models.ActionLike,
	models.ActionComment,
	models.ActionDM,
	models.ActionReels,
	models.ActionShare,
	models.ActionSave,
	models.ActionReport,
}

// planActions determines the ordered actions for one run. Warmup accounts run
// a minimal safe subset. Otherwise: at most one due scheduled post, then
// qualifying job assignments in priority order, then settings-enabled
// optional actions with engage forced first and the remainder shuffled. An
// empty plan falls back to the default passive engagement.
func (e *Engine) planActions(account models.Account, settings models.AccountSettings, now time.Time, log *slog.Logger) ([]plannedAction, error) {
	if account.InWarmup(now) {
		log.Info("account in warmup, restricting to passive engagement", "until", account.WarmupUntil)
		if e.registry.Has(models.ActionEngage) {
			return []plannedAction{{kind: models.ActionEngage}}, nil
		}
		return nil, nil
	}

	var plan []plannedAction

	// 1. At most one due scheduled content post.
	if e.registry.Has(models.ActionPostContent) {
		post, err := e.store.NextDuePost(account.ID, now)
		if err != nil {
			return nil, fmt.Errorf("resolve due post: %w", err)
		}
		if post != nil {
			plan = append(plan, plannedAction{kind: models.ActionPostContent, post: post})
		}
	}

	// 2. Active job assignments, priority order. A zero budget skips the
	// assignment this run without removing it.
	pairs, err := e.jobs.ListActiveAssignments(account.ID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for i := range pairs {
		pair := pairs[i]
		budget, err := e.jobs.SessionBudget(pair, now)
		if err != nil {
			return nil, err
		}
		if budget <= 0 {
			log.Debug("assignment has no budget this run", "job", pair.Job.ID)
			continue
		}
		plan = append(plan, plannedAction{kind: pair.Job.Kind, pair: &pair, budget: budget})
	}

	// 3. Settings-enabled optional actions: engage first, remainder shuffled.
	if settings.EngageEnabled && e.registry.Has(models.ActionEngage) {
		plan = append(plan, plannedAction{kind: models.ActionEngage})
	}

	var rest []models.ActionKind
	for _, kind := range optionalKinds {
		if !settings.Enabled(kind) || !e.registry.Has(kind) {
			continue
		}
		if exhausted, err := e.dailyExhausted(account, settings, kind, now); err != nil {
			return nil, err
		} else if exhausted {
			log.Debug("daily limit reached, skipping kind for this run", "kind", kind)
			continue
		}
		rest = append(rest, kind)
	}
	e.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	for _, kind := range rest {
		plan = append(plan, plannedAction{kind: kind})
	}

	// 4. Fallback: default passive engagement.
	if len(plan) == 0 && e.registry.Has(models.ActionEngage) {
		plan = append(plan, plannedAction{kind: models.ActionEngage})
	}
	return plan, nil
}

// dailyExhausted reports whether a kind's configured daily limit is already
// spent. Kinds without a limit are never exhausted.
func (e *Engine) dailyExhausted(account models.Account, settings models.AccountSettings, kind models.ActionKind, now time.Time) (bool, error) {
	limit := settings.DailyLimit(kind)
	if limit <= 0 {
		return false, nil
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	done, err := e.store.CountSuccessfulActionsSince(account.DeviceID, account.ID, kind, midnight)
	if err != nil {
		return false, fmt.Errorf("daily count for %s: %w", kind, err)
	}
	return done >= limit, nil
}
