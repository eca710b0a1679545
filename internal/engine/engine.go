// Package engine implements the per-(device, account) execution state
// machine: one bounded run from connect to session close.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/fentz26/drover/internal/actions"
	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/jobs"
	"github.com/fentz26/drover/internal/limiter"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/notify"
	"github.com/fentz26/drover/internal/screen"
	"github.com/fentz26/drover/internal/store"
	"github.com/fentz26/drover/internal/window"
)

// LoginFunc is the external login routine: credentials (plus whatever second
// factor it manages) to success or error.
type LoginFunc func(ctx context.Context, conn device.Conn, account models.Account) error

// Outcome summarizes one engine run.
type Outcome string

const (
	// OutcomeNoop: a clean no-op (outside window, nothing to do).
	OutcomeNoop Outcome = "noop"
	// OutcomeSkipped: a transient environment condition aborted the run
	// before a session opened; the next invocation starts fresh.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeTerminal: the account entered an operator-remediable state.
	OutcomeTerminal Outcome = "terminal"
	// OutcomeCompleted: the action loop ran to its end.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed: recovery failed and truncated the loop.
	OutcomeFailed Outcome = "failed"
)

// Report is the aggregate result of one run.
type Report struct {
	Outcome     Outcome
	SessionID   string
	ActionsDone int
	Errors      int
}

// Engine drives one account on one device per invocation.
type Engine struct {
	store      *store.Store
	jobs       *jobs.Scheduler
	registry   *actions.Registry
	classifier screen.Classifier
	provider   device.Provider
	probe      device.DependencyProbe
	login      LoginFunc
	notifier   notify.Broadcaster
	log        *slog.Logger
	appPackage string
	rng        *rand.Rand

	// now is swappable for tests.
	now func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Store      *store.Store
	Jobs       *jobs.Scheduler
	Registry   *actions.Registry
	Classifier screen.Classifier
	Provider   device.Provider
	Probe      device.DependencyProbe
	Login      LoginFunc
	Notifier   notify.Broadcaster
	Logger     *slog.Logger
	AppPackage string
}

// New creates an engine.
func New(d Deps) *Engine {
	probe := d.Probe
	if probe == nil {
		probe = device.AlwaysReady
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		store:      d.Store,
		jobs:       d.Jobs,
		registry:   d.Registry,
		classifier: d.Classifier,
		provider:   d.Provider,
		probe:      probe,
		login:      d.Login,
		notifier:   notifier,
		log:        d.Logger,
		appPackage: d.AppPackage,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
	}
}

// Run executes one bounded run for a device+account pair. Clean no-op
// conditions and transient environment failures return a report with a nil
// error; only infrastructure faults (store unavailable) surface as errors.
func (e *Engine) Run(ctx context.Context, dev models.Device, account models.Account) (*Report, error) {
	log := e.log.With("device", dev.ID, "account", account.Username)
	now := e.now()

	settings, err := models.ParseSettings(account.SettingsRaw)
	if err != nil {
		log.Warn("invalid account settings, using defaults", "error", err)
	}

	// Re-validate the window independently of the orchestrator.
	if !window.Eligible(account.WindowStart, account.WindowEnd, now.Hour()) {
		log.Debug("outside time window", "start", account.WindowStart, "end", account.WindowEnd)
		return &Report{Outcome: OutcomeNoop}, nil
	}

	conn, err := e.provider.Get(ctx, dev.ID)
	if err != nil {
		if errors.Is(err, device.ErrNotConnected) {
			log.Warn("device not connected, skipping run")
			return &Report{Outcome: OutcomeSkipped}, nil
		}
		return nil, fmt.Errorf("resolve device handle: %w", err)
	}

	ok, err := e.probe(ctx, conn)
	if err != nil || !ok {
		log.Warn("dependency probe failed, aborting run", "error", err)
		return &Report{Outcome: OutcomeSkipped}, nil
	}

	if err := conn.LaunchApp(ctx, e.appPackage); err != nil {
		log.Warn("app launch failed, aborting run", "error", err)
		return &Report{Outcome: OutcomeSkipped}, nil
	}

	state, err := e.classifyScreen(ctx, conn)
	if err != nil {
		log.Warn("screen capture failed, aborting run", "error", err)
		return &Report{Outcome: OutcomeSkipped}, nil
	}

	if state.Terminal() {
		return e.handleTerminalState(ctx, account, state, log)
	}

	if state.LoggedOut() {
		if err := e.attemptLogin(ctx, conn, account, log); err != nil {
			log.Warn("login attempt failed, aborting run", "error", err)
			return &Report{Outcome: OutcomeSkipped}, nil
		}
		// Re-classify after login; a terminal state can surface here too.
		state, err = e.classifyScreen(ctx, conn)
		if err != nil {
			return &Report{Outcome: OutcomeSkipped}, nil
		}
		if state.Terminal() {
			return e.handleTerminalState(ctx, account, state, log)
		}
		if state.LoggedOut() || state == screen.StateUnknown {
			log.Warn("still logged out after login attempt, aborting run")
			return &Report{Outcome: OutcomeSkipped}, nil
		}
	}

	if state == screen.StateUnknown {
		log.Warn("unrecognized screen, aborting run")
		return &Report{Outcome: OutcomeSkipped}, nil
	}

	// Login confirmed; open the session and run the loop. SessionClose runs
	// unconditionally from here on.
	sess, err := e.store.OpenSession(dev.ID, account.ID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	lim := limiter.NewRun(e.store, log, dev.ID, account, settings)
	plan, err := e.planActions(account, settings, now, log)
	if err != nil {
		e.closeSession(sess.ID, models.SessionStatusFailed, 0, 1, err.Error(), log)
		return nil, err
	}

	report := e.runActionLoop(ctx, conn, dev, account, settings, sess, lim, plan, log)
	e.notifier.Broadcast(ctx, "session for %s on %s: %s, %d actions, %d errors",
		account.Username, dev.Name, report.Outcome, report.ActionsDone, report.Errors)
	return report, nil
}

// classifyScreen snapshots the device and classifies the screen, dismissing
// one popup layer first if the classifier reports it.
func (e *Engine) classifyScreen(ctx context.Context, conn device.Conn) (screen.State, error) {
	snap, err := conn.Snapshot(ctx)
	if err != nil {
		return screen.StateUnknown, err
	}
	state := e.classifier.Classify(snap)
	if state != screen.StatePopupDialog {
		return state, nil
	}

	if err := conn.PressBack(ctx); err != nil {
		return screen.StateUnknown, err
	}
	snap, err = conn.Snapshot(ctx)
	if err != nil {
		return screen.StateUnknown, err
	}
	return e.classifier.Classify(snap), nil
}

// handleTerminalState persists the account status, opens exactly one
// unresolved health event per (account, event type), and aborts the run.
func (e *Engine) handleTerminalState(ctx context.Context, account models.Account, state screen.State, log *slog.Logger) (*Report, error) {
	status := accountStatusForScreen(state)
	if err := e.store.UpdateAccountStatus(account.ID, status); err != nil {
		return nil, fmt.Errorf("persist account status: %w", err)
	}

	_, created, err := e.store.OpenHealthEvent(account.ID, string(state), "detected during login check")
	if err != nil {
		return nil, fmt.Errorf("open health event: %w", err)
	}
	if created {
		log.Warn("account entered terminal state", "state", state)
		e.notifier.Broadcast(ctx, "account %s: %s", account.Username, state)
	}
	return &Report{Outcome: OutcomeTerminal}, nil
}

// attemptLogin runs the external login routine once.
func (e *Engine) attemptLogin(ctx context.Context, conn device.Conn, account models.Account, log *slog.Logger) error {
	if e.login == nil {
		return fmt.Errorf("no login routine configured")
	}
	log.Info("attempting login")
	return e.login(ctx, conn, account)
}

func accountStatusForScreen(state screen.State) models.AccountStatus {
	switch state {
	case screen.StateSuspended:
		return models.AccountStatusSuspended
	case screen.StateVerificationRequired:
		return models.AccountStatusVerificationRequired
	case screen.StateTwoFactorRequired:
		return models.AccountStatusTwoFactorRequired
	}
	return models.AccountStatusLoggedOut
}

// runActionLoop executes the planned actions sequentially with randomized
// cooldowns, bounded recovery on errors, and an unconditional session close.
func (e *Engine) runActionLoop(ctx context.Context, conn device.Conn, dev models.Device, account models.Account, settings models.AccountSettings, sess *models.Session, lim *limiter.Limiter, plan []plannedAction, log *slog.Logger) *Report {
	var (
		done       int
		errCount   int
		errDigest  []string
		recoveryOK = true
	)

	status := models.SessionStatusCompleted
	defer func() {
		e.closeSession(sess.ID, status, done, errCount, strings.Join(errDigest, "; "), log)
	}()

	for i, planned := range plan {
		if err := ctx.Err(); err != nil {
			status = models.SessionStatusAborted
			log.Info("run cancelled, stopping action loop")
			return &Report{Outcome: OutcomeCompleted, SessionID: sess.ID, ActionsDone: done, Errors: errCount}
		}

		result, err := e.executeOne(ctx, conn, dev, account, sess.ID, lim, planned)
		if err != nil {
			errCount++
			errDigest = append(errDigest, fmt.Sprintf("%s: %v", planned.kind, err))
			log.Warn("action error, attempting recovery", "kind", planned.kind, "error", err)

			if recErr := e.recover(ctx, conn); recErr != nil {
				log.Error("recovery failed, truncating action loop", "error", recErr)
				recoveryOK = false
				break
			}
			continue
		}

		done++
		log.Info("action finished",
			"kind", planned.kind, "success", result.Success,
			"attempted", result.Attempted, "succeeded", result.Succeeded,
			"skipped", result.Skipped, "errored", result.Errored)

		if i < len(plan)-1 {
			e.cooldown(ctx, settings)
		}
	}

	if !recoveryOK {
		status = models.SessionStatusFailed
		return &Report{Outcome: OutcomeFailed, SessionID: sess.ID, ActionsDone: done, Errors: errCount}
	}
	return &Report{Outcome: OutcomeCompleted, SessionID: sess.ID, ActionsDone: done, Errors: errCount}
}

// executeOne dispatches a single planned action through the registry.
func (e *Engine) executeOne(ctx context.Context, conn device.Conn, dev models.Device, account models.Account, sessionID string, lim *limiter.Limiter, planned plannedAction) (actions.Result, error) {
	act, err := e.registry.Get(planned.kind)
	if err != nil && planned.pair != nil && e.registry.Has(models.ActionJobDispatch) {
		// Jobs without a dedicated action fall through to the generic
		// dispatcher.
		act, err = e.registry.Get(models.ActionJobDispatch)
	}
	if err != nil {
		return actions.Result{}, err
	}

	req := actions.Request{
		Conn:      conn,
		DeviceID:  dev.ID,
		Account:   account,
		SessionID: sessionID,
		Limiter:   lim,
		Budget:    planned.budget,
		Post:      planned.post,
	}
	if planned.pair != nil {
		req.Job = &planned.pair.Job
		req.Assignment = &planned.pair.Assignment
	}

	result, err := act.Run(ctx, req)
	if err != nil {
		return result, err
	}

	if planned.post != nil {
		postStatus := models.PostStatusPosted
		if !result.Success {
			postStatus = models.PostStatusFailed
		}
		if err := e.store.MarkPost(planned.post.ID, postStatus); err != nil {
			return result, err
		}
	}
	return result, nil
}

// recover tries to bring the device back to a known-good screen: dismiss an
// unexpected dialog, then relaunch the app if it left the foreground.
func (e *Engine) recover(ctx context.Context, conn device.Conn) error {
	snap, err := conn.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("recovery snapshot: %w", err)
	}
	if e.classifier.Classify(snap) == screen.StatePopupDialog {
		if err := conn.PressBack(ctx); err != nil {
			return fmt.Errorf("dismiss dialog: %w", err)
		}
	}

	fg, err := conn.ForegroundApp(ctx)
	if err != nil {
		return fmt.Errorf("foreground check: %w", err)
	}
	if fg != e.appPackage {
		if err := conn.LaunchApp(ctx, e.appPackage); err != nil {
			return fmt.Errorf("relaunch app: %w", err)
		}
	}
	return nil
}

// cooldown sleeps a randomized interval between actions, cut short by
// cancellation.
func (e *Engine) cooldown(ctx context.Context, settings models.AccountSettings) {
	lo, hi := settings.CooldownMinSec, settings.CooldownMaxSec
	secs := lo
	if hi > lo {
		secs = lo + e.rng.Intn(hi-lo+1)
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(secs) * time.Second):
	}
}

func (e *Engine) closeSession(id string, status models.SessionStatus, done, errCount int, digest string, log *slog.Logger) {
	if err := e.store.CloseSession(id, status, done, errCount, digest); err != nil {
		log.Error("session close failed", "session", id, "error", err)
		return
	}
	log.Info("session closed", "session", id, "status", status, "actions", done, "errors", errCount)
}
