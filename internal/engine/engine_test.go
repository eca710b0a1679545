package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/drover/internal/actions"
	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/jobs"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/screen"
	"github.com/fentz26/drover/internal/store"
)

// fakeConn scripts the snapshots a run will observe, in order. The last
// snapshot repeats once the script is exhausted.
type fakeConn struct {
	id       string
	snaps    []screen.Snapshot
	idx      int
	backs    int
	launches int
	fg       string
}

func (c *fakeConn) DeviceID() string                { return c.id }
func (c *fakeConn) Alive(context.Context) bool      { return true }
func (c *fakeConn) PressBack(context.Context) error { c.backs++; return nil }

func (c *fakeConn) Snapshot(context.Context) (screen.Snapshot, error) {
	if len(c.snaps) == 0 {
		return screen.Snapshot{}, errors.New("no scripted snapshot")
	}
	snap := c.snaps[c.idx]
	if c.idx < len(c.snaps)-1 {
		c.idx++
	}
	return snap, nil
}

func (c *fakeConn) ForegroundApp(context.Context) (string, error) { return c.fg, nil }

func (c *fakeConn) LaunchApp(_ context.Context, pkg string) error {
	c.launches++
	c.fg = pkg
	return nil
}

// fakeAction records invocations and optionally fails.
type fakeAction struct {
	kind models.ActionKind
	runs int
	fail bool
}

func (a *fakeAction) Kind() models.ActionKind { return a.kind }

func (a *fakeAction) Run(context.Context, actions.Request) (actions.Result, error) {
	a.runs++
	if a.fail {
		return actions.Result{}, errors.New("tap missed")
	}
	return actions.Result{Success: true, Attempted: 1, Succeeded: 1}, nil
}

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) Broadcast(_ context.Context, format string, args ...interface{}) {
	n.msgs = append(n.msgs, fmt.Sprintf(format, args...))
}

// snapFor builds a snapshot whose raw text carries the state name, matched by
// the test classifier below.
func snapFor(state screen.State) screen.Snapshot {
	return screen.Snapshot{Raw: "screen:" + string(state), ForegroundApp: "com.example.app"}
}

func testClassifier() screen.Classifier {
	states := []screen.State{
		screen.StatePopupDialog,
		screen.StateSuspended,
		screen.StateVerificationRequired,
		screen.StateLogin,
		screen.StateLoggedIn,
		screen.StateHome,
	}
	var matchers []screen.Matcher
	for _, s := range states {
		state := s
		matchers = append(matchers, screen.Matcher{
			State: state,
			Match: func(snap screen.Snapshot) bool {
				return snap.Raw == "screen:"+string(state)
			},
		})
	}
	return screen.NewMatcherClassifier(matchers)
}

type testEnv struct {
	engine   *Engine
	store    *store.Store
	provider *device.StaticProvider
	notifier *fakeNotifier
	registry *actions.Registry
	device   models.Device
	account  models.Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	dev, err := s.CreateDevice("", "bench")
	if err != nil {
		t.Fatalf("create device: %v", err)
	}
	acc, err := s.CreateAccount(store.CreateAccountParams{
		DeviceID:    dev.ID,
		Username:    "runner",
		WindowStart: 1,
		WindowEnd:   1,
		Settings:    `{"cooldown_min_sec":0,"cooldown_max_sec":0}`,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	provider := device.NewStaticProvider()
	notifier := &fakeNotifier{}
	registry := actions.NewRegistry()

	eng := New(Deps{
		Store:      s,
		Jobs:       jobs.New(s, slog.Default()),
		Registry:   registry,
		Classifier: testClassifier(),
		Provider:   provider,
		Notifier:   notifier,
		Logger:     slog.Default(),
		AppPackage: "com.example.app",
	})

	return &testEnv{
		engine:   eng,
		store:    s,
		provider: provider,
		notifier: notifier,
		registry: registry,
		device:   *dev,
		account:  *acc,
	}
}

func (env *testEnv) connect(snaps ...screen.Snapshot) *fakeConn {
	conn := &fakeConn{id: env.device.ID, snaps: snaps, fg: "com.example.app"}
	env.provider.Register(env.device.ID, conn)
	return conn
}

func TestRunOutsideWindowIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.account.WindowStart, env.account.WindowEnd = 9, 17
	env.engine.now = func() time.Time {
		return time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)
	}

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeNoop {
		t.Errorf("expected noop outside the window, got %s", report.Outcome)
	}
}

func TestRunSkipsWhenDeviceMissing(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeSkipped {
		t.Errorf("expected skipped without a device handle, got %s", report.Outcome)
	}
}

func TestRunTerminalStateNotifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.connect(snapFor(screen.StateSuspended))

	for i := 0; i < 2; i++ {
		report, err := env.engine.Run(context.Background(), env.device, env.account)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if report.Outcome != OutcomeTerminal {
			t.Fatalf("run %d: expected terminal, got %s", i, report.Outcome)
		}
	}

	acc, err := env.store.GetAccount(env.account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acc.Status != models.AccountStatusSuspended {
		t.Errorf("expected suspended status, got %s", acc.Status)
	}

	// The second detection dedups against the open health event.
	if len(env.notifier.msgs) != 1 {
		t.Errorf("expected exactly one notification, got %d: %v", len(env.notifier.msgs), env.notifier.msgs)
	}
	events, err := env.store.ListOpenHealthEvents()
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected one open health event, got %d", len(events))
	}
}

func TestRunDismissesPopupBeforeClassifying(t *testing.T) {
	env := newTestEnv(t)
	engage := &fakeAction{kind: models.ActionEngage}
	env.registry.Register(engage)
	conn := env.connect(snapFor(screen.StatePopupDialog), snapFor(screen.StateLoggedIn))

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", report.Outcome)
	}
	if conn.backs != 1 {
		t.Errorf("expected one back press to dismiss the popup, got %d", conn.backs)
	}
	if engage.runs != 1 {
		t.Errorf("expected engage to run once, got %d", engage.runs)
	}
}

func TestRunCompletedClosesSession(t *testing.T) {
	env := newTestEnv(t)
	engage := &fakeAction{kind: models.ActionEngage}
	env.registry.Register(engage)
	env.connect(snapFor(screen.StateLoggedIn))

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeCompleted || report.ActionsDone != 1 {
		t.Fatalf("expected one completed action, got %+v", report)
	}

	sess, err := env.store.GetSession(report.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed session, got %s", sess.Status)
	}
	if sess.ActionsDone != 1 || sess.Errors != 0 {
		t.Errorf("unexpected session aggregates: %+v", sess)
	}
	if sess.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}
}

func TestRunActionErrorRecoversAndContinues(t *testing.T) {
	env := newTestEnv(t)
	engage := &fakeAction{kind: models.ActionEngage, fail: true}
	env.registry.Register(engage)
	env.connect(snapFor(screen.StateLoggedIn))

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Recovery succeeded, so the loop finished normally despite the error.
	if report.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed after recovery, got %s", report.Outcome)
	}
	if report.Errors != 1 {
		t.Errorf("expected one recorded error, got %d", report.Errors)
	}

	sess, err := env.store.GetSession(report.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Errors != 1 || sess.ErrorSummary == "" {
		t.Errorf("expected error recorded in session, got %+v", sess)
	}
}

func TestRunLoginAttemptThenProceeds(t *testing.T) {
	env := newTestEnv(t)
	engage := &fakeAction{kind: models.ActionEngage}
	env.registry.Register(engage)
	// The script advances past the login screen after the first capture, so a
	// successful login attempt re-classifies as logged in.
	env.connect(snapFor(screen.StateLogin), snapFor(screen.StateLoggedIn))

	loginCalls := 0
	env.engine.login = func(ctx context.Context, c device.Conn, account models.Account) error {
		loginCalls++
		return nil
	}

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loginCalls != 1 {
		t.Errorf("expected one login attempt, got %d", loginCalls)
	}
	if report.Outcome != OutcomeCompleted {
		t.Errorf("expected completed after login, got %s", report.Outcome)
	}
}

func TestRunUnknownScreenSkips(t *testing.T) {
	env := newTestEnv(t)
	env.connect(screen.Snapshot{Raw: "garbled", ForegroundApp: "com.example.app"})

	report, err := env.engine.Run(context.Background(), env.device, env.account)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != OutcomeSkipped {
		t.Errorf("expected skipped on unknown screen, got %s", report.Outcome)
	}
}

func TestPlanWarmupRestrictsToEngage(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(&fakeAction{kind: models.ActionEngage})
	env.registry.Register(&fakeAction{kind: models.ActionFollow})

	until := time.Now().Add(48 * time.Hour)
	env.account.WarmupUntil = &until

	settings := models.DefaultSettings()
	settings.FollowEnabled = true

	plan, err := env.engine.planActions(env.account, settings, time.Now(), slog.Default())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].kind != models.ActionEngage {
		t.Errorf("expected warmup plan of [engage], got %+v", plan)
	}
}

func TestPlanOrdersJobsBeforeOptionals(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(&fakeAction{kind: models.ActionEngage})
	env.registry.Register(&fakeAction{kind: models.ActionFollow})

	job, err := env.store.CreateJob(store.CreateJobParams{
		Kind:        models.ActionFollow,
		Target:      "account:brand",
		TargetCount: 10,
		Priority:    5,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := env.store.AssignJob(job.ID, env.account.ID); err != nil {
		t.Fatalf("assign job: %v", err)
	}

	settings := models.DefaultSettings()
	settings.FollowEnabled = true

	plan, err := env.engine.planActions(env.account, settings, time.Now(), slog.Default())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("expected [job, engage, follow], got %+v", plan)
	}
	if plan[0].pair == nil || plan[0].kind != models.ActionFollow {
		t.Errorf("expected the job assignment first, got %+v", plan[0])
	}
	if plan[0].budget != 10 {
		t.Errorf("expected budget 10, got %d", plan[0].budget)
	}
	if plan[1].kind != models.ActionEngage {
		t.Errorf("expected engage before shuffled optionals, got %+v", plan[1])
	}
}

func TestPlanFallsBackToEngage(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(&fakeAction{kind: models.ActionEngage})

	settings := models.DefaultSettings()
	settings.EngageEnabled = false

	plan, err := env.engine.planActions(env.account, settings, time.Now(), slog.Default())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].kind != models.ActionEngage {
		t.Errorf("expected fallback engage, got %+v", plan)
	}
}

func TestPlanSkipsExhaustedKinds(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register(&fakeAction{kind: models.ActionEngage})
	env.registry.Register(&fakeAction{kind: models.ActionFollow})

	settings := models.DefaultSettings()
	settings.FollowEnabled = true
	settings.DailyLimits[models.ActionFollow] = 2
	for i := 0; i < 2; i++ {
		if _, err := env.store.AppendActionRecord(env.device.ID, env.account.ID, models.ActionFollow, "", true, ""); err != nil {
			t.Fatalf("append record: %v", err)
		}
	}

	plan, err := env.engine.planActions(env.account, settings, time.Now(), slog.Default())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, p := range plan {
		if p.kind == models.ActionFollow {
			t.Errorf("expected follow to be skipped at its daily limit, plan %+v", plan)
		}
	}
}
