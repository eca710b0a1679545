package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/drover/internal/actions"
	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/engine"
	"github.com/fentz26/drover/internal/jobs"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/screen"
	"github.com/fentz26/drover/internal/store"
)

type fakeConn struct {
	id string
}

func (c *fakeConn) DeviceID() string                           { return c.id }
func (c *fakeConn) Alive(context.Context) bool                 { return true }
func (c *fakeConn) PressBack(context.Context) error            { return nil }
func (c *fakeConn) LaunchApp(context.Context, string) error    { return nil }
func (c *fakeConn) ForegroundApp(context.Context) (string, error) { return "com.example.app", nil }

func (c *fakeConn) Snapshot(context.Context) (screen.Snapshot, error) {
	return screen.Snapshot{Raw: "main-feed", ForegroundApp: "com.example.app"}, nil
}

// blockingAction holds the engine run until released, so a worker can be
// observed mid-run.
type blockingAction struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingAction() *blockingAction {
	return &blockingAction{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (a *blockingAction) Kind() models.ActionKind { return models.ActionEngage }

func (a *blockingAction) Run(ctx context.Context, req actions.Request) (actions.Result, error) {
	a.started <- struct{}{}
	<-a.release
	return actions.Result{Success: true, Attempted: 1, Succeeded: 1}, nil
}

type testEnv struct {
	orch     *Orchestrator
	store    *store.Store
	provider *device.StaticProvider
	action   *blockingAction
	device   models.Device
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
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

	provider := device.NewStaticProvider()
	provider.Register(dev.ID, &fakeConn{id: dev.ID})

	action := newBlockingAction()
	registry := actions.NewRegistry()
	registry.Register(action)

	classifier := screen.NewMatcherClassifier([]screen.Matcher{{
		State: screen.StateLoggedIn,
		Match: func(snap screen.Snapshot) bool { return snap.Raw == "main-feed" },
	}})

	eng := engine.New(engine.Deps{
		Store:      s,
		Jobs:       jobs.New(s, slog.Default()),
		Registry:   registry,
		Classifier: classifier,
		Provider:   provider,
		Logger:     slog.Default(),
		AppPackage: "com.example.app",
	})

	orch := New(s, eng, provider, cfg, slog.Default())
	env := &testEnv{orch: orch, store: s, provider: provider, action: action, device: *dev}
	t.Cleanup(func() {
		// Unblock any in-flight run before tearing down.
		select {
		case <-action.release:
		default:
			close(action.release)
		}
		orch.Stop()
	})
	return env
}

func (env *testEnv) addAccount(t *testing.T, username string) *models.Account {
	t.Helper()
	acc, err := env.store.CreateAccount(store.CreateAccountParams{
		DeviceID:    env.device.ID,
		Username:    username,
		WindowStart: 1,
		WindowEnd:   1,
		Settings:    `{"cooldown_min_sec":0,"cooldown_max_sec":0}`,
	})
	if err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
	return acc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func (env *testEnv) workerCount() int {
	env.orch.mu.Lock()
	defer env.orch.mu.Unlock()
	return len(env.orch.workers)
}

func (env *testEnv) workerFor(deviceID string) *worker {
	env.orch.mu.Lock()
	defer env.orch.mu.Unlock()
	return env.orch.workers[deviceID]
}

func testConfig() Config {
	return Config{
		PollInterval: time.Hour, // ticks are driven manually via Reconcile
		StopGrace:    200 * time.Millisecond,
		IdleDelay:    time.Hour,
	}
}

func TestReconcileStartsWorkerForCurrentAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	acc := env.addAccount(t, "runner")

	env.orch.Reconcile(context.Background())

	w := env.workerFor(env.device.ID)
	if w == nil || w.accountID != acc.ID {
		t.Fatalf("expected worker for %s, got %+v", acc.Username, w)
	}

	// The run reaches the blocking action.
	select {
	case <-env.action.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	// Repeated ticks are idempotent while the target is unchanged.
	env.orch.Reconcile(context.Background())
	env.orch.Reconcile(context.Background())
	if got := env.workerCount(); got != 1 {
		t.Errorf("expected a single worker, got %d", got)
	}
	if again := env.workerFor(env.device.ID); again != w {
		t.Error("expected the same worker across ticks")
	}
}

func TestReconcileStartsNothingWithoutEligibleAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())

	env.orch.Reconcile(context.Background())
	if got := env.workerCount(); got != 0 {
		t.Errorf("expected no workers without accounts, got %d", got)
	}
}

func TestAccountSwitchNeverOverlapsWorkers(t *testing.T) {
	env := newTestEnv(t, testConfig())
	old := env.addAccount(t, "old")

	env.orch.Reconcile(context.Background())
	select {
	case <-env.action.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	// Retire the running account and introduce its replacement.
	if err := env.store.UpdateAccountStatus(old.ID, models.AccountStatusLoggedOut); err != nil {
		t.Fatalf("update status: %v", err)
	}
	next := env.addAccount(t, "next")

	// The switch tick only requests a stop; the slot is still held.
	env.orch.Reconcile(context.Background())
	w := env.workerFor(env.device.ID)
	if w == nil || w.accountID != old.ID {
		t.Fatalf("expected the old worker to hold the slot, got %+v", w)
	}
	if w.stoppedAt.IsZero() {
		t.Fatal("expected a stop request on the old worker")
	}
	if got := env.workerCount(); got != 1 {
		t.Fatalf("two workers marked for one device: %d", got)
	}

	// Let the old run finish and wait for the goroutine to exit.
	close(env.action.release)
	waitFor(t, 2*time.Second, w.dead, "old worker exit")

	// The next tick observes the exit and starts the replacement.
	env.orch.Reconcile(context.Background())
	w2 := env.workerFor(env.device.ID)
	if w2 == nil || w2.accountID != next.ID {
		t.Fatalf("expected worker for %s, got %+v", next.Username, w2)
	}
	if got := env.workerCount(); got != 1 {
		t.Errorf("expected a single worker after the switch, got %d", got)
	}
}

func TestStuckWorkerReleasedAfterGrace(t *testing.T) {
	env := newTestEnv(t, testConfig())
	old := env.addAccount(t, "stuck")

	env.orch.Reconcile(context.Background())
	select {
	case <-env.action.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	if err := env.store.UpdateAccountStatus(old.ID, models.AccountStatusSuspended); err != nil {
		t.Fatalf("update status: %v", err)
	}
	next := env.addAccount(t, "next")

	// First tick requests the stop; the blocked action ignores it.
	env.orch.Reconcile(context.Background())
	w := env.workerFor(env.device.ID)
	if w == nil || w.stoppedAt.IsZero() {
		t.Fatalf("expected a stop request, got %+v", w)
	}

	// Inside the grace period the slot stays held.
	env.orch.Reconcile(context.Background())
	if cur := env.workerFor(env.device.ID); cur != w {
		t.Fatal("slot changed hands inside the grace period")
	}

	// After the grace the slot is released and the replacement starts even
	// though the old goroutine is still winding down.
	time.Sleep(250 * time.Millisecond)
	env.orch.Reconcile(context.Background())
	w2 := env.workerFor(env.device.ID)
	if w2 == nil || w2.accountID != next.ID {
		t.Fatalf("expected replacement worker for %s, got %+v", next.Username, w2)
	}
	if got := env.workerCount(); got != 1 {
		t.Errorf("expected a single tracked worker, got %d", got)
	}
}

func TestDisconnectedDeviceStartsNoWorker(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addAccount(t, "runner")
	env.provider.Unregister(env.device.ID)

	env.orch.Reconcile(context.Background())
	if got := env.workerCount(); got != 0 {
		t.Errorf("expected no workers for a disconnected device, got %d", got)
	}

	dev, err := env.store.GetDevice(env.device.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if dev.Connected {
		t.Error("expected connectivity flag to be cleared")
	}
}

func TestStopDeviceClearsSlot(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addAccount(t, "runner")

	env.orch.Reconcile(context.Background())
	select {
	case <-env.action.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	close(env.action.release)
	env.orch.StopDevice(env.device.ID)

	if got := env.workerCount(); got != 0 {
		t.Errorf("expected slot cleared after StopDevice, got %d workers", got)
	}
}

func TestStatusReportsRunningWorker(t *testing.T) {
	env := newTestEnv(t, testConfig())
	acc := env.addAccount(t, "runner")

	env.orch.Reconcile(context.Background())
	select {
	case <-env.action.started:
	case <-time.After(2 * time.Second):
		t.Fatal("engine run never started")
	}

	status := env.orch.Status()
	st, ok := status[env.device.ID]
	if !ok {
		t.Fatalf("expected status entry for device, got %v", status)
	}
	if !st.Running || !st.WorkerAlive || st.AccountID != acc.ID {
		t.Errorf("unexpected status: %+v", st)
	}
}
