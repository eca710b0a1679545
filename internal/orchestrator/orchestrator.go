// Package orchestrator runs the top-level device loop: one poll cycle that
// keeps exactly one engine worker per connected device, for whichever account
// is current right now.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fentz26/drover/internal/device"
	"github.com/fentz26/drover/internal/engine"
	"github.com/fentz26/drover/internal/models"
	"github.com/fentz26/drover/internal/store"
	"github.com/fentz26/drover/internal/window"
)

// Config defines the orchestrator timing knobs.
type Config struct {
	// PollInterval is the reconcile tick period.
	PollInterval time.Duration
	// StopGrace bounds how long a cancelled worker may keep its device slot.
	StopGrace time.Duration
	// IdleDelay separates consecutive engine runs on one device.
	IdleDelay time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		StopGrace:    30 * time.Second,
		IdleDelay:    5 * time.Minute,
	}
}

// DeviceStatus is the observable state of one device slot.
type DeviceStatus struct {
	Running     bool   `json:"running"`
	AccountID   string `json:"account_id,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	WorkerAlive bool   `json:"worker_alive"`
}

// worker is the bookkeeping for one device's engine goroutine.
type worker struct {
	deviceID    string
	accountID   string
	accountName string
	cancel      context.CancelFunc
	done        chan struct{}
	stoppedAt   time.Time // zero until a stop was requested
}

func (w *worker) dead() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Orchestrator owns the poll loop and the per-device workers. It is an
// explicit, constructor-injected instance; there are no package globals.
type Orchestrator struct {
	store    *store.Store
	engine   *engine.Engine
	provider device.Provider
	cfg      Config
	log      *slog.Logger

	mu      sync.Mutex
	workers map[string]*worker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator.
func New(s *store.Store, eng *engine.Engine, provider device.Provider, cfg Config, log *slog.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    s,
		engine:   eng,
		provider: provider,
		cfg:      cfg,
		log:      log,
		workers:  make(map[string]*worker),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the poll loop.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go o.pollLoop()
	o.log.Info("orchestrator started", "poll_interval", o.cfg.PollInterval)
}

// Stop cancels every worker and waits for the loop to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
	o.log.Info("orchestrator stopped")
}

func (o *Orchestrator) pollLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	// First reconcile immediately rather than one tick late.
	o.Reconcile(o.ctx)

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.Reconcile(o.ctx)
		}
	}
}

// Reconcile runs one poll tick: for every connected, enabled device it
// resolves the account that should be current and converges the device's
// worker toward it. The tick never blocks on a worker; stops are requested
// here and observed on later ticks, bounded by the grace period.
func (o *Orchestrator) Reconcile(ctx context.Context) {
	devices, err := o.store.ListEnabledDevices()
	if err != nil {
		o.log.Error("reconcile: list devices", "error", err)
		return
	}

	for i := range devices {
		dev := devices[i]
		if err := o.reconcileDevice(ctx, dev); err != nil {
			// Skip this device this tick; no retry storm.
			o.log.Warn("reconcile device failed", "device", dev.ID, "error", err)
		}
	}
}

func (o *Orchestrator) reconcileDevice(ctx context.Context, dev models.Device) error {
	_, err := o.provider.Get(ctx, dev.ID)
	connected := err == nil
	if dev.Connected != connected {
		if uerr := o.store.SetDeviceConnected(dev.ID, connected); uerr != nil {
			o.log.Warn("persist connection state", "device", dev.ID, "error", uerr)
		}
	}
	if !connected {
		// Not reachable this tick; let a stop request on a running worker
		// play out but start nothing new.
		o.converge(dev, nil)
		return nil
	}

	accounts, err := o.store.ListActiveAccountsForDevice(dev.ID)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}
	target := window.ResolveCurrent(accounts, time.Now())
	o.converge(dev, target)
	return nil
}

// converge moves one device slot toward the target account. At most one
// worker is ever marked running per device: a replacement is only started
// after the previous worker's slot is cleared.
func (o *Orchestrator) converge(dev models.Device, target *models.Account) {
	o.mu.Lock()
	defer o.mu.Unlock()

	w := o.workers[dev.ID]
	if w != nil {
		switch {
		case w.dead():
			// Worker exited (panic or natural end) without an
			// orchestrator-initiated stop; clear the bookkeeping.
			delete(o.workers, dev.ID)
			w = nil
		case target != nil && w.accountID == target.ID && w.stoppedAt.IsZero():
			// Already running the right account.
			return
		case w.stoppedAt.IsZero():
			// Wrong account (or none); request a cooperative stop.
			o.log.Info("stopping worker", "device", dev.ID, "account", w.accountName)
			w.cancel()
			w.stoppedAt = time.Now()
			return
		case time.Since(w.stoppedAt) > o.cfg.StopGrace:
			// Grace expired; treat the device as free. The goroutine keeps
			// winding down on its own and the next app relaunch is the
			// hard reset.
			o.log.Warn("worker exceeded stop grace, releasing slot", "device", dev.ID, "account", w.accountName)
			delete(o.workers, dev.ID)
			w = nil
		default:
			// Still inside the grace period.
			return
		}
	}

	if w == nil && target != nil {
		o.startWorkerLocked(dev, *target)
	}
}

// startWorkerLocked launches the engine goroutine for a device+account pair.
// Caller holds o.mu.
func (o *Orchestrator) startWorkerLocked(dev models.Device, account models.Account) {
	ctx, cancel := context.WithCancel(o.ctx)
	w := &worker{
		deviceID:    dev.ID,
		accountID:   account.ID,
		accountName: account.Username,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	o.workers[dev.ID] = w

	o.log.Info("starting worker", "device", dev.ID, "account", account.Username)
	o.wg.Add(1)
	go o.runWorker(ctx, w, dev)
}

// runWorker cycles the engine for its pair until stopped. A panic anywhere in
// a run is caught here, logged, and ends the worker; the next tick clears the
// slot and may restart it.
func (o *Orchestrator) runWorker(ctx context.Context, w *worker, dev models.Device) {
	defer o.wg.Done()
	defer close(w.done)

	for {
		account, err := o.store.GetAccount(w.accountID)
		if err != nil {
			o.log.Error("worker: load account", "device", dev.ID, "error", err)
			return
		}
		if account == nil || account.Status != models.AccountStatusActive {
			o.log.Info("worker: account no longer active, exiting", "device", dev.ID, "account", w.accountName)
			return
		}

		if !o.runOnce(ctx, dev, *account) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.IdleDelay):
		}
	}
}

// runOnce executes one engine run inside a panic boundary. It returns false
// when the worker should exit.
func (o *Orchestrator) runOnce(ctx context.Context, dev models.Device, account models.Account) (keepGoing bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("engine panic", "device", dev.ID, "account", account.Username, "panic", r)
			keepGoing = false
		}
	}()

	report, err := o.engine.Run(ctx, dev, account)
	if err != nil {
		o.log.Error("engine run failed", "device", dev.ID, "account", account.Username, "error", err)
	} else if report != nil {
		o.log.Debug("engine run finished",
			"device", dev.ID, "account", account.Username,
			"outcome", report.Outcome, "actions", report.ActionsDone, "errors", report.Errors)
	}
	return ctx.Err() == nil
}

// StartDevice converges a single device immediately, outside the poll cycle.
func (o *Orchestrator) StartDevice(ctx context.Context, deviceID string) error {
	dev, err := o.store.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if dev == nil {
		return fmt.Errorf("device %s not found", deviceID)
	}
	return o.reconcileDevice(ctx, *dev)
}

// StopDevice cancels the device's worker and waits up to the grace period
// for it to exit.
func (o *Orchestrator) StopDevice(deviceID string) {
	o.mu.Lock()
	w := o.workers[deviceID]
	if w != nil {
		w.cancel()
		w.stoppedAt = time.Now()
	}
	o.mu.Unlock()

	if w == nil {
		return
	}
	select {
	case <-w.done:
	case <-time.After(o.cfg.StopGrace):
		o.log.Warn("worker did not stop within grace", "device", deviceID)
	}

	o.mu.Lock()
	if cur := o.workers[deviceID]; cur == w {
		delete(o.workers, deviceID)
	}
	o.mu.Unlock()
}

// Status exposes the per-device slot state for observability.
func (o *Orchestrator) Status() map[string]DeviceStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]DeviceStatus, len(o.workers))
	for id, w := range o.workers {
		out[id] = DeviceStatus{
			Running:     w.stoppedAt.IsZero(),
			AccountID:   w.accountID,
			AccountName: w.accountName,
			WorkerAlive: !w.dead(),
		}
	}
	return out
}
