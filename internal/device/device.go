// Package device defines the contracts to reach physical devices. The core
// never establishes a first connection itself; it only reuses handles the
// provider already holds.
package device

import (
	"context"
	"fmt"

	"github.com/fentz26/drover/internal/screen"
)

// ErrNotConnected indicates the provider holds no live handle for a device.
var ErrNotConnected = fmt.Errorf("device not connected")

// Conn is a live handle onto one device.
type Conn interface {
	// DeviceID returns the device this handle belongs to.
	DeviceID() string

	// Alive reports whether the handle is still usable.
	Alive(ctx context.Context) bool

	// Snapshot captures the current UI state for classification.
	Snapshot(ctx context.Context) (screen.Snapshot, error)

	// ForegroundApp returns the package identity currently on screen.
	ForegroundApp(ctx context.Context) (string, error)

	// LaunchApp brings the given app package to the foreground.
	LaunchApp(ctx context.Context, pkg string) error

	// PressBack sends a back navigation, used to dismiss dialogs.
	PressBack(ctx context.Context) error
}

// Provider resolves device ids to live handles.
type Provider interface {
	// Get returns the existing handle for a device, or ErrNotConnected.
	Get(ctx context.Context, deviceID string) (Conn, error)
}

// DependencyProbe checks a required device-local service (e.g. a proxy) is
// active. Consulted once per run before the app is launched.
type DependencyProbe func(ctx context.Context, conn Conn) (bool, error)

// AlwaysReady is a probe for deployments without a device-local dependency.
func AlwaysReady(ctx context.Context, conn Conn) (bool, error) {
	return true, nil
}
