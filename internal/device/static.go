package device

import (
	"context"
	"sync"
)

// StaticProvider hands out connection handles registered by an external
// connection layer. It never dials anything itself.
type StaticProvider struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{conns: make(map[string]Conn)}
}

// Register makes a handle available for a device, replacing any previous one.
func (p *StaticProvider) Register(deviceID string, conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[deviceID] = conn
}

// Unregister drops the handle for a device.
func (p *StaticProvider) Unregister(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, deviceID)
}

// Get implements Provider.
func (p *StaticProvider) Get(ctx context.Context, deviceID string) (Conn, error) {
	p.mu.RLock()
	conn, ok := p.conns[deviceID]
	p.mu.RUnlock()

	if !ok || !conn.Alive(ctx) {
		return nil, ErrNotConnected
	}
	return conn, nil
}
