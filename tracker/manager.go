package tracker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gputrace/subtracker/dispatch"
)

// Manager is the multi-GPU convenience wrapper SPEC_FULL's module map
// adds on top of §4.D's single-device-at-a-time description — the
// obvious extension a machine with more than one GPU needs, the same
// way the teacher's replay pipeline iterates every physical device it
// finds rather than assuming exactly one.
//
// A single Tracker already handles any number of devices on its own
// (its bookkeeping maps are keyed by device throughout); what a
// Manager adds is a registered set of "devices to drain" and a fan-out
// helper over that set.
type Manager struct {
	mu      sync.RWMutex
	tracker *Tracker
	devices map[dispatch.Device]struct{}
}

// NewManager wraps an existing Tracker.
func NewManager(t *Tracker) *Manager {
	return &Manager{tracker: t, devices: make(map[dispatch.Device]struct{})}
}

// Tracker returns the wrapped Tracker, for callers that need to invoke
// per-buffer or per-queue hooks directly.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// RegisterDevice adds device to the set CompleteAll drains.
func (m *Manager) RegisterDevice(device dispatch.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device] = struct{}{}
}

// UnregisterDevice removes device from the set CompleteAll drains.
func (m *Manager) UnregisterDevice(device dispatch.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, device)
}

// CompleteAll runs CompleteSubmits concurrently across every registered
// device, typically called once per frame-present the way the teacher
// walks every tracked physical device at the end of a frame.
// CompleteSubmits holds the tracker's single lock (spec §5) for its
// whole run, driver result reads included, so the per-device drains
// started here execute one at a time, not in parallel.
func (m *Manager) CompleteAll(ctx context.Context) error {
	m.mu.RLock()
	devices := make([]dispatch.Device, 0, len(m.devices))
	for d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			m.tracker.CompleteSubmits(gctx, device)
			return nil
		})
	}
	return g.Wait()
}

// Grow resizes device's slot pool, the wired call site for
// slotpool.Pool.Grow. It is the host's tool for raising a device's
// timestamp-slot capacity at a point the host itself knows to be safe
// (e.g. between capture sessions, or right after a CompleteAll leaves
// nothing pending) — never an automatic response to exhaustion, which
// by definition means nothing is safe to grow (see
// slotpool.ExhaustionPolicy). Grow refuses with an error rather than
// the pool's own fatal if any slot is still pending, so a host can
// probe safely instead of crashing on a bad guess.
func (m *Manager) Grow(ctx context.Context, device dispatch.Device, minCapacity uint32) error {
	pool := m.tracker.pool
	if pending := pool.Pending(ctx, device); pending > 0 {
		return errors.Errorf("tracker: cannot grow device %v: %d slots still pending", device, pending)
	}
	pool.Grow(ctx, device, minCapacity)
	return nil
}
