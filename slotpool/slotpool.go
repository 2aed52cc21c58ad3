// Package slotpool is the per-device timestamp slot pool of spec §4.C:
// a fixed-capacity allocator of indices into a hardware timestamp
// buffer, with atomic acquire and the two release variants the rest of
// the tracker needs (with-hardware-reset and rollback).
//
// It is grounded on the teacher's query-pool bookkeeping in
// gapis/api/vulkan/query_timestamps.go (queryPoolInfo, the
// create-if-needed / grow-by-1.5x logic), turned from that file's
// bump-allocate-and-drain scheme into a genuine acquire/release pool
// with the LIFO free-list ordering spec §4.C requires.
package slotpool

import (
	"context"
	"sync"

	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/internal/log"
)

// ExhaustionPolicy governs what a caller (package tracker) does when
// Acquire reports the pool exhausted. slotpool itself never consults
// this — it always just reports ok=false.
//
// This resolves spec §9's first open question: the source treats
// exhaustion as unconditionally fatal; this module keeps that as the
// default (PolicyFatal) but gives PolicyDegrade an actually safe
// meaning instead of the fatal one. Growing the pool is deliberately
// not part of either policy: every slot at exhaustion is by definition
// pending (free+pending=capacity, free==0), and Grow refuses to run
// with any slot pending, since recreating the driver's query pool would
// discard whatever timestamp that pending slot's GPU write hasn't been
// read back yet. Grow is instead a host-driven operation for a known
// idle point (see Manager.Grow), not a reactive exhaustion fallback.
type ExhaustionPolicy int

const (
	// PolicyFatal is spec §7.4's default: exhaustion during acquire
	// inside a hook stops the process.
	PolicyFatal ExhaustionPolicy = iota
	// PolicyDegrade skips the timestamp-write for the hook that
	// couldn't get a slot instead of stopping the process. The hook's
	// other bookkeeping (marker stack push/pop, record creation) still
	// happens exactly as if a slot had been granted; only the write and
	// the slot pointer are absent.
	PolicyDegrade
)

type deviceState struct {
	handle   dispatch.QueryPool
	capacity uint32
	pending  map[uint32]struct{}
	free     []uint32 // LIFO: append on release, pop from the tail on acquire
}

// Pool is a per-logical-device timestamp slot allocator. One Pool
// instance is shared by every queue on a device; devices are
// independent of one another.
type Pool struct {
	mu       sync.RWMutex
	resolver *dispatch.Resolver
	capacity uint32
	devices  map[dispatch.Device]*deviceState
}

// New returns a Pool that creates capacity-slot query pools on Init.
func New(resolver *dispatch.Resolver, capacity uint32) *Pool {
	return &Pool{
		resolver: resolver,
		capacity: capacity,
		devices:  make(map[dispatch.Device]*deviceState),
	}
}

func freeListOfSize(n uint32) []uint32 {
	free := make([]uint32, n)
	for i := range free {
		free[i] = uint32(i)
	}
	return free
}

// Init asks the driver to create a query pool of the pool's configured
// capacity, hardware-resetting every slot, and transitions the device
// to ready×N (spec §4.C). Fatal if device is already initialized, or
// if the driver reports failure by handing back the zero handle.
func (p *Pool) Init(ctx context.Context, device dispatch.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.devices[device]; ok {
		log.F(ctx, true, "slotpool: device %v already initialized", device)
	}
	drv := p.resolver.Resolve(ctx, device)
	handle := drv.CreateQueryPool(device, p.capacity)
	if handle == 0 {
		log.F(ctx, true, "slotpool: driver failed to create query pool for device %v", device)
	}
	p.devices[device] = &deviceState{
		handle:   handle,
		capacity: p.capacity,
		pending:  make(map[uint32]struct{}),
		free:     freeListOfSize(p.capacity),
	}
}

// Destroy releases device's driver query pool and bookkeeping.
func (p *Pool) Destroy(ctx context.Context, device dispatch.Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.devices[device]
	if !ok {
		return
	}
	drv := p.resolver.Resolve(ctx, device)
	drv.DestroyQueryPool(device, st.handle)
	delete(p.devices, device)
}

// Handle returns device's opaque query-pool handle.
func (p *Pool) Handle(ctx context.Context, device dispatch.Device) dispatch.QueryPool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.mustState(ctx, device)
	return st.handle
}

// Ready returns the number of currently-free slots for device, mostly
// useful from tests asserting the ready+pending=N invariant.
func (p *Pool) Ready(ctx context.Context, device dispatch.Device) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.mustState(ctx, device).free)
}

// Pending returns the number of currently-rented slots for device.
func (p *Pool) Pending(ctx context.Context, device dispatch.Device) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.mustState(ctx, device).pending)
}

func (p *Pool) mustState(ctx context.Context, device dispatch.Device) *deviceState {
	st, ok := p.devices[device]
	if !ok {
		log.F(ctx, true, "slotpool: device %v was never initialized", device)
	}
	return st
}

// Acquire pops a free slot for device and marks it pending. It returns
// (false, 0) if and only if the pool is exhausted; the pool itself
// never treats exhaustion as fatal (spec §9's open question is resolved
// at the call site, see ExhaustionPolicy).
func (p *Pool) Acquire(ctx context.Context, device dispatch.Device) (ok bool, slot uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.mustState(ctx, device)
	if len(st.free) == 0 {
		return false, 0
	}
	slot = st.free[len(st.free)-1]
	st.free = st.free[:len(st.free)-1]
	st.pending[slot] = struct{}{}
	return true, slot
}

func (p *Pool) release(ctx context.Context, device dispatch.Device, slots []uint32, hwReset bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.mustState(ctx, device)
	var drv dispatch.Driver
	if hwReset {
		drv = p.resolver.Resolve(ctx, device)
	}
	for _, slot := range slots {
		if _, ok := st.pending[slot]; !ok {
			log.F(ctx, true, "slotpool: release of slot %d on device %v which was not pending", slot, device)
		}
		delete(st.pending, slot)
		st.free = append(st.free, slot)
		if hwReset {
			drv.ResetQuerySlot(device, st.handle, slot)
		}
	}
}

// ReleaseWithHWReset returns slots to ready and instructs the driver to
// hardware-reset each one, because a GPU write into it was actually
// consumed and the slot must be made writable again (spec §4.C).
func (p *Pool) ReleaseWithHWReset(ctx context.Context, device dispatch.Device, slots []uint32) {
	p.release(ctx, device, slots, true)
}

// ReleaseRollback returns slots to ready without touching the driver,
// because no timestamp-write was ever emitted into them (spec §4.C).
func (p *Pool) ReleaseRollback(ctx context.Context, device dispatch.Device, slots []uint32) {
	p.release(ctx, device, slots, false)
}

// Grow recreates device's query pool at max(current*3/2, minCapacity)
// slots. It is fatal if any slot is still pending: recreating the
// driver's query pool discards every slot's hardware state, so growing
// while a write is outstanding would silently lose that timestamp.
// Callers must therefore only call Grow at a point they know the
// device to be idle (Pending(ctx, device) == 0) — e.g. between capture
// sessions, or right after a CompleteAll has drained every queue — not
// as a reaction to Acquire reporting exhaustion, which by definition
// means every slot is pending. Mirrors the teacher's own
// createQueryPoolIfNeeded, which always reads back outstanding results
// before recreating a too-small pool; see Manager.Grow for the intended
// call site.
func (p *Pool) Grow(ctx context.Context, device dispatch.Device, minCapacity uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.mustState(ctx, device)
	if len(st.pending) > 0 {
		log.F(ctx, true, "slotpool: cannot grow device %v with %d slots still pending", device, len(st.pending))
	}
	newCap := st.capacity * 3 / 2
	if newCap < minCapacity {
		newCap = minCapacity
	}
	drv := p.resolver.Resolve(ctx, device)
	drv.DestroyQueryPool(device, st.handle)
	handle := drv.CreateQueryPool(device, newCap)
	if handle == 0 {
		log.F(ctx, true, "slotpool: driver failed to grow query pool for device %v", device)
	}
	st.handle = handle
	st.capacity = newCap
	st.free = freeListOfSize(newCap)
	log.I(ctx, "slotpool: grew device %v query pool to %d slots", device, newCap)
}
