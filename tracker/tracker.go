// Package tracker is the submission tracker of spec §4.D: the state
// machine that observes command-buffer lifecycle events, records
// begin/end timestamps, collects nested debug markers, captures
// submissions, drains completed results, and emits capture events.
//
// It is grounded on two parts of the teacher: the query-pool and
// timestamp-correlation bookkeeping of
// gapis/api/vulkan/{query_timestamps,transform_query_timestamps}.go
// (turned from a replay-time transform into a live capture-time
// tracker), and the capture-session shape of gapii/client/capture.go
// (an Options-configured, sink-fed capture object with an internal
// lock).
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gputrace/subtracker/devicereg"
	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/internal/log"
	"github.com/gputrace/subtracker/sink"
	"github.com/gputrace/subtracker/slotpool"
)

// Tracker is the whole of component D. One Tracker handles every
// device its slot pool and device registry know about; the hooks that
// take a device explicitly (Track, Untrack) populate that association,
// and hooks that only take a command-buffer or queue handle (all the
// others) resolve the device implicitly through it (spec §9, "Stacks
// keyed by handle").
type Tracker struct {
	mu sync.RWMutex

	resolver *dispatch.Resolver
	devices  *devicereg.Registry
	pool     *slotpool.Pool
	sinkRef  *sink.Ref
	config   Config

	trackedBuffers map[dispatch.CommandBuffer]commandPoolKey
	poolBuffers    map[commandPoolKey]map[dispatch.CommandBuffer]struct{}
	buffers        map[dispatch.CommandBuffer]*bufferRecord

	queueStacks map[dispatch.Queue][]openMarker
	inflight    map[dispatch.Queue][]*submissionRecord
}

// New constructs a Tracker. resolver, devices and pool are shared with
// whatever else in the process needs them (e.g. a Manager, see
// manager.go, when more than one device is in play); sinkRef is the
// non-owning reference to the process's event sink.
func New(resolver *dispatch.Resolver, devices *devicereg.Registry, pool *slotpool.Pool, sinkRef *sink.Ref, config Config) *Tracker {
	return &Tracker{
		resolver:       resolver,
		devices:        devices,
		pool:           pool,
		sinkRef:        sinkRef,
		config:         config,
		trackedBuffers: make(map[dispatch.CommandBuffer]commandPoolKey),
		poolBuffers:    make(map[commandPoolKey]map[dispatch.CommandBuffer]struct{}),
		buffers:        make(map[dispatch.CommandBuffer]*bufferRecord),
		queueStacks:    make(map[dispatch.Queue][]openMarker),
		inflight:       make(map[dispatch.Queue][]*submissionRecord),
	}
}

func nowNs() int64 { return time.Now().UnixNano() }

// Track registers each command buffer as allocated under pool on
// device (spec §4.D). Fatal if any buffer is already tracked.
func (t *Tracker) Track(ctx context.Context, device dispatch.Device, pool dispatch.CommandPool, buffers []dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := commandPoolKey{device: device, pool: pool}
	for _, cb := range buffers {
		if _, ok := t.trackedBuffers[cb]; ok {
			log.F(ctx, true, "tracker: command buffer %v is already tracked (duplicate allocation)", cb)
		}
		t.trackedBuffers[cb] = key
		if t.poolBuffers[key] == nil {
			t.poolBuffers[key] = make(map[dispatch.CommandBuffer]struct{})
		}
		t.poolBuffers[key][cb] = struct{}{}
	}
}

// Untrack removes each command buffer from tracking under (device,
// pool). Fatal if a buffer isn't tracked there. If the buffer still has
// a live record (the application freed it without ever submitting or
// resetting it), its slots are rolled back first so nothing leaks
// (spec §9: "always delete a record ... so stale entries cannot
// resurface").
func (t *Tracker) Untrack(ctx context.Context, device dispatch.Device, pool dispatch.CommandPool, buffers []dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := commandPoolKey{device: device, pool: pool}
	for _, cb := range buffers {
		got, ok := t.trackedBuffers[cb]
		if !ok || got != key {
			log.F(ctx, true, "tracker: untrack of command buffer %v not tracked under pool %v on device %v", cb, pool, device)
		}
		t.rollbackRecordLocked(ctx, cb)
		delete(t.trackedBuffers, cb)
		delete(t.poolBuffers[key], cb)
	}
	if len(t.poolBuffers[key]) == 0 {
		delete(t.poolBuffers, key)
	}
}

// rollbackRecordLocked releases every slot referenced by cb's record,
// if any, without touching the driver's hardware-reset (no GPU write
// was ever consumed for a record torn down this way, or reset-buffer
// would have already been called). Caller holds t.mu.
func (t *Tracker) rollbackRecordLocked(ctx context.Context, cb dispatch.CommandBuffer) {
	rec, ok := t.buffers[cb]
	if !ok {
		return
	}
	slots := recordSlots(rec)
	if len(slots) > 0 {
		t.pool.ReleaseRollback(ctx, rec.device, slots)
	}
	delete(t.buffers, cb)
}

func recordSlots(rec *bufferRecord) []uint32 {
	var slots []uint32
	if rec.beginSlot != nil {
		slots = append(slots, *rec.beginSlot)
	}
	if rec.endSlot != nil {
		slots = append(slots, *rec.endSlot)
	}
	for _, m := range rec.markers {
		if m.slot != nil {
			slots = append(slots, *m.slot)
		}
	}
	return slots
}

// ResetBuffer implements spec §4.D's reset-buffer(cb): if cb has a
// record, its slots are rolled back (no hardware reset — no GPU write
// was ever consumed) and the record is deleted. No-op if untracked or
// unrecorded.
func (t *Tracker) ResetBuffer(ctx context.Context, cb dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbackRecordLocked(ctx, cb)
}

// ResetPool implements spec §4.D's reset-pool(pool): reset every
// tracked buffer under pool, on whichever device it belongs to.
func (t *Tracker) ResetPool(ctx context.Context, pool dispatch.CommandPool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cbs := range t.poolBuffers {
		if key.pool != pool {
			continue
		}
		for cb := range cbs {
			t.rollbackRecordLocked(ctx, cb)
		}
	}
}

// deviceOf returns the device cb was tracked under. Fatal if cb isn't
// tracked — every recording hook assumes allocate/track happened first.
func (t *Tracker) deviceOf(ctx context.Context, cb dispatch.CommandBuffer) dispatch.Device {
	key, ok := t.trackedBuffers[cb]
	if !ok {
		log.F(ctx, true, "tracker: command buffer %v was never tracked", cb)
	}
	return key.device
}

// acquireOrDegrade tries to acquire a slot on device, applying
// t.config.ExhaustionPolicy on failure (spec §7.4 / §9's first open
// question). It returns nil if no slot could be obtained and the
// policy is to degrade gracefully. It never attempts to grow the pool:
// exhaustion here means every slot is pending, which is exactly the
// state slotpool.Pool.Grow refuses to run in (see its doc comment).
func (t *Tracker) acquireOrDegrade(ctx context.Context, device dispatch.Device, hook string) *uint32 {
	ok, slot := t.pool.Acquire(ctx, device)
	if ok {
		return &slot
	}
	switch t.config.ExhaustionPolicy {
	case slotpool.PolicyDegrade:
		log.W(ctx, "tracker: slot pool exhausted for device %v during %s, skipping timestamp", device, hook)
		return nil
	default:
		log.F(ctx, true, "tracker: slot pool exhausted for device %v during %s", device, hook)
		return nil
	}
}

func newSubmissionID() uuid.UUID {
	return uuid.New()
}
