// Package sink is the event sink contract of spec §6: the process-wide
// out-of-process collector the tracker hands finished capture events
// to. Its lifecycle (bring-up/take-down) is owned outside the core; the
// tracker only ever holds a non-owning indirect reference that may
// flip between absent and present at any hook boundary (spec §5, §9
// "Cyclic ownership").
package sink

import (
	"sync"

	"github.com/gputrace/subtracker/event"
)

// Sink is the three-method contract the tracker consumes (spec §6).
// Implementations must be internally thread-safe: IsCapturing may be
// called concurrently with Enqueue from many hook threads.
type Sink interface {
	// IsCapturing reports the process-wide capture-active flag.
	// Reading it is lock-free and may race with any hook (spec §3).
	IsCapturing() bool
	// InternString returns a stable key for s, used so repeated marker
	// labels are transmitted once.
	InternString(s string) uint64
	// Enqueue hands a fully-formed event to the sink. The sink owns
	// everything from here: batching, wire framing, retry.
	Enqueue(ev *event.GpuQueueSubmission)
}

// Ref is a non-owning, swappable reference to a Sink (spec §9): the
// sink itself is constructed and torn down by code outside this
// module, potentially many times over the life of a process, while
// zero or more Tracker instances hold a Ref pointing at whatever sink
// (if any) is currently live.
//
// Ref also resolves spec §9's second open question — the teacher tears
// its sink down on the first instance's destruction with a TODO to wait
// for a matching creation count instead — by counting Acquire/Release
// calls and only actually clearing the slot when the count returns to
// zero.
type Ref struct {
	mu    sync.RWMutex
	sink  Sink
	count int
}

// NewRef returns an empty Ref (no sink bound).
func NewRef() *Ref {
	return &Ref{}
}

// Acquire binds s into the ref, incrementing the reference count. Every
// Acquire must be matched by a Release. While the count is nonzero, Get
// returns s (or whichever sink most recently called Acquire, if callers
// legitimately swap sinks without releasing — not expected in normal
// operation, but Ref does not forbid it).
func (r *Ref) Acquire(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
	r.count++
}

// Release decrements the reference count, clearing the bound sink once
// the count reaches zero (spec §9: deferred teardown until the
// creation/destruction counts match).
func (r *Ref) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return
	}
	r.count--
	if r.count == 0 {
		r.sink = nil
	}
}

// Get returns the currently bound sink, or nil if none is bound. Every
// hook that needs the sink calls this exactly where it needs it and
// never caches the result across a hook boundary, so a concurrent
// Acquire/Release never tears a single hook's view of the sink (spec
// §7.5: "no tearing").
func (r *Ref) Get() Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sink
}

// IsCapturing reports false when no sink is bound, and otherwise
// forwards to the bound sink. This is the one place the tracker's
// hooks ask "are we capturing right now".
func (r *Ref) IsCapturing() bool {
	s := r.Get()
	return s != nil && s.IsCapturing()
}
