package sink

import (
	"sync"
	"sync/atomic"

	"github.com/gputrace/subtracker/event"
)

// Memory is an in-memory Sink used by the tracker's own tests and by
// any host wanting to inspect captured events without standing up a
// real out-of-process collector. It is the same kind of hand-rolled
// test double the teacher uses throughout its own suite in place of a
// mocking library.
type Memory struct {
	mu        sync.Mutex
	capturing atomic.Bool
	strings   map[string]uint64
	nextKey   uint64
	Events    []*event.GpuQueueSubmission
}

// NewMemory returns a Memory sink with capturing initially set to
// active.
func NewMemory() *Memory {
	m := &Memory{strings: make(map[string]uint64)}
	m.capturing.Store(true)
	return m
}

// SetCapturing flips the process-wide capture-active flag this sink
// reports.
func (m *Memory) SetCapturing(active bool) {
	m.capturing.Store(active)
}

func (m *Memory) IsCapturing() bool { return m.capturing.Load() }

func (m *Memory) InternString(s string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.strings[s]; ok {
		return key
	}
	m.nextKey++
	m.strings[s] = m.nextKey
	return m.nextKey
}

func (m *Memory) Enqueue(ev *event.GpuQueueSubmission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

// Reset clears every recorded event, keeping the interned string table
// and capturing flag as-is.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}

var _ Sink = (*Memory)(nil)
