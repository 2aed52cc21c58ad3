package dispatch

import "sync"

// MockDriver is an in-memory Driver used by tests and by any host that
// wants to exercise the tracker without a real GPU. It behaves as a
// well-behaved driver would: query pools are simple tick-count arrays,
// writes are immediate (no asynchronous completion), and results are
// always ready once written — tests that need to exercise the
// "not ready" drain path (spec scenario 2) set PendingUntilRead.
type MockDriver struct {
	mu             sync.Mutex
	nextPool       uint64
	pools          map[QueryPool][]uint64
	written        map[QueryPool]map[uint32]bool
	debugMarkers   bool
	debugUtils     bool
	// PendingUntilRead, if > 0, is decremented once per QueryPoolResult
	// call on a written slot before that slot starts reporting ready;
	// it models a GPU that needs a few drain polls to catch up.
	PendingUntilRead map[uint32]int
}

// NewMockDriver returns a MockDriver advertising both debug-marker
// extensions.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		pools:            make(map[QueryPool][]uint64),
		written:          make(map[QueryPool]map[uint32]bool),
		debugMarkers:     true,
		debugUtils:       true,
		PendingUntilRead: make(map[uint32]int),
	}
}

func (m *MockDriver) CreateQueryPool(device Device, capacity uint32) QueryPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPool++
	pool := QueryPool(m.nextPool)
	m.pools[pool] = make([]uint64, capacity)
	m.written[pool] = make(map[uint32]bool)
	return pool
}

func (m *MockDriver) DestroyQueryPool(device Device, pool QueryPool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pools, pool)
	delete(m.written, pool)
}

func (m *MockDriver) ResetQuerySlot(device Device, pool QueryPool, slot uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slots, ok := m.pools[pool]; ok && int(slot) < len(slots) {
		slots[slot] = 0
	}
	delete(m.written[pool], slot)
}

func (m *MockDriver) WriteTimestamp(cb CommandBuffer, stage PipelineStage, pool QueryPool, slot uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.pools[pool]
	if !ok || int(slot) >= len(slots) {
		return
	}
	// Deterministic, monotone-enough fake tick source: derive from the
	// slot index so tests can assert on exact values by presetting them.
	if slots[slot] == 0 {
		slots[slot] = uint64(slot)
	}
	m.written[pool][slot] = true
}

// SetTick lets a test pin the tick value a slot will report.
func (m *MockDriver) SetTick(pool QueryPool, slot uint32, ticks uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slots, ok := m.pools[pool]; ok && int(slot) < len(slots) {
		slots[slot] = ticks
	}
}

func (m *MockDriver) QueryPoolResult(device Device, pool QueryPool, slot uint32) (uint64, ResultStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.pools[pool]
	if !ok || int(slot) >= len(slots) || !m.written[pool][slot] {
		return 0, ResultNotReady
	}
	if pending, ok := m.PendingUntilRead[slot]; ok && pending > 0 {
		m.PendingUntilRead[slot] = pending - 1
		return 0, ResultNotReady
	}
	return slots[slot], ResultReady
}

func (m *MockDriver) SupportsDebugMarkers(device Device) bool { return m.debugMarkers }
func (m *MockDriver) SupportsDebugUtils(device Device) bool   { return m.debugUtils }

// SetExtensionSupport lets a test simulate a driver that lacks the
// debug-marker extensions entirely.
func (m *MockDriver) SetExtensionSupport(markers, utils bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMarkers = markers
	m.debugUtils = utils
}

var _ Driver = (*MockDriver)(nil)
