package sink

import (
	"testing"

	"github.com/gputrace/subtracker/event"
)

func TestRefIsCapturingWithNoSink(t *testing.T) {
	r := NewRef()
	if r.IsCapturing() {
		t.Fatalf("IsCapturing on an empty Ref returned true")
	}
	if r.Get() != nil {
		t.Fatalf("Get on an empty Ref returned non-nil")
	}
}

func TestRefAcquireRelease(t *testing.T) {
	r := NewRef()
	m := NewMemory()
	m.SetCapturing(true)

	r.Acquire(m)
	if !r.IsCapturing() {
		t.Fatalf("IsCapturing after Acquire = false, want true")
	}
	r.Release()
	if r.Get() != nil {
		t.Fatalf("Get after single matching Release should be nil")
	}
}

func TestRefRefcountsAcrossMultipleAcquires(t *testing.T) {
	r := NewRef()
	m := NewMemory()
	r.Acquire(m)
	r.Acquire(m)
	r.Release()
	if r.Get() == nil {
		t.Fatalf("Ref cleared its sink after only one of two Releases")
	}
	r.Release()
	if r.Get() != nil {
		t.Fatalf("Ref still bound after matching Releases")
	}
}

func TestRefReleaseWithoutAcquireIsNoop(t *testing.T) {
	r := NewRef()
	r.Release() // must not panic or underflow
	if r.Get() != nil {
		t.Fatalf("Get after unmatched Release should be nil")
	}
}

func TestMemoryInternStringIsStable(t *testing.T) {
	m := NewMemory()
	a := m.InternString("draw")
	b := m.InternString("draw")
	c := m.InternString("clear")
	if a != b {
		t.Fatalf("InternString(\"draw\") returned different keys: %d != %d", a, b)
	}
	if a == c {
		t.Fatalf("InternString gave the same key to two different strings")
	}
}

func TestMemoryEnqueueAndReset(t *testing.T) {
	m := NewMemory()
	m.Enqueue(&event.GpuQueueSubmission{})
	m.Enqueue(&event.GpuQueueSubmission{})
	if len(m.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(m.Events))
	}
	m.Reset()
	if len(m.Events) != 0 {
		t.Fatalf("len(Events) after Reset = %d, want 0", len(m.Events))
	}
}
