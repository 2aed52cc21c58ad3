package event

import "testing"

func TestColorIsZero(t *testing.T) {
	if !(Color{}).IsZero() {
		t.Fatalf("zero-value Color reported non-zero")
	}
	if (Color{R: 1}).IsZero() {
		t.Fatalf("Color{R:1} reported zero")
	}
}

func TestCompletedMarkerAllowsAbsentEnd(t *testing.T) {
	// A begin recorded during capture whose end was depth-filtered out
	// still needs to be representable (see the reconciliation note on
	// CompletedMarker).
	m := CompletedMarker{
		Text:  "draw",
		Begin: &MarkerMeta{GPUNs: 10},
	}
	if m.End != nil {
		t.Fatalf("End should default to nil")
	}
	if m.Begin.GPUNs != 10 {
		t.Fatalf("Begin.GPUNs = %d, want 10", m.Begin.GPUNs)
	}
}
