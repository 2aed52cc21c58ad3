package devicereg

import (
	"context"
	"testing"

	"github.com/gputrace/subtracker/dispatch"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register(dispatch.Device(1), Properties{PhysicalDevice: 7, TimestampPeriod: 1.25})

	props := r.Properties(context.Background(), dispatch.Device(1))
	if props.PhysicalDevice != 7 || props.TimestampPeriod != 1.25 {
		t.Fatalf("Properties = %+v, want {7 1.25}", props)
	}
	if got := r.TimestampPeriod(context.Background(), dispatch.Device(1)); got != 1.25 {
		t.Fatalf("TimestampPeriod = %v, want 1.25", got)
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := New()
	r.Register(dispatch.Device(1), Properties{TimestampPeriod: 1})
	r.Unregister(dispatch.Device(1))

	if _, ok := r.byDevice[dispatch.Device(1)]; ok {
		t.Fatalf("Unregister left device 1 registered")
	}
}

func TestPropertiesUnknownDeviceIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Properties of an unknown device did not panic")
		}
	}()
	r := New()
	r.Properties(context.Background(), dispatch.Device(404))
}

func TestRegisterOverwritesPriorEntry(t *testing.T) {
	r := New()
	r.Register(dispatch.Device(1), Properties{TimestampPeriod: 1})
	r.Register(dispatch.Device(1), Properties{TimestampPeriod: 2})

	if got := r.TimestampPeriod(context.Background(), dispatch.Device(1)); got != 2 {
		t.Fatalf("TimestampPeriod = %v, want 2 after overwrite", got)
	}
}
