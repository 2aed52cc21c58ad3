package dispatch

import (
	"context"
	"testing"
)

func TestResolverBindUnbind(t *testing.T) {
	r := NewResolver()
	drv := NewMockDriver()
	r.Bind(Device(1), drv)

	if got := r.Resolve(context.Background(), Device(1)); got != drv {
		t.Fatalf("Resolve returned %v, want the bound driver", got)
	}

	r.Unbind(Device(1))
	if _, ok := r.byDevice[Device(1)]; ok {
		t.Fatalf("Unbind left device 1 bound")
	}
}

func TestResolverRebindReplaces(t *testing.T) {
	r := NewResolver()
	first, second := NewMockDriver(), NewMockDriver()
	r.Bind(Device(1), first)
	r.Bind(Device(1), second)

	if got := r.Resolve(context.Background(), Device(1)); got != second {
		t.Fatalf("Resolve returned %v, want the rebound driver", got)
	}
}

func TestResolveUnboundIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Resolve of an unbound device did not panic")
		}
	}()
	r := NewResolver()
	r.Resolve(context.Background(), Device(99))
}

func TestPipelineStageString(t *testing.T) {
	if got := StageTop.String(); got != "top-of-pipe" {
		t.Fatalf("StageTop.String() = %q", got)
	}
	if got := StageBottom.String(); got != "bottom-of-pipe" {
		t.Fatalf("StageBottom.String() = %q", got)
	}
}

func TestMockDriverWriteThenReadIsReady(t *testing.T) {
	drv := NewMockDriver()
	pool := drv.CreateQueryPool(Device(1), 4)
	drv.WriteTimestamp(CommandBuffer(1), StageTop, pool, 0)

	ticks, status := drv.QueryPoolResult(Device(1), pool, 0)
	if status != ResultReady {
		t.Fatalf("status = %v, want ResultReady", status)
	}
	if ticks != 0 {
		t.Fatalf("ticks = %d, want 0 (the slot's own index)", ticks)
	}
}

func TestMockDriverUnwrittenSlotIsNotReady(t *testing.T) {
	drv := NewMockDriver()
	pool := drv.CreateQueryPool(Device(1), 4)

	_, status := drv.QueryPoolResult(Device(1), pool, 2)
	if status != ResultNotReady {
		t.Fatalf("status = %v, want ResultNotReady for an unwritten slot", status)
	}
}

func TestMockDriverPendingUntilRead(t *testing.T) {
	drv := NewMockDriver()
	pool := drv.CreateQueryPool(Device(1), 4)
	drv.WriteTimestamp(CommandBuffer(1), StageBottom, pool, 1)
	drv.SetTick(pool, 1, 42)
	drv.PendingUntilRead[1] = 1

	if _, status := drv.QueryPoolResult(Device(1), pool, 1); status != ResultNotReady {
		t.Fatalf("first read status = %v, want ResultNotReady", status)
	}
	ticks, status := drv.QueryPoolResult(Device(1), pool, 1)
	if status != ResultReady || ticks != 42 {
		t.Fatalf("second read = (%d, %v), want (42, ResultReady)", ticks, status)
	}
}

func TestMockDriverResetClearsWritten(t *testing.T) {
	drv := NewMockDriver()
	pool := drv.CreateQueryPool(Device(1), 4)
	drv.WriteTimestamp(CommandBuffer(1), StageTop, pool, 0)
	drv.ResetQuerySlot(Device(1), pool, 0)

	if _, status := drv.QueryPoolResult(Device(1), pool, 0); status != ResultNotReady {
		t.Fatalf("status after reset = %v, want ResultNotReady", status)
	}
}
