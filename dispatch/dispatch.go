// Package dispatch is the interposition layer's dispatch shim (spec
// §4.A): it turns the opaque handles the application hands the driver
// into the small set of typed driver entry points the tracker needs,
// the way a Vulkan loader's per-device dispatch table turns a
// VkDevice into vkCreateQueryPool, vkCmdWriteTimestamp, and so on.
//
// The real driver, and the indirection table that resolves it, are
// external collaborators (spec §1): this package only states their
// contract (the Driver interface) plus a Resolver that the
// interception layer populates. The tracker (package tracker) treats
// Resolve as infallible for any handle it currently tracks — a lookup
// miss there is a programmer error, not a runtime condition to
// recover from.
package dispatch

import (
	"context"

	"github.com/gputrace/subtracker/internal/log"
)

// Device, CommandBuffer, Queue and QueryPool are opaque driver handles.
// Their zero value is never a handle the driver issued.
type (
	Device        uint64
	CommandBuffer uint64
	CommandPool   uint64
	Queue         uint64
	QueryPool     uint64
)

// PipelineStage names the point in the GPU pipeline a timestamp write
// is inserted at (spec §4.D: "top" for begin-of-buffer / begin-marker,
// "bottom" for end-of-buffer / end-marker).
type PipelineStage int

const (
	StageTop PipelineStage = iota
	StageBottom
)

func (s PipelineStage) String() string {
	if s == StageTop {
		return "top-of-pipe"
	}
	return "bottom-of-pipe"
}

// ResultStatus is the outcome of a query-pool result read.
type ResultStatus int

const (
	// ResultReady means the driver returned a valid 64-bit tick count.
	ResultReady ResultStatus = iota
	// ResultNotReady means the GPU has not yet completed the write.
	ResultNotReady
)

// Driver is the subset of driver entry points the tracker calls (spec
// §6, "Driver calls (consumed via dispatch shim)"). It is resolved
// through a device handle only (Resolver.Resolve); there is no lookup by
// command-buffer or queue handle.
type Driver interface {
	// CreateQueryPool asks the driver for a timestamp query pool of the
	// given capacity, hardware-resetting every slot. Fatal on error.
	CreateQueryPool(device Device, capacity uint32) QueryPool
	// DestroyQueryPool releases a query pool created by CreateQueryPool.
	DestroyQueryPool(device Device, pool QueryPool)
	// ResetQuerySlot hardware-resets a single slot so it can accept a
	// fresh timestamp write.
	ResetQuerySlot(device Device, pool QueryPool, slot uint32)
	// WriteTimestamp records a command into cb that, when the GPU
	// reaches stage, writes the current tick count into pool[slot].
	WriteTimestamp(cb CommandBuffer, stage PipelineStage, pool QueryPool, slot uint32)
	// QueryPoolResult reads back the 64-bit tick count for pool[slot].
	// A ResultNotReady status is expected and non-fatal; any other
	// non-success status is a driver error and is fatal.
	QueryPoolResult(device Device, pool QueryPool, slot uint32) (ticks uint64, status ResultStatus)
	// SupportsDebugMarkers reports whether device's driver offers the
	// legacy VK_EXT_debug_marker entry points.
	SupportsDebugMarkers(device Device) bool
	// SupportsDebugUtils reports whether device's driver offers the
	// newer VK_EXT_debug_utils entry points.
	SupportsDebugUtils(device Device) bool
}

// Resolver maps opaque handles to the Driver that owns them. A real
// interception layer populates it as devices are created and destroyed;
// this package only owns the map shape.
type Resolver struct {
	byDevice map[Device]Driver
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{byDevice: make(map[Device]Driver)}
}

// Bind associates device with drv. Rebinding an already-bound device
// silently replaces the driver, matching a device being torn down and
// recreated by the application.
func (r *Resolver) Bind(device Device, drv Driver) {
	r.byDevice[device] = drv
}

// Unbind removes device's association.
func (r *Resolver) Unbind(device Device) {
	delete(r.byDevice, device)
}

// Resolve returns the Driver bound to device. The tracker only calls
// this for devices it has an open record for, so a miss here means the
// interception layer and the tracker have disagreed about a device's
// lifetime — a programmer error, logged and fatal.
func (r *Resolver) Resolve(ctx context.Context, device Device) Driver {
	drv, ok := r.byDevice[device]
	if !ok {
		log.F(ctx, true, "dispatch: no driver bound for device %v", device)
	}
	return drv
}
