// Package devicereg is the logical-device registry (spec §4.B):
// logical device → physical device → device properties. The tracker
// only ever reads the timestamp period out of it, the ticks-to-ns
// multiplier every drained slot value is scaled by.
//
// The registry's population is an external collaborator's job (the
// real device-enumeration code that talks to the driver at device
// creation time); this package states its contract and a map-backed
// implementation the interception layer can populate directly.
package devicereg

import (
	"context"

	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/internal/log"
)

// Properties are the device properties the tracker consumes.
type Properties struct {
	PhysicalDevice uint64
	// TimestampPeriod is nanoseconds per GPU tick, a positive float
	// multiplier the driver reports for this physical device.
	TimestampPeriod float64
}

// Registry maps a logical device handle to its Properties.
type Registry struct {
	byDevice map[dispatch.Device]Properties
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byDevice: make(map[dispatch.Device]Properties)}
}

// Register records props for device, overwriting any prior entry — a
// device handle is only reused by the driver after the original device
// was destroyed and its registry entry removed, so overwriting here
// only ever affects a stale, already-unregistered handle.
func (r *Registry) Register(device dispatch.Device, props Properties) {
	r.byDevice[device] = props
}

// Unregister removes device's entry, if any.
func (r *Registry) Unregister(device dispatch.Device) {
	delete(r.byDevice, device)
}

// Properties returns device's properties. Looking up an unknown device
// is a programmer error (spec §4.B: "Behaviour on unknown device is
// fatal") since the tracker only ever queries devices it has itself
// been told, via Track, are alive.
func (r *Registry) Properties(ctx context.Context, device dispatch.Device) Properties {
	props, ok := r.byDevice[device]
	if !ok {
		log.F(ctx, true, "devicereg: unknown device %v", device)
	}
	return props
}

// TimestampPeriod is shorthand for Properties(ctx, device).TimestampPeriod.
func (r *Registry) TimestampPeriod(ctx context.Context, device dispatch.Device) float64 {
	return r.Properties(ctx, device).TimestampPeriod
}
