package tracker

import (
	"context"

	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/event"
	"github.com/gputrace/subtracker/internal/log"
)

// BeginRecording implements spec §4.D's begin-recording(cb).
func (t *Tracker) BeginRecording(ctx context.Context, cb dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.buffers[cb]; ok {
		log.F(ctx, true, "tracker: begin-recording on command buffer %v which already has a record", cb)
	}
	device := t.deviceOf(ctx, cb)
	rec := &bufferRecord{device: device, pool: t.trackedBuffers[cb].pool}

	if t.sinkRef.IsCapturing() {
		if slot := t.acquireOrDegrade(ctx, device, "begin-recording"); slot != nil {
			drv := t.resolver.Resolve(ctx, device)
			drv.WriteTimestamp(cb, dispatch.StageTop, t.pool.Handle(ctx, device), *slot)
			rec.beginSlot = slot
		}
	}
	t.buffers[cb] = rec
}

// EndRecording implements spec §4.D's end-recording(cb).
func (t *Tracker) EndRecording(ctx context.Context, cb dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.buffers[cb]
	if !ok {
		log.F(ctx, true, "tracker: end-recording on command buffer %v with no active record", cb)
	}
	if !t.sinkRef.IsCapturing() {
		return
	}
	if slot := t.acquireOrDegrade(ctx, rec.device, "end-recording"); slot != nil {
		drv := t.resolver.Resolve(ctx, rec.device)
		drv.WriteTimestamp(cb, dispatch.StageBottom, t.pool.Handle(ctx, rec.device), *slot)
		rec.endSlot = slot
	}
}

// BeginMarker implements spec §4.D's begin-marker(cb, text, color). The
// marker itself is always recorded, for stack balance, but its
// timestamp-write is additionally gated on the driver advertising
// VK_EXT_debug_marker or VK_EXT_debug_utils (spec §6): without either,
// the driver has no entry point to time a debug label against.
func (t *Tracker) BeginMarker(ctx context.Context, cb dispatch.CommandBuffer, text string, color event.Color) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.buffers[cb]
	if !ok {
		log.F(ctx, true, "tracker: begin-marker on command buffer %v with no active record", cb)
	}
	rec.localDepth++
	depth := rec.localDepth

	var slot *uint32
	if t.withinDepthLimit(depth) && t.sinkRef.IsCapturing() {
		drv := t.resolver.Resolve(ctx, rec.device)
		if drv.SupportsDebugMarkers(rec.device) || drv.SupportsDebugUtils(rec.device) {
			if s := t.acquireOrDegrade(ctx, rec.device, "begin-marker"); s != nil {
				drv.WriteTimestamp(cb, dispatch.StageTop, t.pool.Handle(ctx, rec.device), *s)
				slot = s
			}
		}
	}

	entry := markerEntry{kind: markerBegin, text: text, slot: slot}
	if !color.IsZero() {
		c := color
		entry.color = &c
	}
	rec.markers = append(rec.markers, entry)
}

// EndMarker implements spec §4.D's end-marker(cb).
func (t *Tracker) EndMarker(ctx context.Context, cb dispatch.CommandBuffer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.buffers[cb]
	if !ok {
		log.F(ctx, true, "tracker: end-marker on command buffer %v with no active record", cb)
	}
	// depth is the level of the marker being closed, read before the
	// floored decrement (spec §4.D: "depth-filter ... follow the same
	// rules as begin-marker").
	depth := rec.localDepth

	var slot *uint32
	if t.withinDepthLimit(depth) && t.sinkRef.IsCapturing() {
		drv := t.resolver.Resolve(ctx, rec.device)
		if drv.SupportsDebugMarkers(rec.device) || drv.SupportsDebugUtils(rec.device) {
			if s := t.acquireOrDegrade(ctx, rec.device, "end-marker"); s != nil {
				drv.WriteTimestamp(cb, dispatch.StageBottom, t.pool.Handle(ctx, rec.device), *s)
				slot = s
			}
		}
	}

	rec.markers = append(rec.markers, markerEntry{kind: markerEnd, slot: slot})
	if rec.localDepth > 0 {
		rec.localDepth--
	}
}

// withinDepthLimit reports whether a marker at the given local depth
// still gets a slot, per spec §6's Configuration semantics: zero
// disables filtering entirely.
func (t *Tracker) withinDepthLimit(depth uint32) bool {
	return t.config.MaxLocalMarkerDepth == 0 || depth <= t.config.MaxLocalMarkerDepth
}
