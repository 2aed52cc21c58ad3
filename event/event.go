// Package event defines the capture event schema produced by the
// submission tracker (spec §6, "Event schema (produced, conceptual)").
//
// These are plain Go values, not generated protobuf messages: wire
// framing is explicitly the event sink's concern (spec §1, §6), not the
// core's. A concrete sink (package sink/netsink) is free to marshal
// these however its collector expects.
package event

import "github.com/google/uuid"

// Color is an RGBA debug-marker color. A zero Color (all channels 0)
// means "no color was set" and is omitted from emitted events, per
// spec §4.D ("color is omitted if fully zero RGBA").
type Color struct {
	R, G, B, A uint8
}

// IsZero reports whether c is the all-zero color.
func (c Color) IsZero() bool { return c == Color{} }

// SubmissionMeta carries the CPU-side timing and thread identity of one
// queue submission (spec §3, "Submission record").
type SubmissionMeta struct {
	ThreadID  uint64
	PreCPUNs  int64
	PostCPUNs int64
}

// CommandBufferTiming is one submitted command buffer's begin/end GPU
// timestamps, converted to nanoseconds. BeginNs is only present when
// the command buffer's begin-of-buffer timestamp was recorded during
// capture; EndNs is always present (spec §3: "end is required because
// its presence is how completion is probed").
type CommandBufferTiming struct {
	BeginNs *uint64
	EndNs   uint64
}

// SubmitInfo is the timed command buffers belonging to one VkSubmitInfo
// equivalent within a submission.
type SubmitInfo struct {
	CommandBuffers []CommandBufferTiming
}

// MarkerMeta is the CPU-side submission context in which one end of a
// marker (its begin or its end) was recorded.
type MarkerMeta struct {
	SubmissionMeta
	GPUNs uint64
}

// CompletedMarker is a begin+end debug marker pair whose end fell
// inside the submission that produced this event (spec §3, "completed
// markers").
//
// §3 summarizes End as "mandatory end info (meta + slot)", but §4.D's
// operational rule emits a completed marker whenever *either* side
// carried a slot, not only when the end side did — a marker whose begin
// was recorded while capturing but whose end was depth-filtered out
// still needs to surface as best-effort data. This module treats §4.D's
// algorithm as controlling and models End as optional like Begin; see
// DESIGN.md for the reconciliation.
type CompletedMarker struct {
	Text    string
	TextKey uint64
	Color   *Color
	Depth   uint32
	Begin   *MarkerMeta // absent if capture wasn't active when this marker's begin was recorded
	End     *MarkerMeta // absent if capture wasn't active (or the marker was depth-filtered) when its end was recorded
}

// GpuQueueSubmission is one fully-formed, ready-to-emit capture event
// (spec §6, "Event schema").
type GpuQueueSubmission struct {
	ID               uuid.UUID
	Meta             SubmissionMeta
	SubmitInfos      []SubmitInfo
	CompletedMarkers []CompletedMarker
	NumBeginMarkers  uint32
}
