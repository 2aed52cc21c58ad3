package tracker

import (
	"github.com/gputrace/subtracker/dispatch"

	"context"
)

// PreSubmit implements spec §4.D's pre-submit() → ts?. Its return value
// must be passed back into PostSubmit unchanged.
func (t *Tracker) PreSubmit(ctx context.Context) (ts int64, present bool) {
	if !t.sinkRef.IsCapturing() {
		return 0, false
	}
	return nowNs(), true
}

// PostSubmit implements spec §4.D's post-submit(queue, infos[], pre_ts).
//
// threadID identifies the calling OS thread; a pure-Go tracker has no
// portable way to read that itself (unlike the teacher, whose
// interception layer stamps it onto every recorded call — see
// cmd.Thread() in gapis/api/vulkan/query_timestamps.go's Transform), so
// the interception layer that owns the real thread identity supplies
// it here instead of the tracker inferring it.
func (t *Tracker) PostSubmit(ctx context.Context, threadID uint64, queue dispatch.Queue, infos [][]dispatch.CommandBuffer, preTs int64, tsPresent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	capturing := t.sinkRef.IsCapturing()
	if !capturing || !tsPresent {
		t.postSubmitRegimeDrop(ctx, infos)
		return
	}
	t.postSubmitRegimeCapture(ctx, threadID, queue, infos, preTs)
}

// postSubmitRegimeDrop is spec §4.D regime (1): not capturing, or
// pre_ts absent. Any tracked buffer referenced still owns slots (from
// an earlier capturing window); reclaim them with a hardware reset
// since they may carry real GPU writes, and drop their records. Queue
// marker stacks are untouched.
func (t *Tracker) postSubmitRegimeDrop(ctx context.Context, infos [][]dispatch.CommandBuffer) {
	for _, info := range infos {
		for _, cb := range info {
			rec, ok := t.buffers[cb]
			if !ok {
				continue
			}
			slots := recordSlots(rec)
			if len(slots) > 0 {
				t.pool.ReleaseWithHWReset(ctx, rec.device, slots)
			}
			delete(t.buffers, cb)
		}
	}
}

// postSubmitRegimeCapture is spec §4.D regime (2): capturing and pre_ts
// present.
func (t *Tracker) postSubmitRegimeCapture(ctx context.Context, threadID uint64, queue dispatch.Queue, infos [][]dispatch.CommandBuffer, preTs int64) {
	sub := &submissionRecord{
		id:    newSubmissionID(),
		queue: queue,
	}
	sub.meta.ThreadID = threadID
	sub.meta.PreCPUNs = preTs
	sub.meta.PostCPUNs = nowNs()

	stack := t.queueStacks[queue]
	deviceKnown := false

	for _, info := range infos {
		si := submitInfo{}
		for _, cb := range info {
			rec, ok := t.buffers[cb]
			if !ok {
				// No usable record: either never tracked here, or a
				// reused command buffer submitted without a fresh
				// record. Nothing to contribute.
				continue
			}
			if !deviceKnown {
				sub.device = rec.device
				deviceKnown = true
			}

			for _, m := range rec.markers {
				if m.kind == markerBegin {
					om := openMarker{text: m.text, color: m.color, depth: uint32(len(stack))}
					if m.slot != nil {
						om.begin = &slotRef{meta: sub.meta, slot: *m.slot}
						sub.numBeginMarkers++
					}
					stack = append(stack, om)
					continue
				}
				// markerEnd
				if len(stack) == 0 {
					// No open marker to close; nothing recorded.
					continue
				}
				popped := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				var end *slotRef
				if m.slot != nil {
					end = &slotRef{meta: sub.meta, slot: *m.slot}
				}
				if end != nil || popped.begin != nil {
					sub.markers = append(sub.markers, pendingMarker{
						text:  popped.text,
						color: popped.color,
						depth: popped.depth,
						begin: popped.begin,
						end:   end,
					})
				}
			}

			if rec.endSlot != nil {
				si.buffers = append(si.buffers, submittedBuffer{
					beginSlot: rec.beginSlot,
					endSlot:   *rec.endSlot,
				})
			}
			// else: capture started after begin-recording, no usable
			// timings for this buffer — dropped from the submission
			// (spec §4.D).
			delete(t.buffers, cb)
		}
		sub.submitInfos = append(sub.submitInfos, si)
	}

	t.queueStacks[queue] = stack
	if !deviceKnown {
		// Every command buffer in this submission was either never
		// tracked here or had no live record (reused/freed buffers, or
		// a submission with no command buffers at all): nothing was
		// contributed to sub (no markers touched the queue stack, no
		// submitInfo got a submitted buffer), so sub.device was never
		// set. Appending it anyway would leave a submission with the
		// zero Device value at the head of this queue's in-flight
		// list, which CompleteSubmits's per-device gate would then
		// never match, starving every later submission behind it.
		// Mirrors postSubmitRegimeDrop's "nothing to contribute".
		return
	}
	t.inflight[queue] = append(t.inflight[queue], sub)
}
