package tracker

import (
	"context"

	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/event"
)

// CompleteSubmits implements spec §4.D's complete-submits(device): poll
// readiness of every in-flight submission on every queue belonging to
// device, in FIFO order, emitting a capture event for each one ready.
//
// A queue's device association isn't tracked separately — it's read
// off the device already recorded on that queue's own in-flight
// submissions (a queue only ever submits on one device), so an empty
// queue is simply skipped: there is nothing to drain and nothing to
// learn its device from.
func (t *Tracker) CompleteSubmits(ctx context.Context, device dispatch.Device) {
	t.mu.Lock()
	defer t.mu.Unlock()

	drv := t.resolver.Resolve(ctx, device)
	poolHandle := t.pool.Handle(ctx, device)
	period := t.devices.TimestampPeriod(ctx, device)

	for queue, subs := range t.inflight {
		if len(subs) == 0 || subs[0].device != device {
			continue
		}
		i := 0
	scan:
		for i < len(subs) {
			sub := subs[i]
			if !sub.hasAnyBuffer() {
				// Dropped without probing (spec §4.D). Any slots it
				// still references (e.g. marker-only submissions) are
				// reclaimed on the assumption a real write was
				// consumed, since we never confirm that either way —
				// an accepted limitation of the spec-literal rule.
				t.pool.ReleaseWithHWReset(ctx, device, sub.allSlots())
				i++
				continue
			}
			buf, _ := sub.lastNonEmptyBuffer()
			_, status := drv.QueryPoolResult(device, poolHandle, buf.endSlot)
			switch status {
			case dispatch.ResultNotReady:
				break scan
			default:
				t.emit(ctx, device, drv, poolHandle, period, sub)
				i++
			}
		}
		if i > 0 {
			t.inflight[queue] = subs[i:]
		}
	}
}

// emit builds and hands off the capture event for a ready submission,
// then reclaims every slot it referenced.
func (t *Tracker) emit(ctx context.Context, device dispatch.Device, drv dispatch.Driver, poolHandle dispatch.QueryPool, period float64, sub *submissionRecord) {
	s := t.sinkRef.Get()

	readNs := func(slot uint32) uint64 {
		ticks, _ := drv.QueryPoolResult(device, poolHandle, slot)
		return uint64(float64(ticks) * period)
	}

	var submitInfos []event.SubmitInfo
	for _, si := range sub.submitInfos {
		var cbs []event.CommandBufferTiming
		for _, b := range si.buffers {
			var beginNs *uint64
			if b.beginSlot != nil {
				v := readNs(*b.beginSlot)
				beginNs = &v
			}
			cbs = append(cbs, event.CommandBufferTiming{BeginNs: beginNs, EndNs: readNs(b.endSlot)})
		}
		submitInfos = append(submitInfos, event.SubmitInfo{CommandBuffers: cbs})
	}

	var markers []event.CompletedMarker
	for _, m := range sub.markers {
		var textKey uint64
		if s != nil {
			textKey = s.InternString(m.text)
		}
		var color *event.Color
		if m.color != nil {
			c := *m.color
			color = &c
		}
		var begin, end *event.MarkerMeta
		if m.begin != nil {
			begin = &event.MarkerMeta{SubmissionMeta: m.begin.meta, GPUNs: readNs(m.begin.slot)}
		}
		if m.end != nil {
			end = &event.MarkerMeta{SubmissionMeta: m.end.meta, GPUNs: readNs(m.end.slot)}
		}
		markers = append(markers, event.CompletedMarker{
			Text:    m.text,
			TextKey: textKey,
			Color:   color,
			Depth:   m.depth,
			Begin:   begin,
			End:     end,
		})
	}

	ev := &event.GpuQueueSubmission{
		ID:               sub.id,
		Meta:             sub.meta,
		SubmitInfos:      submitInfos,
		CompletedMarkers: markers,
		NumBeginMarkers:  sub.numBeginMarkers,
	}
	if s != nil {
		s.Enqueue(ev)
	}
	t.pool.ReleaseWithHWReset(ctx, device, sub.allSlots())
}
