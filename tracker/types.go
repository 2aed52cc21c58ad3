package tracker

import (
	"github.com/google/uuid"

	"github.com/gputrace/subtracker/dispatch"
	"github.com/gputrace/subtracker/event"
)

type markerKind int

const (
	markerBegin markerKind = iota
	markerEnd
)

// markerEntry is one line of a command buffer's recorded marker list
// (spec §3, "ordered sequence of marker entries").
type markerEntry struct {
	kind  markerKind
	text  string      // only meaningful for markerBegin
	color *event.Color // only meaningful for markerBegin
	slot  *uint32
}

// commandPoolKey identifies a command pool on a specific device; the
// same command-pool handle value is not guaranteed unique across
// devices in general, even though in practice driver handles are
// unique while live (spec §9, "Stacks keyed by handle").
type commandPoolKey struct {
	device dispatch.Device
	pool   dispatch.CommandPool
}

// bufferRecord is spec §3's "Command-buffer record".
type bufferRecord struct {
	device    dispatch.Device
	pool      dispatch.CommandPool
	beginSlot *uint32
	endSlot   *uint32
	markers   []markerEntry
	// localDepth is begins minus ends observed on this buffer since
	// begin-recording, floored at 0 (spec §3).
	localDepth uint32
}

// slotRef is a not-yet-resolved GPU timestamp: which submission it was
// written in (for meta) and which slot to read at drain time.
type slotRef struct {
	meta event.SubmissionMeta
	slot uint32
}

// openMarker is spec §3's "Per-queue marker stack" entry: a marker
// whose begin has been submitted but whose end has not.
type openMarker struct {
	text  string
	color *event.Color
	depth uint32 // stack size immediately before this marker was pushed
	begin *slotRef
}

// pendingMarker is a matched begin/end pair waiting to be resolved into
// an event.CompletedMarker at drain time.
type pendingMarker struct {
	text  string
	color *event.Color
	depth uint32
	begin *slotRef
	end   *slotRef
}

// submittedBuffer is one command buffer's slots as recorded into a
// submission (spec §3: "each with its optional begin-slot and mandatory
// end-slot").
type submittedBuffer struct {
	beginSlot *uint32
	endSlot   uint32
}

// submitInfo groups the command buffers of one submit-info within a
// submission, preserving order for the drain-time "last non-empty
// submit-info" probe target (spec §4.D, drain semantics).
type submitInfo struct {
	buffers []submittedBuffer
}

// submissionRecord is spec §3's "Submission record".
type submissionRecord struct {
	id              uuid.UUID
	device          dispatch.Device
	queue           dispatch.Queue
	meta            event.SubmissionMeta
	submitInfos     []submitInfo
	markers         []pendingMarker
	numBeginMarkers uint32
}

// allSlots returns every slot this submission record references, for
// bulk release once the record is either drained or abandoned.
func (s *submissionRecord) allSlots() []uint32 {
	var slots []uint32
	for _, si := range s.submitInfos {
		for _, cb := range si.buffers {
			if cb.beginSlot != nil {
				slots = append(slots, *cb.beginSlot)
			}
			slots = append(slots, cb.endSlot)
		}
	}
	for _, m := range s.markers {
		if m.begin != nil {
			slots = append(slots, m.begin.slot)
		}
		if m.end != nil {
			slots = append(slots, m.end.slot)
		}
	}
	return slots
}

// lastNonEmptyBuffer returns the end-slot to probe for this
// submission's readiness: the last command buffer of the last
// submit-info that has at least one command buffer (spec §4.D, drain
// semantics; §9's third open question resolved by iterating
// submit-infos in reverse rather than always trusting the final one to
// be non-empty).
func (s *submissionRecord) lastNonEmptyBuffer() (submittedBuffer, bool) {
	for i := len(s.submitInfos) - 1; i >= 0; i-- {
		bufs := s.submitInfos[i].buffers
		if len(bufs) > 0 {
			return bufs[len(bufs)-1], true
		}
	}
	return submittedBuffer{}, false
}

func (s *submissionRecord) hasAnyBuffer() bool {
	for _, si := range s.submitInfos {
		if len(si.buffers) > 0 {
			return true
		}
	}
	return false
}
