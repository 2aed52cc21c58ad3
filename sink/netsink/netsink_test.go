package netsink

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gputrace/subtracker/event"
)

// TestFrameRoundTrip exercises the event-stream framing (the
// gapii/client/protocol.go-grounded half of netsink) without a real
// grpc collector: a pipe stands in for the TCP event connection, and
// Client.Enqueue's frame is read back with ReadFrame.
func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := &Client{eventConn: client}
	want := &event.GpuQueueSubmission{
		ID:              uuid.New(),
		NumBeginMarkers: 3,
		Meta:            event.SubmissionMeta{ThreadID: 7, PreCPUNs: 100, PostCPUNs: 200},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Enqueue(want)
	}()

	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := ReadFrame(server)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	<-done

	if got.ID != want.ID {
		t.Fatalf("ID = %v, want %v", got.ID, want.ID)
	}
	if got.NumBeginMarkers != want.NumBeginMarkers {
		t.Fatalf("NumBeginMarkers = %d, want %d", got.NumBeginMarkers, want.NumBeginMarkers)
	}
	if got.Meta != want.Meta {
		t.Fatalf("Meta = %+v, want %+v", got.Meta, want.Meta)
	}
}
