// Package netsink is the out-of-process sink.Sink implementation: a
// small control-plane client talking to a collector process over grpc,
// paired with a hand-rolled length-prefixed event stream over a plain
// net.Conn for the high-frequency path.
//
// The split mirrors gapii/client/protocol.go, which also keeps its
// framed data connection separate from anything RPC-shaped; here the
// low-frequency, low-volume calls (is capture active right now, intern
// this string) go over grpc instead of being folded into the same
// framing, since they are exactly the kind of simple request/response
// call grpc is for.
package netsink

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/gputrace/subtracker/event"
	"github.com/gputrace/subtracker/internal/grpcutil"
	"github.com/gputrace/subtracker/internal/log"
	"github.com/gputrace/subtracker/sink"
)

// Control-plane RPC method names. There is no compiled .proto for
// these — the well-known wrapper types already satisfy proto.Message,
// so a bare grpc.ClientConn.Invoke against a collector that speaks the
// same two methods is a complete client, without generating stub code
// for a two-method service.
const (
	methodGetCaptureState = "/subtracker.netsink.CaptureControl/GetCaptureState"
	methodInternString    = "/subtracker.netsink.CaptureControl/InternString"
)

// frameHeaderSize is the length-prefix width of the event stream,
// mirroring gapii/client/protocol.go's fixed-size header ahead of each
// message's payload (there messageHeaderSize=6; here the frame carries
// only a payload length, since netsink has exactly one message kind).
const frameHeaderSize = 4

// Client is a sink.Sink that forwards events to an out-of-process
// collector. Every method degrades to a safe default (not capturing,
// key 0, dropped event) and logs a warning on transport failure rather
// than propagating an error the tracker's hooks have nowhere to return
// (spec §6: the sink is an external collaborator whose availability
// the core cannot block on).
type Client struct {
	mu        sync.Mutex
	conn      *grpc.ClientConn
	eventConn net.Conn
}

// Dial connects to a collector's control RPC endpoint at controlAddr
// and its event-stream endpoint at eventAddr.
func Dial(ctx context.Context, controlAddr, eventAddr string) (*Client, error) {
	conn, err := grpcutil.Dial(ctx, controlAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "netsink: dial control endpoint %s", controlAddr)
	}
	eventConn, err := net.DialTimeout("tcp", eventAddr, 5*time.Second)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "netsink: dial event endpoint %s", eventAddr)
	}
	return &Client{conn: conn, eventConn: eventConn}, nil
}

// Close tears down both connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.eventConn.Close()
	if cerr := c.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// IsCapturing asks the collector for the process-wide capture flag.
// A transport failure is treated as "not capturing" — the conservative
// choice, since acting as if a capture were active when the collector
// is unreachable would waste every subsequent hook's timestamp slots
// for events that can never be delivered.
func (c *Client) IsCapturing() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, methodGetCaptureState, new(emptypb.Empty), resp); err != nil {
		log.W(ctx, "netsink: GetCaptureState failed: %v", err)
		return false
	}
	return resp.GetValue()
}

// InternString asks the collector for a stable key for s. Returns 0 on
// transport failure; a zero key is never assigned by a well-behaved
// collector to a real string, so it doubles as an out-of-band failure
// signal downstream consumers can filter on.
func (c *Client) InternString(s string) uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp := new(wrapperspb.UInt64Value)
	if err := c.conn.Invoke(ctx, methodInternString, wrapperspb.String(s), resp); err != nil {
		log.W(ctx, "netsink: InternString failed: %v", err)
		return 0
	}
	return resp.GetValue()
}

// Enqueue gob-encodes ev and writes it to the event stream as one
// length-prefixed frame. Failures are logged and the event is dropped:
// Client neither retries nor batches, and no transport error reaches the
// tracker. Each call blocks until the frame is written or the 5-second
// write deadline expires.
func (c *Client) Enqueue(ev *event.GpuQueueSubmission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		log.W(context.Background(), "netsink: encoding submission %s: %v", ev.ID, err)
		return
	}
	payload := buf.Bytes()

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	c.eventConn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.eventConn.Write(header); err != nil {
		log.W(context.Background(), "netsink: writing frame header for submission %s: %v", ev.ID, err)
		return
	}
	if _, err := c.eventConn.Write(payload); err != nil {
		log.W(context.Background(), "netsink: writing frame payload for submission %s: %v", ev.ID, err)
	}
}

var _ sink.Sink = (*Client)(nil)

// ReadFrame reads one length-prefixed gob-encoded event from r, the
// counterpart a collector process implements to decode what Enqueue
// writes.
func ReadFrame(r io.Reader) (*event.GpuQueueSubmission, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrap(err, "netsink: reading frame header")
	}
	size := binary.BigEndian.Uint32(header)
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "netsink: reading frame payload")
	}
	ev := new(event.GpuQueueSubmission)
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(ev); err != nil {
		return nil, errors.Wrap(err, "netsink: decoding frame payload")
	}
	return ev, nil
}
