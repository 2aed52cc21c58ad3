package netsink

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/gputrace/subtracker/event"
	"github.com/gputrace/subtracker/internal/log"
)

// CollectorServer is a reference collector: the process on the other
// end of a Client, useful for tests and for a standalone demo
// collector binary. It answers the two control RPCs and accepts framed
// events on a plain listener, handing each to OnEvent.
//
// There is no protoc-generated service here — captureControlServer and
// serviceDesc below are the same shape protoc-gen-go-grpc would emit
// for a two-method service, hand-written because this module carries
// no .proto compiler step (spec §1 keeps wire codegen out of scope).
type CollectorServer struct {
	capturing atomic.Bool

	mu       sync.Mutex
	interned map[string]uint64
	nextKey  uint64

	// OnEvent, if set, is called once per event decoded off the event
	// stream. Left nil, events are simply decoded and discarded.
	OnEvent func(*event.GpuQueueSubmission)
}

// NewCollectorServer returns a CollectorServer with capturing initially
// active.
func NewCollectorServer() *CollectorServer {
	s := &CollectorServer{interned: make(map[string]uint64)}
	s.capturing.Store(true)
	return s
}

// SetCapturing flips the flag GetCaptureState reports.
func (s *CollectorServer) SetCapturing(active bool) { s.capturing.Store(active) }

func (s *CollectorServer) getCaptureState(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(s.capturing.Load()), nil
}

func (s *CollectorServer) internString(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.interned[req.GetValue()]; ok {
		return wrapperspb.UInt64(key), nil
	}
	s.nextKey++
	s.interned[req.GetValue()] = s.nextKey
	return wrapperspb.UInt64(s.nextKey), nil
}

type captureControlServer interface {
	getCaptureState(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	internString(context.Context, *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error)
}

func getCaptureStateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(captureControlServer).getCaptureState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetCaptureState}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(captureControlServer).getCaptureState(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func internStringHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(captureControlServer).internString(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodInternString}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(captureControlServer).internString(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "subtracker.netsink.CaptureControl",
	HandlerType: (*captureControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCaptureState", Handler: getCaptureStateHandler},
		{MethodName: "InternString", Handler: internStringHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "subtracker/netsink",
}

// Serve resolves controlAddr and eventAddr into listeners and runs
// ServeListener on them. It mirrors core/net/grpcutil.Serve, which does
// the same net.Listen-then-delegate split against ServeWithListener.
func (s *CollectorServer) Serve(ctx context.Context, controlAddr, eventAddr string) error {
	controlLis, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return errors.Wrapf(err, "netsink: listen on control address %s", controlAddr)
	}
	defer controlLis.Close()

	eventLis, err := net.Listen("tcp", eventAddr)
	if err != nil {
		return errors.Wrapf(err, "netsink: listen on event address %s", eventAddr)
	}
	defer eventLis.Close()

	return s.ServeListener(ctx, controlLis, eventLis)
}

// ServeListener is the core/net/grpcutil.ServeWithListener counterpart:
// it runs the control-plane grpc server on controlLis and the
// event-stream acceptor on eventLis, blocking until ctx is cancelled or
// either one fails. Callers that need an ephemeral port (tests) create
// their own listeners with net.Listen("tcp", "127.0.0.1:0") and call
// this directly.
func (s *CollectorServer) ServeListener(ctx context.Context, controlLis, eventLis net.Listener) error {
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, s)

	errs := make(chan error, 2)
	go func() {
		log.I(ctx, "netsink: control server listening on %s", controlLis.Addr())
		errs <- grpcServer.Serve(controlLis)
	}()
	go func() { errs <- s.acceptEvents(ctx, eventLis) }()

	go func() {
		<-ctx.Done()
		grpcServer.Stop()
		eventLis.Close()
	}()

	return <-errs
}

func (s *CollectorServer) acceptEvents(ctx context.Context, lis net.Listener) error {
	log.I(ctx, "netsink: event server listening on %s", lis.Addr())
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		go s.serveEventConn(ctx, conn)
	}
}

func (s *CollectorServer) serveEventConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		ev, err := ReadFrame(conn)
		if err != nil {
			log.W(ctx, "netsink: event connection from %s closed: %v", conn.RemoteAddr(), err)
			return
		}
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
}
