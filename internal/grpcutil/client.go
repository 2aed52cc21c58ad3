// Package grpcutil is a small wrapper around dialing a grpc server,
// adapted from core/net/grpcutil's Dial: install the options every
// client in this module wants (bounded message size, insecure
// transport for a same-host collector) once, in one place.
package grpcutil

import (
	"context"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to a grpc server at target with the module's standard
// options installed, plus any extra options the caller supplies.
func Dial(ctx context.Context, target string, options ...grpc.DialOption) (*grpc.ClientConn, error) {
	options = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(math.MaxInt32)),
	}, options...)
	return grpc.Dial(target, options...)
}
