package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maxpert/ringfs/node"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Protocol errors that must survive the trip between nodes. The status
// message carries the sentinel text, which the client maps back.
var wireErrors = []struct {
	err  error
	code codes.Code
}{
	{node.ErrUnknownRound, codes.FailedPrecondition},
	{node.ErrNoLocalReplica, codes.NotFound},
	{node.ErrLockTimeout, codes.DeadlineExceeded},
	{node.ErrLockNotHeld, codes.FailedPrecondition},
	{node.ErrNotBound, codes.Unavailable},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var held *node.LockHeldError
	if errors.As(err, &held) {
		return status.Error(codes.Aborted, err.Error())
	}

	for _, w := range wireErrors {
		if errors.Is(err, w.err) {
			return status.Error(w.code, err.Error())
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus turns a failed call into an error naming the peer. Transport
// failures wrap node.ErrNotBound so callers treat them as an unreachable node.
func fromStatus(peer node.Peer, method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s on %s: %w", method, peer, err)
	}

	for _, w := range wireErrors {
		if st.Code() == w.code && strings.Contains(st.Message(), w.err.Error()) {
			return fmt.Errorf("%s on %s: %w: %s", method, peer, w.err, st.Message())
		}
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%s on %s: %w: %s", method, peer, node.ErrNotBound, st.Message())
	}
	return fmt.Errorf("%s on %s: %s: %s", method, peer, st.Code(), st.Message())
}

// errorInterceptor converts handler errors into gRPC statuses
func errorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return nil, toStatus(err)
		}
		return resp, nil
	}
}
