package grpc

import (
	"context"

	"github.com/maxpert/ringfs/cfg"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ClusterSecretHeader is the metadata key carrying the cluster secret between nodes
const ClusterSecretHeader = "x-ringfs-cluster-secret"

// UnaryServerInterceptor rejects node calls without the cluster secret
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := checkPeerSecret(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func checkPeerSecret(ctx context.Context) error {
	if !cfg.IsClusterAuthEnabled() {
		return nil
	}

	md, _ := metadata.FromIncomingContext(ctx)
	provided := md.Get(ClusterSecretHeader)
	switch {
	case len(provided) == 0:
		return status.Error(codes.Unauthenticated, "missing cluster secret")
	case !cfg.MatchClusterSecret(provided[0]):
		return status.Error(codes.Unauthenticated, "invalid cluster secret")
	}
	return nil
}

// UnaryClientInterceptor attaches the cluster secret to outgoing node calls
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if secret := cfg.GetClusterSecret(); secret != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, ClusterSecretHeader, secret)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
