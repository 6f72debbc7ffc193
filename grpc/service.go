package grpc

import (
	"context"

	"github.com/maxpert/ringfs/node"
	"google.golang.org/grpc"
)

const serviceName = "ringfs.Node"

// Method names of the node service
const (
	MethodAddReplicaKey           = "AddReplicaKey"
	MethodMaterializeReplica      = "MaterializeReplica"
	MethodReplicaMetadata         = "ReplicaMetadata"
	MethodSetActiveNodes          = "SetActiveNodes"
	MethodRequestReadOperation    = "RequestReadOperation"
	MethodRequestWriteOperation   = "RequestWriteOperation"
	MethodMulticastVotersDecision = "MulticastVotersDecision"
	MethodMajorityAcknowledged    = "MajorityAcknowledged"
	MethodAcquireLock             = "AcquireLock"
	MethodIncrementClock          = "IncrementClock"
	MethodReleaseLocks            = "ReleaseLocks"
	MethodMulticastUpdate         = "MulticastUpdateOrReadReleaseLock"
	MethodPerformOperation        = "PerformOperation"
	MethodVote                    = "Vote"
	MethodOnVotersDecision        = "OnVotersDecision"
	MethodOnUpdateOrReleaseLock   = "OnUpdateOrReleaseLock"
)

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// unary builds a method descriptor that decodes Req, dispatches to the
// node.Handle registered with the server and returns Resp
func unary[Req any, Resp any](name string, call func(context.Context, node.Handle, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			h := srv.(node.Handle)
			if interceptor == nil {
				return call(ctx, h, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(ctx, h, req.(*Req))
			})
		},
	}
}

func boolResponse(v bool, err error) (*BoolResponse, error) {
	if err != nil {
		return nil, err
	}
	return &BoolResponse{Value: v}, nil
}

func emptyResponse(err error) (*Empty, error) {
	if err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// NodeServiceDesc exposes a node.Handle as the ringfs.Node gRPC service.
// There is no generated protobuf code; payloads use the msgpack codec.
var NodeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*node.Handle)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodAddReplicaKey, func(ctx context.Context, h node.Handle, in *ReplicaKeyRequest) (*Empty, error) {
			return emptyResponse(h.AddReplicaKey(ctx, in.ReplicaID))
		}),
		unary(MethodMaterializeReplica, func(ctx context.Context, h node.Handle, in *MaterializeRequest) (*Empty, error) {
			return emptyResponse(h.MaterializeReplica(ctx, in.ReplicaID, in.Filename, in.Content))
		}),
		unary(MethodReplicaMetadata, func(ctx context.Context, h node.Handle, _ *Empty) (*MetadataResponse, error) {
			records, err := h.ReplicaMetadata(ctx)
			if err != nil {
				return nil, err
			}
			return &MetadataResponse{Records: records}, nil
		}),
		unary(MethodSetActiveNodes, func(ctx context.Context, h node.Handle, in *RoundRequest) (*Empty, error) {
			return emptyResponse(h.SetActiveNodes(ctx, in.Record, in.Set))
		}),
		unary(MethodRequestReadOperation, func(ctx context.Context, h node.Handle, in *RecordRequest) (*BoolResponse, error) {
			return boolResponse(h.RequestReadOperation(ctx, in.Record))
		}),
		unary(MethodRequestWriteOperation, func(ctx context.Context, h node.Handle, in *RecordRequest) (*BoolResponse, error) {
			return boolResponse(h.RequestWriteOperation(ctx, in.Record))
		}),
		unary(MethodMulticastVotersDecision, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.MulticastVotersDecision(ctx, in.Record))
		}),
		unary(MethodMajorityAcknowledged, func(ctx context.Context, h node.Handle, in *RecordRequest) (*BoolResponse, error) {
			return boolResponse(h.MajorityAcknowledged(ctx, in.Record))
		}),
		unary(MethodAcquireLock, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.AcquireLock(ctx, in.Record))
		}),
		unary(MethodIncrementClock, func(ctx context.Context, h node.Handle, _ *Empty) (*Empty, error) {
			return emptyResponse(h.IncrementClock(ctx))
		}),
		unary(MethodReleaseLocks, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.ReleaseLocks(ctx, in.Record))
		}),
		unary(MethodMulticastUpdate, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.MulticastUpdateOrReadReleaseLock(ctx, in.Record))
		}),
		unary(MethodPerformOperation, func(ctx context.Context, h node.Handle, in *RoundRequest) (*ContentResponse, error) {
			content, err := h.PerformOperation(ctx, in.Record, in.Set)
			if err != nil {
				return nil, err
			}
			return &ContentResponse{Content: content}, nil
		}),
		unary(MethodVote, func(ctx context.Context, h node.Handle, in *RecordRequest) (*BoolResponse, error) {
			return boolResponse(h.Vote(ctx, in.Record))
		}),
		unary(MethodOnVotersDecision, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.OnVotersDecision(ctx, in.Record))
		}),
		unary(MethodOnUpdateOrReleaseLock, func(ctx context.Context, h node.Handle, in *RecordRequest) (*Empty, error) {
			return emptyResponse(h.OnUpdateOrReleaseLock(ctx, in.Record))
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ringfs/node",
}
