package grpc

import (
	"context"
	"time"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"google.golang.org/grpc"
)

// Timeouts bound remote node calls
type Timeouts struct {
	Call     time.Duration // A call served by the peer alone
	LockWait time.Duration // The peer's lock_wait_timeout, added to Call for AcquireLock
}

// round bounds calls where the peer itself polls the active set, each of
// its own peer calls taking up to Call
func (t Timeouts) round() time.Duration {
	return 2 * t.Call
}

func (t Timeouts) lock() time.Duration {
	return t.LockWait + t.Call
}

// RemoteHandle reaches a peer's node service over gRPC. Each call is bounded
// by its timeout; a timeout is reported like an unreachable node.
type RemoteHandle struct {
	peer     node.Peer
	conn     grpc.ClientConnInterface
	timeouts Timeouts
}

var _ node.Handle = (*RemoteHandle)(nil)

func NewRemoteHandle(peer node.Peer, conn grpc.ClientConnInterface, timeouts Timeouts) *RemoteHandle {
	return &RemoteHandle{peer: peer, conn: conn, timeouts: timeouts}
}

func (h *RemoteHandle) Peer() node.Peer {
	return h.peer
}

func (h *RemoteHandle) invoke(ctx context.Context, method string, in, out interface{}) error {
	return h.invokeWithin(ctx, h.timeouts.Call, method, in, out)
}

func (h *RemoteHandle) invokeWithin(ctx context.Context, timeout time.Duration, method string, in, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := h.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return fromStatus(h.peer, method, err)
	}
	return nil
}

func (h *RemoteHandle) AddReplicaKey(ctx context.Context, rid id.ReplicaID) error {
	return h.invoke(ctx, MethodAddReplicaKey, &ReplicaKeyRequest{ReplicaID: rid}, &Empty{})
}

func (h *RemoteHandle) MaterializeReplica(ctx context.Context, rid id.ReplicaID, filename, content string) error {
	req := &MaterializeRequest{ReplicaID: rid, Filename: filename, Content: content}
	return h.invoke(ctx, MethodMaterializeReplica, req, &Empty{})
}

func (h *RemoteHandle) ReplicaMetadata(ctx context.Context) (map[id.ReplicaID]node.Record, error) {
	var resp MetadataResponse
	if err := h.invoke(ctx, MethodReplicaMetadata, &Empty{}, &resp); err != nil {
		return nil, err
	}
	if resp.Records == nil {
		resp.Records = map[id.ReplicaID]node.Record{}
	}
	return resp.Records, nil
}

func (h *RemoteHandle) SetActiveNodes(ctx context.Context, rec node.Record, set node.ActiveSet) error {
	return h.invoke(ctx, MethodSetActiveNodes, &RoundRequest{Record: rec, Set: set}, &Empty{})
}

func (h *RemoteHandle) boolCall(ctx context.Context, timeout time.Duration, method string, rec node.Record) (bool, error) {
	var resp BoolResponse
	if err := h.invokeWithin(ctx, timeout, method, &RecordRequest{Record: rec}, &resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}

func (h *RemoteHandle) recordCall(ctx context.Context, timeout time.Duration, method string, rec node.Record) error {
	return h.invokeWithin(ctx, timeout, method, &RecordRequest{Record: rec}, &Empty{})
}

func (h *RemoteHandle) RequestReadOperation(ctx context.Context, rec node.Record) (bool, error) {
	return h.boolCall(ctx, h.timeouts.round(), MethodRequestReadOperation, rec)
}

func (h *RemoteHandle) RequestWriteOperation(ctx context.Context, rec node.Record) (bool, error) {
	return h.boolCall(ctx, h.timeouts.round(), MethodRequestWriteOperation, rec)
}

func (h *RemoteHandle) MulticastVotersDecision(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.round(), MethodMulticastVotersDecision, rec)
}

func (h *RemoteHandle) MajorityAcknowledged(ctx context.Context, rec node.Record) (bool, error) {
	return h.boolCall(ctx, h.timeouts.Call, MethodMajorityAcknowledged, rec)
}

func (h *RemoteHandle) AcquireLock(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.lock(), MethodAcquireLock, rec)
}

func (h *RemoteHandle) IncrementClock(ctx context.Context) error {
	return h.invoke(ctx, MethodIncrementClock, &Empty{}, &Empty{})
}

func (h *RemoteHandle) ReleaseLocks(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.Call, MethodReleaseLocks, rec)
}

func (h *RemoteHandle) MulticastUpdateOrReadReleaseLock(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.round(), MethodMulticastUpdate, rec)
}

func (h *RemoteHandle) PerformOperation(ctx context.Context, rec node.Record, set node.ActiveSet) (string, error) {
	var resp ContentResponse
	if err := h.invoke(ctx, MethodPerformOperation, &RoundRequest{Record: rec, Set: set}, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (h *RemoteHandle) Vote(ctx context.Context, rec node.Record) (bool, error) {
	return h.boolCall(ctx, h.timeouts.Call, MethodVote, rec)
}

func (h *RemoteHandle) OnVotersDecision(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.Call, MethodOnVotersDecision, rec)
}

func (h *RemoteHandle) OnUpdateOrReleaseLock(ctx context.Context, rec node.Record) error {
	return h.recordCall(ctx, h.timeouts.Call, MethodOnUpdateOrReleaseLock, rec)
}
