package node

import (
	"context"
	"errors"

	"github.com/maxpert/ringfs/id"
)

// ErrNotBound is returned when a peer cannot be reached through the registry
var ErrNotBound = errors.New("node not bound")

// Handle is a reference to a ring participant. Handles are obtained per call
// from a Resolver or the ring and are not cached across protocol runs.
type Handle interface {
	Peer() Peer

	// Placement
	AddReplicaKey(ctx context.Context, rid id.ReplicaID) error
	MaterializeReplica(ctx context.Context, rid id.ReplicaID, filename, content string) error
	ReplicaMetadata(ctx context.Context) (map[id.ReplicaID]Record, error)

	// Coordinator side of a quorum round
	SetActiveNodes(ctx context.Context, rec Record, set ActiveSet) error
	RequestReadOperation(ctx context.Context, rec Record) (bool, error)
	RequestWriteOperation(ctx context.Context, rec Record) (bool, error)
	MulticastVotersDecision(ctx context.Context, rec Record) error
	MajorityAcknowledged(ctx context.Context, rec Record) (bool, error)
	AcquireLock(ctx context.Context, rec Record) error
	IncrementClock(ctx context.Context) error
	ReleaseLocks(ctx context.Context, rec Record) error
	MulticastUpdateOrReadReleaseLock(ctx context.Context, rec Record) error
	PerformOperation(ctx context.Context, rec Record, set ActiveSet) (string, error)

	// Peer side of a quorum round
	Vote(ctx context.Context, rec Record) (bool, error)
	OnVotersDecision(ctx context.Context, rec Record) error
	OnUpdateOrReleaseLock(ctx context.Context, rec Record) error
}

// Resolver turns a peer identity into a live handle. Connectivity failures
// and unknown peers are both reported as errors wrapping ErrNotBound.
type Resolver interface {
	Resolve(ctx context.Context, peer Peer) (Handle, error)
}
