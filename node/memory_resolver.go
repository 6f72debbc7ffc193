package node

import (
	"context"
	"fmt"

	"github.com/maxpert/ringfs/id"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryResolver resolves peers to in-process handles. It backs single
// process clusters and tests.
type MemoryResolver struct {
	handles *xsync.MapOf[id.ReplicaID, Handle]
}

var _ Resolver = (*MemoryResolver)(nil)

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{handles: xsync.NewMapOf[id.ReplicaID, Handle]()}
}

// Register makes h reachable under its peer identity
func (r *MemoryResolver) Register(h Handle) {
	r.handles.Store(h.Peer().ID, h)
}

// Unregister makes the node unreachable, as if it went down
func (r *MemoryResolver) Unregister(nodeID id.ReplicaID) {
	r.handles.Delete(nodeID)
}

func (r *MemoryResolver) Resolve(_ context.Context, peer Peer) (Handle, error) {
	h, ok := r.handles.Load(peer.ID)
	if !ok || h.Peer().Address != peer.Address {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, peer)
	}
	return h, nil
}
