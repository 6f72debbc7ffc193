package grpc

import (
	"context"
	"fmt"

	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/ring"
)

// Registry resolves peers to handles: the local node for self, a gRPC
// handle for an ALIVE ring member, node.ErrNotBound for anything else.
type Registry struct {
	local    node.Handle
	table    *ring.Table
	client   *Client
	timeouts Timeouts
}

var _ node.Resolver = (*Registry)(nil)

func NewRegistry(local node.Handle, table *ring.Table, client *Client, timeouts Timeouts) *Registry {
	return &Registry{
		local:    local,
		table:    table,
		client:   client,
		timeouts: timeouts,
	}
}

func (r *Registry) Resolve(_ context.Context, peer node.Peer) (node.Handle, error) {
	if peer == r.local.Peer() {
		return r.local, nil
	}

	m, ok := r.table.Get(peer.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a ring member", node.ErrNotBound, peer)
	}
	if m.Status != ring.StatusAlive {
		return nil, fmt.Errorf("%w: %s is %s", node.ErrNotBound, peer, m.Status)
	}
	if m.Address != peer.Address {
		return nil, fmt.Errorf("%w: %s moved to %s", node.ErrNotBound, peer, m.Address)
	}

	conn, err := r.client.Conn(peer.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", node.ErrNotBound, err)
	}
	return NewRemoteHandle(peer, conn, r.timeouts), nil
}
