package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/ring"
	"github.com/maxpert/ringfs/store"
	"github.com/stretchr/testify/require"
)

// testRing is an in-process ring of Local nodes
type testRing struct {
	nodes    []*node.Local
	table    *ring.Table
	resolver *node.MemoryResolver
	lookup   *ring.Lookup
}

func newTestRing(t *testing.T, n int) *testRing {
	t.Helper()

	r := &testRing{resolver: node.NewMemoryResolver()}
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("10.0.0.%d:9400", i+1)
		p := node.Peer{ID: id.HashString(addr), Address: addr}
		l, err := node.NewLocal(p, store.NewMemoryStore(), hlc.NewClock(uint64(p.ID)), node.DefaultOptions())
		require.NoError(t, err)
		l.SetResolver(r.resolver)
		r.resolver.Register(l)
		r.nodes = append(r.nodes, l)

		if r.table == nil {
			r.table = ring.NewTable(p)
		} else {
			r.table.Add(ring.Member{ID: p.ID, Address: p.Address})
		}
	}
	r.lookup = ring.NewLookup(r.table, r.resolver)
	return r
}

func (r *testRing) owner(t *testing.T, rid id.ReplicaID) *node.Local {
	t.Helper()
	m, ok := r.table.Successor(rid)
	require.True(t, ok)
	for _, n := range r.nodes {
		if n.Peer().ID == m.ID {
			return n
		}
	}
	t.Fatalf("no node for member %s", m.ID)
	return nil
}

// stubHandle is a handle whose placement calls can be made to fail
type stubHandle struct {
	node.Handle
	peer         node.Peer
	addKeyErr    error
	materialized []id.ReplicaID
	metadata     map[id.ReplicaID]node.Record
	metadataErr  error
	mu           sync.Mutex
}

func (s *stubHandle) Peer() node.Peer { return s.peer }

func (s *stubHandle) AddReplicaKey(context.Context, id.ReplicaID) error { return s.addKeyErr }

func (s *stubHandle) MaterializeReplica(_ context.Context, rid id.ReplicaID, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materialized = append(s.materialized, rid)
	return nil
}

func (s *stubHandle) ReplicaMetadata(context.Context) (map[id.ReplicaID]node.Record, error) {
	return s.metadata, s.metadataErr
}

// stubFinder maps identifiers to handles; unmapped identifiers have no successor
type stubFinder struct {
	handles map[id.ReplicaID]node.Handle
	panics  bool
}

func (f *stubFinder) FindSuccessor(_ context.Context, key id.ReplicaID) (node.Handle, error) {
	if f.panics {
		panic("ring exploded")
	}
	h, ok := f.handles[key]
	if !ok {
		return nil, ring.ErrNoSuccessor
	}
	return h, nil
}

var errBoom = errors.New("boom")
