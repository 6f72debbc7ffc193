package ring

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
)

// ErrNoSuccessor is returned when the ring cannot resolve a key to a live node
var ErrNoSuccessor = errors.New("no successor for key")

// Lookup answers findSuccessor over a membership table, resolving the
// responsible member to a live handle
type Lookup struct {
	table    *Table
	resolver node.Resolver
}

func NewLookup(table *Table, resolver node.Resolver) *Lookup {
	return &Lookup{table: table, resolver: resolver}
}

// FindSuccessor returns the handle of the node responsible for key
func (l *Lookup) FindSuccessor(ctx context.Context, key id.ReplicaID) (node.Handle, error) {
	m, ok := l.table.Successor(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuccessor, key)
	}

	h, err := l.resolver.Resolve(ctx, m.Peer())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoSuccessor, key, err)
	}
	return h, nil
}
