package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/rs/zerolog/log"
)

// Finder resolves a replica identifier to the node responsible for it
type Finder interface {
	FindSuccessor(ctx context.Context, key id.ReplicaID) (node.Handle, error)
}

// Placer owns the replica set of one file and pushes its replicas onto the
// ring. The set is swapped whole, so readers never see a partial update.
type Placer struct {
	self   node.Peer
	finder Finder
	n      int

	mu       sync.RWMutex
	filename string
	set      []id.ReplicaID
}

// NewPlacer creates a placer that maintains n replicas per file
func NewPlacer(self node.Peer, finder Finder, n int) *Placer {
	return &Placer{self: self, finder: finder, n: n}
}

// CreateReplicaFiles recomputes the replica set for filename. The previous
// set is replaced, not merged.
func (p *Placer) CreateReplicaFiles(filename string) []id.ReplicaID {
	set := id.Derive(filename, p.n)

	p.mu.Lock()
	p.filename = filename
	p.set = set
	p.mu.Unlock()

	out := make([]id.ReplicaID, len(set))
	copy(out, set)
	return out
}

// ReplicaSet returns the current filename and a copy of its identifiers
func (p *Placer) ReplicaSet() (string, []id.ReplicaID) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]id.ReplicaID, len(p.set))
	copy(out, p.set)
	return p.filename, out
}

// DistributeReplicas places each identifier of the current set on its
// successor. Identifiers without a successor are skipped until the next
// cycle. A failure on one identifier does not stop the others; failures are
// joined into the returned error alongside the number placed.
func (p *Placer) DistributeReplicas(ctx context.Context) (int, error) {
	filename, set := p.ReplicaSet()
	content := node.SeedContent(p.self)

	var errs []error
	placed := 0
	for _, rid := range set {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		h, err := p.finder.FindSuccessor(ctx, rid)
		if err != nil {
			telemetry.PlacementReplicasTotal.With("skipped").Inc()
			log.Debug().
				Err(err).
				Str("file", filename).
				Str("replica_id", rid.String()).
				Msg("No successor for replica, skipping this cycle")
			continue
		}

		if err := placeOn(ctx, h, rid, filename, content); err != nil {
			telemetry.PlacementReplicasTotal.With("failed").Inc()
			errs = append(errs, err)
			continue
		}

		telemetry.PlacementReplicasTotal.With("placed").Inc()
		placed++
	}

	return placed, errors.Join(errs...)
}

func placeOn(ctx context.Context, h node.Handle, rid id.ReplicaID, filename, content string) error {
	if err := h.AddReplicaKey(ctx, rid); err != nil {
		return fmt.Errorf("add key %s on %s: %w", rid, h.Peer(), err)
	}
	if err := h.MaterializeReplica(ctx, rid, filename, content); err != nil {
		return fmt.Errorf("materialize %s on %s: %w", rid, h.Peer(), err)
	}
	return nil
}
