package replica

import (
	"context"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/rs/zerolog/log"
)

// Resolver discovers the nodes currently holding live replicas of a file
type Resolver struct {
	finder Finder
	n      int
}

func NewResolver(finder Finder, n int) *Resolver {
	return &Resolver{finder: finder, n: n}
}

// DiscoverActiveNodes returns one record per node holding a replica of
// filename. Identifiers that cannot be resolved, or whose node has no
// metadata for them yet, contribute nothing.
func (r *Resolver) DiscoverActiveNodes(ctx context.Context, filename string) node.ActiveSet {
	var set node.ActiveSet

	for _, rid := range id.Derive(filename, r.n) {
		h, err := r.finder.FindSuccessor(ctx, rid)
		if err != nil {
			log.Debug().Err(err).Str("file", filename).Str("replica_id", rid.String()).Msg("Replica not resolvable")
			continue
		}

		// A node answering for several slots appears once
		if set.Contains(h.Peer().ID) {
			continue
		}

		meta, err := h.ReplicaMetadata(ctx)
		if err != nil {
			log.Debug().Err(err).Str("peer", h.Peer().String()).Msg("Failed to fetch replica metadata")
			continue
		}

		rec, ok := meta[rid]
		if !ok || rec.Filename != filename {
			continue
		}
		set.Add(rec)
	}

	telemetry.ActiveSetSize.Observe(float64(len(set)))
	return set
}
