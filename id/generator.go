package id

import (
	"github.com/cespare/xxhash/v2"
	"github.com/maxpert/ringfs/hlc"
)

// Generator provides unique IDs for quorum rounds. Locks and vote promises are
// keyed by these, so two coordinators must never produce the same value.
type Generator interface {
	NextID() uint64
}

// HLCGenerator derives IDs from the Hybrid Logical Clock. Timestamps are
// unique per node and carry the full 64-bit node ID, so hashing them yields
// IDs that are unique across the ring with overwhelming probability.
type HLCGenerator struct {
	clock *hlc.Clock
}

// NewHLCGenerator creates a new ID generator backed by the given HLC.
func NewHLCGenerator(clock *hlc.Clock) *HLCGenerator {
	return &HLCGenerator{clock: clock}
}

// NextID generates a unique, non-zero 64-bit ID.
func (g *HLCGenerator) NextID() uint64 {
	for {
		if v := xxhash.Sum64(g.clock.Now().Bytes()); v != 0 {
			return v
		}
	}
}
