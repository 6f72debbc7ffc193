package node

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
)

// Peer identifies a ring participant by its ring position and advertise address
type Peer struct {
	ID      id.ReplicaID
	Address string
}

func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Address)
}

// OpType is the kind of quorum operation a record belongs to
type OpType uint8

const (
	OpNone OpType = iota
	OpRead
	OpWrite
)

func (o OpType) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "none"
	}
}

// Record describes one replica-holding node for one operation instance.
// Records are created per request and never shared across requests.
type Record struct {
	RequestID    uint64
	Filename     string
	ReplicaID    id.ReplicaID
	NodeID       id.ReplicaID
	NodeIP       string
	Op           OpType
	Acknowledged bool
	NewContent   string
	Clock        hlc.Timestamp
	Apply        bool // Set by the coordinator once NewContent has been committed locally
}

// Peer returns the node the record describes
func (r Record) Peer() Peer {
	return Peer{ID: r.NodeID, Address: r.NodeIP}
}

// ActiveSet holds at most one record per node, ordered by node ID
type ActiveSet []Record

// Add inserts rec unless a record for the same node is already present.
// Returns false when rec was a duplicate.
func (s *ActiveSet) Add(rec Record) bool {
	set := *s
	i := sort.Search(len(set), func(i int) bool { return set[i].NodeID >= rec.NodeID })
	if i < len(set) && set[i].NodeID == rec.NodeID {
		return false
	}

	set = append(set, Record{})
	copy(set[i+1:], set[i:])
	set[i] = rec
	*s = set
	return true
}

// Contains reports whether nodeID has a record in the set
func (s ActiveSet) Contains(nodeID id.ReplicaID) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].NodeID >= nodeID })
	return i < len(s) && s[i].NodeID == nodeID
}

// Coordinator returns the record with the smallest node ID. The same set
// always elects the same coordinator.
func (s ActiveSet) Coordinator() (Record, bool) {
	if len(s) == 0 {
		return Record{}, false
	}
	return s[0], true
}

// StampContent sets the write payload on every record
func (s ActiveSet) StampContent(content string) {
	for i := range s {
		s[i].NewContent = content
	}
}

// Peers returns the nodes in the set in node ID order
func (s ActiveSet) Peers() []Peer {
	out := make([]Peer, len(s))
	for i, r := range s {
		out[i] = r.Peer()
	}
	return out
}

// Clone returns an independent copy of the set
func (s ActiveSet) Clone() ActiveSet {
	if s == nil {
		return nil
	}
	out := make(ActiveSet, len(s))
	copy(out, s)
	return out
}

// SeedContent is the initial content a placer writes into a new replica
func SeedContent(p Peer) string {
	return p.Address + "\n" + p.ID.String()
}

// ParseSeed recovers the placing node from seed content
func ParseSeed(content string) (Peer, bool) {
	addr, rest, ok := strings.Cut(content, "\n")
	if !ok || addr == "" {
		return Peer{}, false
	}
	rid, err := id.Parse(rest)
	if err != nil {
		return Peer{}, false
	}
	return Peer{ID: rid, Address: addr}, true
}
