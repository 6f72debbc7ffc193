package ring

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/rs/zerolog/log"
)

// Status is a member's liveness as seen by this node
type Status int

const (
	StatusAlive Status = iota
	StatusDead
)

func (s Status) String() string {
	if s == StatusAlive {
		return "ALIVE"
	}
	return "DEAD"
}

// Member is one node on the ring, positioned at ID
type Member struct {
	ID      id.ReplicaID
	Address string
	Status  Status
}

func (m Member) Peer() node.Peer {
	return node.Peer{ID: m.ID, Address: m.Address}
}

// ParseMember reads a peer entry from configuration. The entry is either an
// advertise address, positioned at the hash of the address, or "id@address"
// with an explicit ring position.
func ParseMember(entry string) (Member, error) {
	entry = strings.TrimSpace(entry)
	if rawID, addr, ok := strings.Cut(entry, "@"); ok {
		if addr == "" {
			return Member{}, fmt.Errorf("peer %q has no address", entry)
		}
		rid, err := id.Parse(rawID)
		if err != nil {
			return Member{}, fmt.Errorf("peer %q: %w", entry, err)
		}
		return Member{ID: rid, Address: addr, Status: StatusAlive}, nil
	}

	if entry == "" {
		return Member{}, fmt.Errorf("empty peer entry")
	}
	return Member{ID: id.HashString(entry), Address: entry, Status: StatusAlive}, nil
}

// Table is this node's view of ring membership, ordered by ring position
type Table struct {
	mu      sync.RWMutex
	selfID  id.ReplicaID
	members []Member
}

// NewTable creates a ring containing only self
func NewTable(self node.Peer) *Table {
	return &Table{
		selfID:  self.ID,
		members: []Member{{ID: self.ID, Address: self.Address, Status: StatusAlive}},
	}
}

func (t *Table) indexLocked(rid id.ReplicaID) int {
	return sort.Search(len(t.members), func(i int) bool { return t.members[i].ID >= rid })
}

// Add inserts m or replaces the member at the same position
func (t *Table) Add(m Member) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(m.ID)
	if i < len(t.members) && t.members[i].ID == m.ID {
		t.members[i] = m
		return
	}

	t.members = append(t.members, Member{})
	copy(t.members[i+1:], t.members[i:])
	t.members[i] = m

	log.Info().
		Str("member", m.ID.String()).
		Str("address", m.Address).
		Int("members", len(t.members)).
		Msg("Ring member added")
}

// Remove drops a member. The local node cannot be removed.
func (t *Table) Remove(rid id.ReplicaID) bool {
	if rid == t.selfID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(rid)
	if i >= len(t.members) || t.members[i].ID != rid {
		return false
	}
	t.members = append(t.members[:i], t.members[i+1:]...)

	log.Info().Str("member", rid.String()).Msg("Ring member removed")
	return true
}

// MarkDead excludes a member from successor lookups without forgetting it
func (t *Table) MarkDead(rid id.ReplicaID) bool {
	if rid == t.selfID {
		return false
	}
	return t.setStatus(rid, StatusDead)
}

func (t *Table) MarkAlive(rid id.ReplicaID) bool {
	return t.setStatus(rid, StatusAlive)
}

func (t *Table) setStatus(rid id.ReplicaID, status Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(rid)
	if i >= len(t.members) || t.members[i].ID != rid {
		return false
	}
	if t.members[i].Status != status {
		log.Info().
			Str("member", rid.String()).
			Str("from", t.members[i].Status.String()).
			Str("to", status.String()).
			Msg("Ring member state transition")
		t.members[i].Status = status
	}
	return true
}

func (t *Table) Get(rid id.ReplicaID) (Member, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := t.indexLocked(rid)
	if i >= len(t.members) || t.members[i].ID != rid {
		return Member{}, false
	}
	return t.members[i], true
}

// Members returns a copy of the membership in ring order
func (t *Table) Members() []Member {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Member, len(t.members))
	copy(out, t.members)
	return out
}

// Successor returns the first ALIVE member at or after key, wrapping around
// the ring. Reports false when no member is alive.
func (t *Table) Successor(key id.ReplicaID) (Member, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.members)
	start := t.indexLocked(key)
	for i := 0; i < n; i++ {
		m := t.members[(start+i)%n]
		if m.Status == StatusAlive {
			return m, true
		}
	}
	return Member{}, false
}

// MemberCounts returns member counts keyed by status
func (t *Table) MemberCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := map[string]int{
		StatusAlive.String(): 0,
		StatusDead.String():  0,
	}
	for _, m := range t.members {
		counts[m.Status.String()]++
	}
	return counts
}
