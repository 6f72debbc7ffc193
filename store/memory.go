package store

import (
	"sort"

	"github.com/maxpert/ringfs/id"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps replicas in a concurrent map. Contents are lost on restart.
type MemoryStore struct {
	replicas *xsync.MapOf[id.ReplicaID, Replica]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		replicas: xsync.NewMapOf[id.ReplicaID, Replica](),
	}
}

func (s *MemoryStore) Get(rid id.ReplicaID) (*Replica, error) {
	r, ok := s.replicas.Load(rid)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) Put(r *Replica) error {
	s.replicas.Store(r.ID, *r)
	return nil
}

func (s *MemoryStore) Delete(rid id.ReplicaID) error {
	s.replicas.Delete(rid)
	return nil
}

// List returns all replicas ordered by identifier
func (s *MemoryStore) List() ([]*Replica, error) {
	out := make([]*Replica, 0, s.replicas.Size())
	s.replicas.Range(func(_ id.ReplicaID, r Replica) bool {
		out = append(out, &r)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
