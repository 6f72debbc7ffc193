package store

import (
	"errors"

	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
)

// ErrNotFound is returned when no replica exists for an identifier
var ErrNotFound = errors.New("replica not found")

// Replica is one materialized copy of a file, stored under its replica slot.
type Replica struct {
	ID       id.ReplicaID
	Filename string
	Content  string
	Version  hlc.Timestamp // Zero until the first quorum write lands
	Origin   string        // Address of the node that placed the replica
	OriginID id.ReplicaID
}

// Store persists the replicas held by the local node
type Store interface {
	Get(rid id.ReplicaID) (*Replica, error)
	Put(r *Replica) error
	Delete(rid id.ReplicaID) error
	List() ([]*Replica, error)
	Close() error
}

// ByFilename returns the replicas in s that belong to filename
func ByFilename(s Store, filename string) ([]*Replica, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	out := make([]*Replica, 0, len(all))
	for _, r := range all {
		if r.Filename == filename {
			out = append(out, r)
		}
	}
	return out, nil
}
