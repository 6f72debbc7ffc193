package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/ringfs/encoding"
	"github.com/maxpert/ringfs/id"
	"github.com/rs/zerolog/log"
)

// Key layout: /replica/{id:016x}
const pebblePrefixReplica = "/replica/"

// PebbleStore persists replicas in a Pebble LSM under the node's data dir
type PebbleStore struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

var _ Store = (*PebbleStore)(nil)

// pebbleLogger wraps zerolog for Pebble
type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debug().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Error().Msgf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatal().Msgf("[pebble] "+format, args...)
}

// NewPebbleStore opens (or creates) a replica store at path
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Logger: &pebbleLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	log.Debug().Str("path", path).Msg("Opened replica store")
	return &PebbleStore{db: db, path: path}, nil
}

func replicaKey(rid id.ReplicaID) []byte {
	return []byte(pebblePrefixReplica + rid.String())
}

func (s *PebbleStore) Get(rid id.ReplicaID) (*Replica, error) {
	val, closer, err := s.db.Get(replicaKey(rid))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read replica %s: %w", rid, err)
	}
	defer closer.Close()

	var r Replica
	if err := encoding.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("failed to decode replica %s: %w", rid, err)
	}
	return &r, nil
}

func (s *PebbleStore) Put(r *Replica) error {
	data, err := encoding.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode replica %s: %w", r.ID, err)
	}
	if err := s.db.Set(replicaKey(r.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to write replica %s: %w", r.ID, err)
	}
	return nil
}

func (s *PebbleStore) Delete(rid id.ReplicaID) error {
	if err := s.db.Delete(replicaKey(rid), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete replica %s: %w", rid, err)
	}
	return nil
}

// List returns all replicas ordered by identifier. Undecodable entries are
// skipped and logged.
func (s *PebbleStore) List() ([]*Replica, error) {
	prefix := []byte(pebblePrefixReplica)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*Replica
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var r Replica
		if err := encoding.Unmarshal(val, &r); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Skipping undecodable replica")
			continue
		}
		out = append(out, &r)
	}
	return out, iter.Error()
}

// Close flushes and closes the store; repeated calls are no-ops
func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// prefixUpperBound returns the exclusive upper bound for keys under prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
