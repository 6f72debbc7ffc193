package id

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ReplicaID is a position in the ring's 64-bit identifier space. Replica
// slots of a file and ring members share this space.
type ReplicaID uint64

// Hash maps arbitrary bytes onto the identifier space
func Hash(data []byte) ReplicaID {
	return ReplicaID(xxhash.Sum64(data))
}

// HashString is Hash for strings without the []byte conversion
func HashString(s string) ReplicaID {
	return ReplicaID(xxhash.Sum64String(s))
}

// Derive returns the n replica identifiers of filename. Element i is the hash
// of filename followed by the decimal string of i, so any node computes the
// same sequence.
func Derive(filename string, n int) []ReplicaID {
	if n <= 0 {
		return nil
	}

	ids := make([]ReplicaID, n)
	for i := 0; i < n; i++ {
		ids[i] = HashString(filename + strconv.Itoa(i))
	}
	return ids
}

// String renders the identifier as fixed-width hex
func (r ReplicaID) String() string {
	return fmt.Sprintf("%016x", uint64(r))
}

// Parse accepts the hex form produced by String, or a decimal number
func Parse(s string) (ReplicaID, error) {
	if v, err := strconv.ParseUint(s, 16, 64); err == nil && len(s) == 16 {
		return ReplicaID(v), nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	return ReplicaID(v), nil
}
