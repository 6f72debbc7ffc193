package hlc

import (
	"encoding/binary"
	"sync"
	"time"
)

// Clock implements a Hybrid Logical Clock. Each node owns one; it is ticked on
// local events (critical-section entry, replica writes) and merged with every
// timestamp received from a peer so causally later events compare greater.
type Clock struct {
	nodeID   uint64
	wallTime int64
	logical  int32
	mu       sync.Mutex
}

// Timestamp represents a point in time across the ring
type Timestamp struct {
	WallTime int64
	Logical  int32
	NodeID   uint64
}

// NewClock creates a new HLC instance
func NewClock(nodeID uint64) *Clock {
	return &Clock{
		nodeID:   nodeID,
		wallTime: time.Now().UnixNano(),
	}
}

// Now generates a new timestamp for a local event
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := time.Now().UnixNano()
	if physicalNow > c.wallTime {
		c.wallTime = physicalNow
		c.logical = 0
	} else {
		c.logical++
	}

	return c.stampLocked()
}

// Update merges a received timestamp into the clock and returns the new local time
func (c *Clock) Update(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := time.Now().UnixNano()

	switch {
	case physicalNow > c.wallTime && physicalNow > remote.WallTime:
		// Physical time advanced past both
		c.wallTime = physicalNow
		c.logical = 0
	case remote.WallTime > c.wallTime:
		c.wallTime = remote.WallTime
		c.logical = remote.Logical + 1
	case remote.WallTime == c.wallTime:
		if remote.Logical > c.logical {
			c.logical = remote.Logical
		}
		c.logical++
	default:
		// Local wall time is ahead
		c.logical++
	}

	return c.stampLocked()
}

// Last returns the most recently issued timestamp without advancing the clock
func (c *Clock) Last() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stampLocked()
}

func (c *Clock) stampLocked() Timestamp {
	return Timestamp{
		WallTime: c.wallTime,
		Logical:  c.logical,
		NodeID:   c.nodeID,
	}
}

// Compare compares two timestamps
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func Compare(a, b Timestamp) int {
	if a.WallTime < b.WallTime {
		return -1
	}
	if a.WallTime > b.WallTime {
		return 1
	}

	if a.Logical < b.Logical {
		return -1
	}
	if a.Logical > b.Logical {
		return 1
	}

	// Both wall and logical are equal, use node ID as tiebreaker
	if a.NodeID < b.NodeID {
		return -1
	}
	if a.NodeID > b.NodeID {
		return 1
	}

	return 0
}

// Less returns true if a happened before b
func Less(a, b Timestamp) bool {
	return Compare(a, b) < 0
}

// Equal returns true if timestamps are equal
func Equal(a, b Timestamp) bool {
	return Compare(a, b) == 0
}

// After returns true if a happened after b
func After(a, b Timestamp) bool {
	return Compare(a, b) > 0
}

// IsZero reports whether the timestamp was never set
func (t Timestamp) IsZero() bool {
	return t.WallTime == 0 && t.Logical == 0 && t.NodeID == 0
}

// PhysicalTime returns the physical time component as time.Time
func (t Timestamp) PhysicalTime() time.Time {
	return time.Unix(0, t.WallTime)
}

// String returns a human-readable representation
func (t Timestamp) String() string {
	return t.PhysicalTime().Format(time.RFC3339Nano)
}

// Bytes returns a fixed 20-byte big-endian encoding, ordered like Compare
// for timestamps from the same node.
func (t Timestamp) Bytes() []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.WallTime))
	binary.BigEndian.PutUint32(buf[8:12], uint32(t.Logical))
	binary.BigEndian.PutUint64(buf[12:20], t.NodeID)
	return buf
}
