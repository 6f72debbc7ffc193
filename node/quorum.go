package node

import "math"

// QuorumSize returns the majority of n voters: floor(n/2) + 1
func QuorumSize(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Floor(float64(n)/2)) + 1
}

// IsQuorumAchieved reports whether acks is a majority of n voters. An empty
// voter set never reaches quorum.
func IsQuorumAchieved(acks, n int) bool {
	if n <= 0 {
		return false
	}
	return acks >= QuorumSize(n)
}
