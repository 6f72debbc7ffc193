package coordinator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maxpert/ringfs/node"
)

func TestQuorumNotAchievedError(t *testing.T) {
	tests := []struct {
		name     string
		err      *QuorumNotAchievedError
		expected string
	}{
		{
			name: "write on three nodes",
			err: &QuorumNotAchievedError{
				Op:          node.OpWrite,
				Filename:    "doc.txt",
				ActiveNodes: 3,
				Required:    2,
				Coordinator: node.Peer{ID: 1, Address: "10.0.0.1:9400"},
			},
			expected: "write quorum not achieved for 'doc.txt': need 2 of 3 active nodes (coordinator 0000000000000001@10.0.0.1:9400)",
		},
		{
			name: "read on single node",
			err: &QuorumNotAchievedError{
				Op:          node.OpRead,
				Filename:    "a/b.bin",
				ActiveNodes: 1,
				Required:    1,
				Coordinator: node.Peer{ID: 255, Address: "n1:9400"},
			},
			expected: "read quorum not achieved for 'a/b.bin': need 1 of 1 active nodes (coordinator 00000000000000ff@n1:9400)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestQuorumNotAchievedError_MatchesSentinel(t *testing.T) {
	var err error = &QuorumNotAchievedError{Op: node.OpWrite, Filename: "doc.txt"}
	wrapped := fmt.Errorf("round failed: %w", err)

	if !errors.Is(wrapped, ErrQuorumNotReached) {
		t.Error("errors.Is(wrapped, ErrQuorumNotReached) = false, want true")
	}
	if errors.Is(wrapped, ErrCoordinatorUnreachable) {
		t.Error("quorum failure must not match ErrCoordinatorUnreachable")
	}

	var qe *QuorumNotAchievedError
	if !errors.As(wrapped, &qe) {
		t.Fatal("errors.As should extract *QuorumNotAchievedError")
	}
	if qe.Filename != "doc.txt" {
		t.Errorf("Filename = %q, want %q", qe.Filename, "doc.txt")
	}
}
