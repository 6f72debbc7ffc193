package coordinator

import (
	"errors"
	"fmt"

	"github.com/maxpert/ringfs/node"
)

var (
	// ErrNoActiveNodes is returned when no node holds a live replica of the file
	ErrNoActiveNodes = errors.New("no active nodes for file")

	// ErrCoordinatorUnreachable is returned when the elected coordinator
	// cannot be resolved or stops answering mid-round
	ErrCoordinatorUnreachable = errors.New("coordinator unreachable")

	// ErrQuorumNotReached is matched by every *QuorumNotAchievedError
	ErrQuorumNotReached = errors.New("quorum not reached")
)

// QuorumNotAchievedError is the normal negative outcome of a round: the
// active set did not grant a majority
type QuorumNotAchievedError struct {
	Op          node.OpType
	Filename    string
	ActiveNodes int
	Required    int
	Coordinator node.Peer
}

func (e *QuorumNotAchievedError) Error() string {
	return fmt.Sprintf("%s quorum not achieved for '%s': need %d of %d active nodes (coordinator %s)",
		e.Op, e.Filename, e.Required, e.ActiveNodes, e.Coordinator)
}

func (e *QuorumNotAchievedError) Is(target error) bool {
	return target == ErrQuorumNotReached
}
