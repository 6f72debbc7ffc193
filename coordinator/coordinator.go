package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/rs/zerolog/log"
)

// Discoverer finds the nodes currently holding live replicas of a file
type Discoverer interface {
	DiscoverActiveNodes(ctx context.Context, filename string) node.ActiveSet
}

// Outcome describes one completed or aborted round
type Outcome struct {
	Filename    string
	Op          node.OpType
	RequestID   uint64
	Coordinator node.Peer
	ActiveNodes int
	Majority    bool
	Content     string // READ result
}

// Coordinator drives quorum reads and writes. It elects a coordinator from
// the file's active set and sequences the round through that node's handle;
// vote collection, locking and the operation itself run on the elected node.
type Coordinator struct {
	discoverer     Discoverer
	resolver       node.Resolver
	ids            id.Generator
	releaseTimeout time.Duration
}

// NewCoordinator creates a coordinator. releaseTimeout bounds the release
// step, which runs even after the caller's context is cancelled.
func NewCoordinator(discoverer Discoverer, resolver node.Resolver, ids id.Generator, releaseTimeout time.Duration) *Coordinator {
	return &Coordinator{
		discoverer:     discoverer,
		resolver:       resolver,
		ids:            ids,
		releaseTimeout: releaseTimeout,
	}
}

// Read returns the content of filename once a majority of its active
// replicas agrees to the read
func (c *Coordinator) Read(ctx context.Context, filename string) (string, error) {
	out, err := c.Run(ctx, filename, node.OpRead, "")
	return out.Content, err
}

// Write replaces the content of filename once a majority of its active
// replicas agrees to the write
func (c *Coordinator) Write(ctx context.Context, filename, content string) error {
	_, err := c.Run(ctx, filename, node.OpWrite, content)
	return err
}

// ExecuteOperation runs one round and reports whether it completed with a
// majority. Every failure, including no quorum, is reported as false.
func (c *Coordinator) ExecuteOperation(ctx context.Context, filename string, op node.OpType, content string) bool {
	_, err := c.Run(ctx, filename, op, content)
	return err == nil
}

// Run executes one quorum round for op on filename. Once the elected
// coordinator has been resolved, the release step runs exactly once on every
// return path.
func (c *Coordinator) Run(ctx context.Context, filename string, op node.OpType, content string) (Outcome, error) {
	out := Outcome{Filename: filename, Op: op}
	if op != node.OpRead && op != node.OpWrite {
		return out, fmt.Errorf("unsupported operation: %s", op)
	}
	metrics := NewOpMetrics(op.String())

	set := c.discoverer.DiscoverActiveNodes(ctx, filename)
	out.ActiveNodes = len(set)

	rec, ok := set.Coordinator()
	if !ok {
		return out, metrics.RecordFailure("no_active_nodes", fmt.Errorf("%w: %s", ErrNoActiveNodes, filename))
	}
	out.Coordinator = rec.Peer()

	h, err := c.resolver.Resolve(ctx, rec.Peer())
	if err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}

	rec.RequestID = c.ids.NextID()
	rec.Op = op
	out.RequestID = rec.RequestID

	log.Debug().
		Uint64("request_id", rec.RequestID).
		Str("file", filename).
		Str("op", op.String()).
		Str("coordinator", rec.Peer().String()).
		Int("active_nodes", len(set)).
		Msg("Quorum round started")

	defer c.release(ctx, h, rec)

	if err := h.SetActiveNodes(ctx, rec, set); err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}

	var ack bool
	if op == node.OpRead {
		ack, err = h.RequestReadOperation(ctx, rec)
	} else {
		ack, err = h.RequestWriteOperation(ctx, rec)
	}
	if err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}
	rec.Acknowledged = ack

	if err := h.MulticastVotersDecision(ctx, rec); err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}

	majority, err := h.MajorityAcknowledged(ctx, rec)
	if err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}
	out.Majority = majority

	if !majority {
		return out, metrics.RecordFailure("no_quorum", &QuorumNotAchievedError{
			Op:          op,
			Filename:    filename,
			ActiveNodes: len(set),
			Required:    node.QuorumSize(len(set)),
			Coordinator: rec.Peer(),
		})
	}

	if op == node.OpWrite {
		set.StampContent(content)
		rec.NewContent = content
	}

	if err := h.AcquireLock(ctx, rec); err != nil {
		return out, metrics.RecordFailure("failed", fmt.Errorf("acquire lock on %s: %w", rec.Peer(), err))
	}
	if err := h.IncrementClock(ctx); err != nil {
		return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
	}

	result, err := h.PerformOperation(ctx, rec, set)
	if err != nil {
		return out, metrics.RecordFailure("failed", fmt.Errorf("%s '%s' on %s: %w", op, filename, rec.Peer(), err))
	}

	if op == node.OpWrite {
		if err := h.MulticastUpdateOrReadReleaseLock(ctx, rec); err != nil {
			return out, metrics.RecordFailure("no_coordinator", unreachable(rec.Peer(), err))
		}
	} else {
		out.Content = result
	}

	log.Debug().
		Uint64("request_id", rec.RequestID).
		Str("file", filename).
		Str("op", op.String()).
		Msg("Quorum round committed")

	return out, metrics.RecordSuccess()
}

// release tells the active set to let go of the request and frees the
// coordinator's locks. It is detached from the caller's cancellation.
func (c *Coordinator) release(ctx context.Context, h node.Handle, rec node.Record) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
	defer cancel()

	if err := h.MulticastUpdateOrReadReleaseLock(ctx, rec); err != nil {
		log.Warn().
			Err(err).
			Uint64("request_id", rec.RequestID).
			Str("file", rec.Filename).
			Msg("Failed to multicast release")
	}

	if err := h.ReleaseLocks(ctx, rec); err != nil {
		log.Warn().
			Err(err).
			Uint64("request_id", rec.RequestID).
			Str("file", rec.Filename).
			Msg("Failed to release coordinator locks")
	}
}

func unreachable(p node.Peer, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCoordinatorUnreachable, p, err)
}
