package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/store"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownRound is returned when a round call names a request that was
	// never announced with SetActiveNodes or has already been released
	ErrUnknownRound = errors.New("unknown quorum round")

	// ErrNoLocalReplica is returned when the node holds no replica of a file
	ErrNoLocalReplica = errors.New("no local replica")
)

// Options tunes the node side of the quorum protocol
type Options struct {
	VoteLease       time.Duration // How long a granted vote blocks conflicting requests
	LockLease       time.Duration // Coordinator critical-section lease
	LockWaitTimeout time.Duration // Max wait in AcquireLock
	PeerTimeout     time.Duration // Bound on each peer call of a fan-out
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		VoteLease:       10 * time.Second,
		LockLease:       30 * time.Second,
		LockWaitTimeout: 5 * time.Second,
		PeerTimeout:     2 * time.Second,
	}
}

// round is the coordinator's state for one request
type round struct {
	mu       sync.Mutex
	filename string
	set      ActiveSet
	op       OpType
	acks     int
	granted  bool
	decided  bool
	decision bool
	written  bool
	version  hlc.Timestamp
	content  string
	created  time.Time
}

// Local is the handle for the node running in this process. It serves the
// placement calls, votes as a replica holder, and coordinates rounds when
// elected.
type Local struct {
	self  Peer
	store store.Store
	clock *hlc.Clock
	opts  Options

	locks    *LockManager
	votes    *voteTable
	keys     *xsync.MapOf[id.ReplicaID, struct{}]
	metadata *xsync.MapOf[id.ReplicaID, Record]
	rounds   *xsync.MapOf[uint64, *round]
	writes   *xsync.MapOf[string, *sync.Mutex] // Serializes replica writes per file

	mu       sync.RWMutex
	resolver Resolver
	notifier ChangeNotifier
}

// ChangeNotifier is told about every committed change to a local replica
type ChangeNotifier interface {
	Signal(filename string, version hlc.Timestamp)
}

var _ Handle = (*Local)(nil)
var _ telemetry.StatsProvider = (*Local)(nil)

// NewLocal creates the local node and rebuilds its key set and replica
// metadata from st
func NewLocal(self Peer, st store.Store, clock *hlc.Clock, opts Options) (*Local, error) {
	l := &Local{
		self:     self,
		store:    st,
		clock:    clock,
		opts:     opts,
		locks:    NewLockManager(opts.LockLease),
		votes:    newVoteTable(opts.VoteLease),
		keys:     xsync.NewMapOf[id.ReplicaID, struct{}](),
		metadata: xsync.NewMapOf[id.ReplicaID, Record](),
		rounds:   xsync.NewMapOf[uint64, *round](),
		writes:   xsync.NewMapOf[string, *sync.Mutex](),
	}

	replicas, err := st.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load local replicas: %w", err)
	}
	for _, r := range replicas {
		l.keys.Store(r.ID, struct{}{})
		l.metadata.Store(r.ID, l.recordFor(r.ID, r.Filename))
	}

	log.Info().
		Str("node", self.String()).
		Int("replicas", len(replicas)).
		Msg("Local node ready")

	return l, nil
}

// SetResolver sets how this node reaches its peers. Until set, only the
// local node itself is reachable.
func (l *Local) SetResolver(r Resolver) {
	l.mu.Lock()
	l.resolver = r
	l.mu.Unlock()
}

// SetNotifier registers the receiver of local replica changes
func (l *Local) SetNotifier(n ChangeNotifier) {
	l.mu.Lock()
	l.notifier = n
	l.mu.Unlock()
}

func (l *Local) notifyChange(filename string, version hlc.Timestamp) {
	l.mu.RLock()
	n := l.notifier
	l.mu.RUnlock()
	if n != nil {
		n.Signal(filename, version)
	}
}

func (l *Local) Peer() Peer {
	return l.self
}

// Clock returns the node's hybrid logical clock
func (l *Local) Clock() *hlc.Clock {
	return l.clock
}

// Replicas returns every replica materialized on this node
func (l *Local) Replicas() ([]*store.Replica, error) {
	return l.store.List()
}

// HasKey reports whether rid was registered on this node
func (l *Local) HasKey(rid id.ReplicaID) bool {
	_, ok := l.keys.Load(rid)
	return ok
}

func (l *Local) resolve(ctx context.Context, p Peer) (Handle, error) {
	if p.ID == l.self.ID && p.Address == l.self.Address {
		return l, nil
	}

	l.mu.RLock()
	r := l.resolver
	l.mu.RUnlock()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, p)
	}
	return r.Resolve(ctx, p)
}

func (l *Local) recordFor(rid id.ReplicaID, filename string) Record {
	return Record{
		Filename:  filename,
		ReplicaID: rid,
		NodeID:    l.self.ID,
		NodeIP:    l.self.Address,
	}
}

// others returns the members of set other than this node
func (l *Local) others(set ActiveSet) []Peer {
	out := make([]Peer, 0, len(set))
	for _, r := range set {
		if r.NodeID != l.self.ID {
			out = append(out, r.Peer())
		}
	}
	return out
}

func (l *Local) AddReplicaKey(_ context.Context, rid id.ReplicaID) error {
	l.keys.Store(rid, struct{}{})
	return nil
}

// MaterializeReplica creates the local copy for rid if it does not exist yet.
// Existing replicas keep their content. Storage failures are logged and not
// returned to the placer.
func (l *Local) MaterializeReplica(_ context.Context, rid id.ReplicaID, filename, content string) error {
	unlock := l.lockWrites(filename)
	defer unlock()

	existing, err := l.store.Get(rid)
	switch {
	case err == nil:
		if existing.Filename != filename {
			log.Warn().
				Str("replica_id", rid.String()).
				Str("file", filename).
				Str("existing_file", existing.Filename).
				Msg("Replica slot already holds another file")
			return nil
		}
		l.keys.Store(rid, struct{}{})
		l.metadata.Store(rid, l.recordFor(rid, filename))
		return nil
	case !errors.Is(err, store.ErrNotFound):
		log.Warn().Err(err).Str("replica_id", rid.String()).Msg("Failed to read local replica")
		return nil
	}

	r := &store.Replica{ID: rid, Filename: filename, Content: content}
	if origin, ok := ParseSeed(content); ok {
		r.Origin = origin.Address
		r.OriginID = origin.ID
	}
	if err := l.store.Put(r); err != nil {
		log.Warn().Err(err).Str("replica_id", rid.String()).Str("file", filename).Msg("Failed to materialize replica")
		return nil
	}

	l.keys.Store(rid, struct{}{})
	l.metadata.Store(rid, l.recordFor(rid, filename))

	log.Debug().
		Str("replica_id", rid.String()).
		Str("file", filename).
		Msg("Materialized replica")
	return nil
}

func (l *Local) ReplicaMetadata(_ context.Context) (map[id.ReplicaID]Record, error) {
	out := make(map[id.ReplicaID]Record, l.metadata.Size())
	l.metadata.Range(func(rid id.ReplicaID, rec Record) bool {
		out[rid] = rec
		return true
	})
	return out, nil
}

// SetActiveNodes opens a round for rec.RequestID with this node as coordinator
func (l *Local) SetActiveNodes(_ context.Context, rec Record, set ActiveSet) error {
	l.sweepRounds()
	l.rounds.Store(rec.RequestID, &round{
		filename: rec.Filename,
		set:      set.Clone(),
		op:       rec.Op,
		created:  time.Now(),
	})
	return nil
}

// sweepRounds forgets rounds whose coordinator never released them
func (l *Local) sweepRounds() {
	ttl := l.opts.LockLease + l.opts.VoteLease
	l.rounds.Range(func(requestID uint64, rd *round) bool {
		if time.Since(rd.created) > ttl {
			l.rounds.Delete(requestID)
			log.Warn().
				Uint64("request_id", requestID).
				Str("file", rd.filename).
				Msg("Dropping abandoned quorum round")
		}
		return true
	})
}

func (l *Local) RequestReadOperation(ctx context.Context, rec Record) (bool, error) {
	return l.requestOperation(ctx, rec, OpRead)
}

func (l *Local) RequestWriteOperation(ctx context.Context, rec Record) (bool, error) {
	return l.requestOperation(ctx, rec, OpWrite)
}

// requestOperation polls every member of the round's active set, this node
// included, and reports whether a majority granted its vote
func (l *Local) requestOperation(ctx context.Context, rec Record, op OpType) (bool, error) {
	rd, ok := l.rounds.Load(rec.RequestID)
	if !ok {
		return false, fmt.Errorf("%w: request %d", ErrUnknownRound, rec.RequestID)
	}

	rec.Op = op
	rec.Clock = l.clock.Now()

	rd.mu.Lock()
	rd.op = op
	peers := rd.set.Peers()
	rd.mu.Unlock()

	replies := fanOut(ctx, l.opts.PeerTimeout, l.resolve, peers, func(ctx context.Context, h Handle) (bool, error) {
		return h.Vote(ctx, rec)
	})

	acks := 0
	for _, r := range replies {
		if r.err != nil {
			log.Debug().Err(r.err).Str("peer", r.peer.String()).Msg("Vote request failed")
			continue
		}
		if r.val {
			acks++
		}
	}
	granted := IsQuorumAchieved(acks, len(peers))

	rd.mu.Lock()
	rd.acks = acks
	rd.granted = granted
	rd.mu.Unlock()

	telemetry.QuorumAcks.With(op.String()).Observe(float64(acks))
	log.Debug().
		Uint64("request_id", rec.RequestID).
		Str("file", rec.Filename).
		Str("op", op.String()).
		Int("acks", acks).
		Int("voters", len(peers)).
		Bool("granted", granted).
		Msg("Votes collected")

	return granted, nil
}

// Vote grants or denies this node's promise for rec
func (l *Local) Vote(_ context.Context, rec Record) (bool, error) {
	l.clock.Update(rec.Clock)

	granted := l.votes.grant(rec.Filename, rec.RequestID, rec.Op)
	result := "denied"
	if granted {
		result = "granted"
	}
	telemetry.VotesTotal.With(rec.Op.String(), result).Inc()
	return granted, nil
}

// MulticastVotersDecision fixes the round's decision and tells the other
// members. A negative decision frees every member's promise.
func (l *Local) MulticastVotersDecision(ctx context.Context, rec Record) error {
	rd, ok := l.rounds.Load(rec.RequestID)
	if !ok {
		return fmt.Errorf("%w: request %d", ErrUnknownRound, rec.RequestID)
	}

	rd.mu.Lock()
	rd.decided = true
	rd.decision = rd.granted && rec.Acknowledged
	rec.Acknowledged = rd.decision
	rec.Op = rd.op
	peers := l.others(rd.set)
	rd.mu.Unlock()

	if !rec.Acknowledged {
		l.votes.drop(rec.Filename, rec.RequestID)
	}

	replies := fanOut(ctx, l.opts.PeerTimeout, l.resolve, peers, func(ctx context.Context, h Handle) (struct{}, error) {
		return struct{}{}, h.OnVotersDecision(ctx, rec)
	})
	logFailures(replies, rec, "Failed to deliver voters decision")
	return nil
}

func (l *Local) OnVotersDecision(_ context.Context, rec Record) error {
	l.clock.Update(rec.Clock)
	if !rec.Acknowledged {
		l.votes.drop(rec.Filename, rec.RequestID)
	}
	return nil
}

func (l *Local) MajorityAcknowledged(_ context.Context, rec Record) (bool, error) {
	rd, ok := l.rounds.Load(rec.RequestID)
	if !ok {
		return false, nil
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.decided && rd.decision, nil
}

// AcquireLock takes the file lock for rec's request, waiting up to
// LockWaitTimeout. A zero wait fails fast with *LockHeldError.
func (l *Local) AcquireLock(ctx context.Context, rec Record) error {
	if l.opts.LockWaitTimeout <= 0 {
		_, err := l.locks.TryAcquire(rec.Filename, rec.RequestID, l.self.ID, l.clock.Now())
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.LockWaitTimeout)
	defer cancel()

	_, err := l.locks.Acquire(ctx, rec.Filename, rec.RequestID, l.self.ID, l.clock.Now())
	return err
}

// StartJanitor sweeps expired file locks every interval until ctx is done,
// waking requests queued behind a coordinator that never released
func (l *Local) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := l.locks.CleanupExpiredLocks(); n > 0 {
					log.Info().Int("locks", n).Msg("Swept expired file locks")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (l *Local) IncrementClock(_ context.Context) error {
	l.clock.Now()
	return nil
}

// ReleaseLocks drops everything rec's request holds on this node. Calling it
// for a request that holds nothing is a no-op.
func (l *Local) ReleaseLocks(_ context.Context, rec Record) error {
	if l.locks.Holds(rec.Filename, rec.RequestID) {
		if err := l.locks.Release(rec.Filename, rec.RequestID); err != nil {
			return err
		}
	}
	l.votes.drop(rec.Filename, rec.RequestID)
	l.rounds.Delete(rec.RequestID)
	return nil
}

// PerformOperation runs the critical section on the coordinator's replicas.
// READ returns the newest local content; WRITE stores rec.NewContent on every
// local replica of the file under a fresh version.
func (l *Local) PerformOperation(_ context.Context, rec Record, set ActiveSet) (string, error) {
	if !l.locks.Holds(rec.Filename, rec.RequestID) {
		return "", fmt.Errorf("%w: file '%s' request %d", ErrLockNotHeld, rec.Filename, rec.RequestID)
	}
	if rec.Op == OpWrite {
		unlock := l.lockWrites(rec.Filename)
		defer unlock()
	}

	replicas, err := store.ByFilename(l.store, rec.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to list replicas of '%s': %w", rec.Filename, err)
	}
	if len(replicas) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoLocalReplica, rec.Filename)
	}

	switch rec.Op {
	case OpRead:
		return newest(replicas).Content, nil

	case OpWrite:
		version := l.clock.Now()
		for _, r := range replicas {
			r.Content = rec.NewContent
			r.Version = version
			if err := l.store.Put(r); err != nil {
				return "", fmt.Errorf("failed to write replica %s: %w", r.ID, err)
			}
		}

		if rd, ok := l.rounds.Load(rec.RequestID); ok {
			rd.mu.Lock()
			rd.written = true
			rd.version = version
			rd.content = rec.NewContent
			rd.mu.Unlock()
		}
		l.notifyChange(rec.Filename, version)

		log.Debug().
			Uint64("request_id", rec.RequestID).
			Str("file", rec.Filename).
			Str("version", version.String()).
			Int("active_nodes", len(set)).
			Msg("Write committed on coordinator")
		return rec.NewContent, nil

	default:
		return "", fmt.Errorf("unsupported operation: %s", rec.Op)
	}
}

// MulticastUpdateOrReadReleaseLock sends the release signal to the other
// members of the round. Once the coordinator has written, the signal carries
// the committed content and version.
func (l *Local) MulticastUpdateOrReadReleaseLock(ctx context.Context, rec Record) error {
	rd, ok := l.rounds.Load(rec.RequestID)
	if !ok {
		return nil
	}

	rd.mu.Lock()
	out := rec
	out.Op = rd.op
	out.Apply = rd.written
	if rd.written {
		out.NewContent = rd.content
		out.Clock = rd.version
	} else {
		out.NewContent = ""
		out.Clock = l.clock.Last()
	}
	peers := l.others(rd.set)
	rd.mu.Unlock()

	replies := fanOut(ctx, l.opts.PeerTimeout, l.resolve, peers, func(ctx context.Context, h Handle) (struct{}, error) {
		return struct{}{}, h.OnUpdateOrReleaseLock(ctx, out)
	})
	logFailures(replies, rec, "Failed to deliver update/release")
	return nil
}

// OnUpdateOrReleaseLock applies a committed write (newer version wins) and
// frees this node's promise for the request
func (l *Local) OnUpdateOrReleaseLock(_ context.Context, rec Record) error {
	l.clock.Update(rec.Clock)
	defer l.votes.drop(rec.Filename, rec.RequestID)

	if !rec.Apply || rec.Op != OpWrite {
		return nil
	}
	return l.applyUpdate(rec.Filename, rec.NewContent, rec.Clock)
}

// lockWrites holds the per-file write mutex; the version check and the Put
// of an update must not interleave with another write of the same file
func (l *Local) lockWrites(filename string) func() {
	mu, _ := l.writes.LoadOrCompute(filename, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu.Unlock
}

func (l *Local) applyUpdate(filename, content string, version hlc.Timestamp) error {
	unlock := l.lockWrites(filename)
	defer unlock()

	replicas, err := store.ByFilename(l.store, filename)
	if err != nil {
		return fmt.Errorf("failed to list replicas of '%s': %w", filename, err)
	}

	applied := 0
	for _, r := range replicas {
		if !hlc.After(version, r.Version) {
			continue
		}
		r.Content = content
		r.Version = version
		if err := l.store.Put(r); err != nil {
			return fmt.Errorf("failed to apply update to replica %s: %w", r.ID, err)
		}
		applied++
	}
	if applied > 0 {
		l.notifyChange(filename, version)
	}

	log.Debug().
		Str("file", filename).
		Str("version", version.String()).
		Int("applied", applied).
		Msg("Applied replicated write")
	return nil
}

func (l *Local) LockStats() (activeLocks, heldPromises, openRounds int) {
	return len(l.locks.ActiveLocks()), l.votes.held(), l.rounds.Size()
}

func (l *Local) LocalReplicaCount() int {
	return l.metadata.Size()
}

func newest(replicas []*store.Replica) *store.Replica {
	best := replicas[0]
	for _, r := range replicas[1:] {
		if hlc.After(r.Version, best.Version) {
			best = r
		}
	}
	return best
}

type reply[T any] struct {
	peer Peer
	val  T
	err  error
}

// fanOut runs call against every peer in parallel and waits for all replies.
// Peers that fail to resolve report the resolution error.
func fanOut[T any](ctx context.Context, timeout time.Duration, resolve func(context.Context, Peer) (Handle, error), peers []Peer, call func(context.Context, Handle) (T, error)) []reply[T] {
	bound := peerBound(ctx, timeout)
	futures := make([]*future.Future[T], len(peers))
	for i, p := range peers {
		promise := future.NewPromise[T]()
		futures[i] = promise.Future()

		go func() {
			ctx := ctx
			if bound > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, bound)
				defer cancel()
			}

			h, err := resolve(ctx, p)
			if err != nil {
				var zero T
				promise.Set(zero, err)
				return
			}
			promise.Set(call(ctx, h))
		}()
	}

	out := make([]reply[T], len(peers))
	for i, f := range futures {
		v, err := f.Get()
		out[i] = reply[T]{peer: peers[i], val: v, err: err}
	}
	return out
}

// peerBound is the timeout of one peer call in a fan-out: timeout, capped at
// half of what is left on ctx so a hung peer counts as a failed reply while
// the caller can still use the others. Zero means unbounded.
func peerBound(ctx context.Context, timeout time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout
	}

	half := time.Until(deadline) / 2
	if half <= 0 {
		half = time.Millisecond
	}
	if timeout <= 0 || half < timeout {
		return half
	}
	return timeout
}

func logFailures[T any](replies []reply[T], rec Record, msg string) {
	for _, r := range replies {
		if r.err != nil {
			log.Warn().
				Err(r.err).
				Uint64("request_id", rec.RequestID).
				Str("file", rec.Filename).
				Str("peer", r.peer.String()).
				Msg(msg)
		}
	}
}
