package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/ringfs/hlc"
	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLockTimeout is returned when the coordinator lock could not be
	// acquired before the caller's deadline
	ErrLockTimeout = errors.New("timed out waiting for file lock")

	// ErrLockNotHeld is returned when an operation requires the request to
	// hold the file lock and it does not
	ErrLockNotHeld = errors.New("file lock not held by request")
)

// LockHeldError reports the request currently holding a file lock
type LockHeldError struct {
	Filename  string
	RequestID uint64
	NodeID    id.ReplicaID
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("lock for file '%s' is held by request %d (node %s)", e.Filename, e.RequestID, e.NodeID)
}

// Lock is a coordinator's exclusive lease on one file
type Lock struct {
	Filename    string
	NodeID      id.ReplicaID
	RequestID   uint64
	AcquiredAt  hlc.Timestamp
	ExpiresAt   time.Time
	ReleaseChan chan struct{} // Closed when the lock is released or expires
}

// LockManager serializes critical sections per file on the coordinator.
// Locks are leases: a holder that never releases loses the lock at ExpiresAt.
type LockManager struct {
	mu            sync.Mutex
	activeLocks   map[string]*Lock
	leaseDuration time.Duration
}

// NewLockManager creates a lock manager handing out leases of leaseDuration
func NewLockManager(leaseDuration time.Duration) *LockManager {
	return &LockManager{
		activeLocks:   make(map[string]*Lock),
		leaseDuration: leaseDuration,
	}
}

// TryAcquire takes the file lock without waiting. Re-acquiring by the same
// request is idempotent. Returns *LockHeldError when another request holds it.
func (lm *LockManager) TryAcquire(filename string, requestID uint64, nodeID id.ReplicaID, ts hlc.Timestamp) (*Lock, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, _, err := lm.tryAcquireLocked(filename, requestID, nodeID, ts)
	return lock, err
}

func (lm *LockManager) tryAcquireLocked(filename string, requestID uint64, nodeID id.ReplicaID, ts hlc.Timestamp) (*Lock, <-chan struct{}, error) {
	if existing, ok := lm.activeLocks[filename]; ok {
		if time.Now().Before(existing.ExpiresAt) {
			if existing.RequestID == requestID {
				return existing, nil, nil
			}
			return nil, existing.ReleaseChan, &LockHeldError{
				Filename:  filename,
				RequestID: existing.RequestID,
				NodeID:    existing.NodeID,
			}
		}

		log.Warn().
			Str("file", filename).
			Uint64("expired_request", existing.RequestID).
			Str("expired_node", existing.NodeID.String()).
			Msg("File lock expired, allowing new acquisition")
		close(existing.ReleaseChan)
		delete(lm.activeLocks, filename)
	}

	lock := &Lock{
		Filename:    filename,
		NodeID:      nodeID,
		RequestID:   requestID,
		AcquiredAt:  ts,
		ExpiresAt:   time.Now().Add(lm.leaseDuration),
		ReleaseChan: make(chan struct{}),
	}
	lm.activeLocks[filename] = lock

	log.Debug().
		Str("file", filename).
		Uint64("request_id", requestID).
		Msg("File lock acquired")

	return lock, nil, nil
}

// Acquire takes the file lock, waiting for the current holder to release or
// for its lease to lapse. Waiting stops when ctx is done.
func (lm *LockManager) Acquire(ctx context.Context, filename string, requestID uint64, nodeID id.ReplicaID, ts hlc.Timestamp) (*Lock, error) {
	start := time.Now()
	defer func() {
		telemetry.LockWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	for {
		lm.mu.Lock()
		lock, releaseChan, err := lm.tryAcquireLocked(filename, requestID, nodeID, ts)
		var expiresIn time.Duration
		if err != nil {
			expiresIn = time.Until(lm.activeLocks[filename].ExpiresAt)
		}
		lm.mu.Unlock()

		if err == nil {
			return lock, nil
		}

		timer := time.NewTimer(expiresIn)
		select {
		case <-releaseChan:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: file '%s': %v", ErrLockTimeout, filename, ctx.Err())
		}
	}
}

// Release drops the file lock if requestID holds it. Releasing a lock that
// is not held is a no-op; releasing another request's lock is an error.
func (lm *LockManager) Release(filename string, requestID uint64) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, exists := lm.activeLocks[filename]
	if !exists {
		return nil
	}

	if lock.RequestID != requestID {
		return &LockHeldError{Filename: filename, RequestID: lock.RequestID, NodeID: lock.NodeID}
	}

	close(lock.ReleaseChan)
	delete(lm.activeLocks, filename)

	log.Debug().
		Str("file", filename).
		Uint64("request_id", requestID).
		Msg("File lock released")

	return nil
}

// Holds reports whether requestID currently holds an unexpired lock on filename
func (lm *LockManager) Holds(filename string, requestID uint64) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lock, exists := lm.activeLocks[filename]
	return exists && lock.RequestID == requestID && time.Now().Before(lock.ExpiresAt)
}

// CleanupExpiredLocks removes expired locks and wakes their waiters
func (lm *LockManager) CleanupExpiredLocks() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for filename, lock := range lm.activeLocks {
		if now.After(lock.ExpiresAt) {
			log.Warn().
				Str("file", filename).
				Uint64("request_id", lock.RequestID).
				Msg("Cleaning up expired file lock")
			close(lock.ReleaseChan)
			delete(lm.activeLocks, filename)
			cleaned++
		}
	}
	return cleaned
}

// ActiveLocks returns a snapshot of held locks keyed by filename
func (lm *LockManager) ActiveLocks() map[string]Lock {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	result := make(map[string]Lock, len(lm.activeLocks))
	for filename, lock := range lm.activeLocks {
		result[filename] = *lock
	}
	return result
}
