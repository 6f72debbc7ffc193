package node

import (
	"sync"
	"time"
)

// promise is the set of requests this node has voted for on one file.
// Holders share a promise only when every holder is a READ.
type promise struct {
	op      OpType
	holders map[uint64]time.Time // request ID -> expiry
}

// voteTable tracks the promises a node has granted as a voter
type voteTable struct {
	mu    sync.Mutex
	files map[string]*promise
	lease time.Duration
}

func newVoteTable(lease time.Duration) *voteTable {
	return &voteTable{
		files: make(map[string]*promise),
		lease: lease,
	}
}

// grant records a vote for requestID on filename if it does not conflict
// with a live promise. Re-voting for the same request refreshes its lease.
func (t *voteTable) grant(filename string, requestID uint64, op OpType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	p, ok := t.files[filename]
	if ok {
		for rid, expiry := range p.holders {
			if now.After(expiry) {
				delete(p.holders, rid)
			}
		}
		if len(p.holders) == 0 {
			ok = false
		}
	}

	if !ok {
		t.files[filename] = &promise{
			op:      op,
			holders: map[uint64]time.Time{requestID: now.Add(t.lease)},
		}
		return true
	}

	if _, held := p.holders[requestID]; held {
		p.holders[requestID] = now.Add(t.lease)
		return true
	}

	if op == OpRead && p.op == OpRead {
		p.holders[requestID] = now.Add(t.lease)
		return true
	}

	return false
}

// drop forgets the vote for requestID
func (t *voteTable) drop(filename string, requestID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.files[filename]
	if !ok {
		return
	}
	delete(p.holders, requestID)
	if len(p.holders) == 0 {
		delete(t.files, filename)
	}
}

// held returns the number of files with at least one live promise
func (t *voteTable) held() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	count := 0
	for _, p := range t.files {
		for _, expiry := range p.holders {
			if now.Before(expiry) {
				count++
				break
			}
		}
	}
	return count
}
