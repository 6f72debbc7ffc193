package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/ringfs/hlc"
)

// defaultSignalBufferSize is the buffer size for change signal channels.
// Subscribers that can't keep up will have signals dropped (non-blocking send).
const defaultSignalBufferSize = 16

// Change reports that a local replica of Filename now holds Version
type Change struct {
	Filename string
	Version  hlc.Timestamp
}

// Filter selects the files a subscriber hears about. Empty means all files.
type Filter struct {
	Files []string
}

type subscription struct {
	id     uint64
	filter Filter
	ch     chan Change
	closed atomic.Bool
}

func (s *subscription) matches(filename string) bool {
	if len(s.filter.Files) == 0 {
		return true
	}

	for _, f := range s.filter.Files {
		if f == filename {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub fans replica change signals out to subscribers
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Signal sends a change to all matching subscribers (non-blocking).
func (h *Hub) Signal(filename string, version hlc.Timestamp) {
	change := Change{
		Filename: filename,
		Version:  version,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(filename) {
			continue
		}

		select {
		case sub.ch <- change:
		default:
		}
	}
}

// Subscribe creates a new subscription and returns the signal channel and cancel function.
// The returned channel is buffered. If the subscriber cannot keep up with the signal rate,
// signals will be dropped silently by Signal(). The cancel function is idempotent.
func (h *Hub) Subscribe(filter Filter) (<-chan Change, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Change, defaultSignalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
