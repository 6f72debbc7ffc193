package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/maxpert/ringfs/hlc"
)

func ts(wall int64) hlc.Timestamp {
	return hlc.Timestamp{WallTime: wall, NodeID: 1}
}

func TestHub_BasicSubscribeSignal(t *testing.T) {
	hub := NewHub()

	changes, cancel := hub.Subscribe(Filter{})
	defer cancel()

	hub.Signal("doc.txt", ts(1))

	select {
	case c := <-changes:
		if c.Filename != "doc.txt" || c.Version != ts(1) {
			t.Errorf("expected (doc.txt, 1), got (%s, %v)", c.Filename, c.Version)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for change")
	}
}

func TestHub_FilterSpecificFile(t *testing.T) {
	hub := NewHub()

	changes, cancel := hub.Subscribe(Filter{Files: []string{"a.txt"}})
	defer cancel()

	hub.Signal("a.txt", ts(1))

	select {
	case c := <-changes:
		if c.Filename != "a.txt" {
			t.Errorf("expected a.txt, got %s", c.Filename)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for change")
	}

	hub.Signal("b.txt", ts(2))

	select {
	case c := <-changes:
		t.Errorf("should not receive change for b.txt, got %s", c.Filename)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FilterMultipleFiles(t *testing.T) {
	hub := NewHub()

	changes, cancel := hub.Subscribe(Filter{Files: []string{"a", "c"}})
	defer cancel()

	hub.Signal("a", ts(1))
	hub.Signal("b", ts(2))
	hub.Signal("c", ts(3))

	received := make(map[string]int64)
	for i := 0; i < 2; i++ {
		select {
		case c := <-changes:
			received[c.Filename] = c.Version.WallTime
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for change %d", i+1)
		}
	}

	if received["a"] != 1 || received["c"] != 3 || len(received) != 2 {
		t.Errorf("received unexpected changes: %v", received)
	}

	select {
	case c := <-changes:
		t.Errorf("should not receive change, got %s", c.Filename)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub()

	changes, cancel := hub.Subscribe(Filter{})
	hub.Signal("doc.txt", ts(1))
	<-changes

	cancel()
	if hub.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.Subscribers())
	}

	select {
	case _, ok := <-changes:
		if ok {
			t.Error("channel should be closed after cancel")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for channel close")
	}

	// must not panic on a closed subscription
	hub.Signal("doc.txt", ts(2))
	cancel()
}

func TestHub_ConcurrentSignalSubscribe(t *testing.T) {
	hub := NewHub()
	const numGoroutines = 10
	const numSignals = 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			changes, cancel := hub.Subscribe(Filter{})
			defer cancel()

			received := 0
			timeout := time.After(2 * time.Second)
			for received < numSignals {
				select {
				case <-changes:
					received++
				case <-timeout:
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numSignals; i++ {
			hub.Signal("doc.txt", ts(int64(i)))
		}
	}()

	wg.Wait()
}

func TestHub_BufferOverflowNonBlocking(t *testing.T) {
	hub := NewHub()

	changes, cancel := hub.Subscribe(Filter{})
	defer cancel()

	for i := 0; i < defaultSignalBufferSize+4; i++ {
		hub.Signal("doc.txt", ts(int64(i)))
	}

	if len(changes) != defaultSignalBufferSize {
		t.Errorf("expected a full buffer of %d, got %d", defaultSignalBufferSize, len(changes))
	}
}

func TestHub_SignalBeforeSubscribe(t *testing.T) {
	hub := NewHub()
	hub.Signal("doc.txt", ts(1))

	changes, cancel := hub.Subscribe(Filter{})
	defer cancel()

	select {
	case c := <-changes:
		t.Errorf("should not receive old change, got %s", c.Filename)
	case <-time.After(50 * time.Millisecond):
	}
}
