package replica

import (
	"context"
	"testing"
	"time"

	"github.com/maxpert/ringfs/id"
	"github.com/maxpert/ringfs/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemon_RunOncePlacesTrackedFiles(t *testing.T) {
	r := newTestRing(t, 2)
	d := NewDaemon(r.nodes[0].Peer(), r.lookup, 3, time.Hour)

	d.Track("a.txt")
	d.Track("b.txt")
	same := d.Track("a.txt")
	_, set := same.ReplicaSet()
	assert.Equal(t, id.Derive("a.txt", 3), set)
	assert.Equal(t, []string{"a.txt", "b.txt"}, d.Tracked())

	placed, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, placed)

	d.Untrack("b.txt")
	assert.Equal(t, []string{"a.txt"}, d.Tracked())
}

func TestDaemon_StartRunsImmediatelyAndStops(t *testing.T) {
	r := newTestRing(t, 1)
	only := r.nodes[0]
	d := NewDaemon(only.Peer(), r.lookup, 4, time.Hour)
	d.Track("doc.txt")

	d.Start(context.Background())
	d.Start(context.Background()) // second start is ignored

	require.Eventually(t, func() bool {
		return only.LocalReplicaCount() == 4
	}, 2*time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop()
}

func TestDaemon_HealsNewReplicas(t *testing.T) {
	r := newTestRing(t, 1)
	only := r.nodes[0]
	d := NewDaemon(only.Peer(), r.lookup, 2, 10*time.Millisecond)

	d.Start(context.Background())
	defer d.Stop()

	// Files tracked while running are picked up by a later cycle
	d.Track("late.txt")
	require.Eventually(t, func() bool {
		return only.LocalReplicaCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemon_SurvivesFailingCycles(t *testing.T) {
	finder := &stubFinder{panics: true}
	d := NewDaemon(node.Peer{ID: 1, Address: "a:1"}, finder, 2, 5*time.Millisecond)
	d.Track("doc.txt")

	_, err := d.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	d.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	assert.True(t, running, "daemon must keep running after failed cycles")
	d.Stop()
}

func TestDaemon_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDaemon(node.Peer{ID: 1}, &stubFinder{}, 1, time.Hour)
	d.Start(ctx)

	done := d.done
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon loop did not exit on context cancellation")
	}
	d.Stop()
}
