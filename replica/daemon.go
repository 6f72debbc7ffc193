package replica

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maxpert/ringfs/node"
	"github.com/maxpert/ringfs/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Daemon periodically re-places the replicas of every tracked file so that
// missing replicas and newly responsible nodes are healed
type Daemon struct {
	self     node.Peer
	finder   Finder
	n        int
	interval time.Duration
	placers  *xsync.MapOf[string, *Placer]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaemon creates a daemon placing n replicas per file every interval
func NewDaemon(self node.Peer, finder Finder, n int, interval time.Duration) *Daemon {
	return &Daemon{
		self:     self,
		finder:   finder,
		n:        n,
		interval: interval,
		placers:  xsync.NewMapOf[string, *Placer](),
	}
}

// Track starts maintaining replicas of filename and returns its placer.
// Tracking an already tracked file returns the existing placer.
func (d *Daemon) Track(filename string) *Placer {
	p := NewPlacer(d.self, d.finder, d.n)
	p.CreateReplicaFiles(filename)

	actual, loaded := d.placers.LoadOrStore(filename, p)
	if !loaded {
		log.Info().Str("file", filename).Int("replicas", d.n).Msg("Tracking file")
	}
	return actual
}

// Untrack stops maintaining filename. Replicas already placed stay where they are.
func (d *Daemon) Untrack(filename string) {
	d.placers.Delete(filename)
}

// Tracked returns the tracked filenames in order
func (d *Daemon) Tracked() []string {
	out := make([]string, 0, d.placers.Size())
	d.placers.Range(func(filename string, _ *Placer) bool {
		out = append(out, filename)
		return true
	})
	sort.Strings(out)
	return out
}

// Start runs a placement cycle immediately and then every interval until
// Stop is called or ctx is done
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		log.Warn().Msg("Replication daemon already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.runLoop(ctx, d.done)

	log.Info().Dur("interval", d.interval).Msg("Replication daemon started")
}

// Stop cancels the loop and waits for the current cycle to finish
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	done := d.done
	d.running = false
	d.mu.Unlock()

	<-done
	log.Info().Msg("Replication daemon stopped")
}

func (d *Daemon) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.cycle(ctx)

	for {
		select {
		case <-ticker.C:
			d.cycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// cycle runs one placement pass. Nothing that happens in it stops the loop.
func (d *Daemon) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Placement cycle panicked")
		}
	}()

	start := time.Now()
	placed, err := d.RunOnce(ctx)
	telemetry.PlacementCyclesTotal.Inc()
	telemetry.PlacementCycleSeconds.Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Int("placed", placed).Msg("Placement cycle failed")
		return
	}
	log.Debug().Int("placed", placed).Int("files", d.placers.Size()).Msg("Placement cycle complete")
}

// RunOnce distributes the replicas of every tracked file once. It returns
// the total placed and the joined per-file failures.
func (d *Daemon) RunOnce(ctx context.Context) (int, error) {
	var errs []error
	total := 0

	d.placers.Range(func(filename string, p *Placer) bool {
		placed, err := distributeSafely(ctx, p)
		total += placed
		if err != nil {
			errs = append(errs, fmt.Errorf("file '%s': %w", filename, err))
		}
		return ctx.Err() == nil
	})

	return total, errors.Join(errs...)
}

func distributeSafely(ctx context.Context, p *Placer) (placed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("placement panicked: %v", r)
		}
	}()
	return p.DistributeReplicas(ctx)
}
