package telemetry

import (
	"sync"
	"time"
)

// StatsProvider is implemented by the local node
type StatsProvider interface {
	LockStats() (activeLocks, heldPromises, openRounds int)
	LocalReplicaCount() int
}

// MembershipProvider reports ring membership counts keyed by status
type MembershipProvider interface {
	MemberCounts() map[string]int
}

// MetricsCollector periodically samples node and ring state into gauges
type MetricsCollector struct {
	stats    StatsProvider
	members  MembershipProvider
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector. Either provider may be nil.
func NewMetricsCollector(stats StatsProvider, members MembershipProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		stats:    stats,
		members:  members,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.stats != nil {
		locks, promises, rounds := mc.stats.LockStats()
		ActiveLocks.Set(float64(locks))
		HeldPromises.Set(float64(promises))
		OpenRounds.Set(float64(rounds))
		LocalReplicas.Set(float64(mc.stats.LocalReplicaCount()))
	}

	if mc.members != nil {
		for status, count := range mc.members.MemberCounts() {
			RingMembers.With(status).Set(float64(count))
		}
	}
}
