package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// QuorumBuckets for full read/write rounds (network + voting + critical section)
	QuorumBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	// LockWaitBuckets for coordinator lock acquisition
	LockWaitBuckets = []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5}

	// PlacementBuckets for daemon placement cycles
	PlacementBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30}

	// QuorumAckBuckets for number of votes granted per round, also used for
	// discovered active set sizes
	QuorumAckBuckets = []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}
)

// Ring Metrics
var (
	// RingMembers tracks member count by status (ALIVE, DEAD)
	RingMembers GaugeVec = noopGaugeVec{}

	// RPCRequestsTotal counts node service calls served by method and result
	RPCRequestsTotal CounterVec = noopCounterVec{}
)

// Quorum Protocol Metrics
var (
	// QuorumOperationsTotal counts rounds by op (read, write) and result
	// (ok, no_quorum, no_coordinator, no_active_nodes, failed)
	QuorumOperationsTotal CounterVec = noopCounterVec{}

	// QuorumOperationSeconds measures full round latency by op
	QuorumOperationSeconds HistogramVec = noopHistogramVec{}

	// QuorumAcks measures granted votes per round by op
	QuorumAcks HistogramVec = noopHistogramVec{}

	// VotesTotal counts votes cast by this node by op and result (granted, denied)
	VotesTotal CounterVec = noopCounterVec{}

	// ActiveSetSize measures the number of nodes found holding a file per discovery
	ActiveSetSize Histogram = NoopStat{}

	// LockWaitSeconds measures time waiting for the coordinator lock
	LockWaitSeconds Histogram = NoopStat{}

	// ActiveLocks tracks coordinator locks currently held on this node
	ActiveLocks Gauge = NoopStat{}

	// HeldPromises tracks files with at least one live vote promise
	HeldPromises Gauge = NoopStat{}

	// OpenRounds tracks coordinator rounds not yet released
	OpenRounds Gauge = NoopStat{}
)

// Placement Metrics
var (
	// PlacementCyclesTotal counts daemon placement cycles
	PlacementCyclesTotal Counter = NoopStat{}

	// PlacementReplicasTotal counts replica identifiers by result (placed, skipped, failed)
	PlacementReplicasTotal CounterVec = noopCounterVec{}

	// PlacementCycleSeconds measures a full placement cycle
	PlacementCycleSeconds Histogram = NoopStat{}

	// LocalReplicas tracks replicas materialized on this node
	LocalReplicas Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	RingMembers = NewGaugeVec(
		"ring_members",
		"Number of ring members by status",
		[]string{"status"},
	)
	RPCRequestsTotal = NewCounterVec(
		"rpc_requests_total",
		"Node service requests served by method and result",
		[]string{"method", "result"},
	)

	QuorumOperationsTotal = NewCounterVec(
		"quorum_operations_total",
		"Quorum rounds by operation and result",
		[]string{"op", "result"},
	)
	QuorumOperationSeconds = NewHistogramVec(
		"quorum_operation_seconds",
		"Quorum round duration in seconds",
		[]string{"op"},
		QuorumBuckets,
	)
	QuorumAcks = NewHistogramVec(
		"quorum_acks",
		"Votes granted per quorum round",
		[]string{"op"},
		QuorumAckBuckets,
	)
	VotesTotal = NewCounterVec(
		"votes_total",
		"Votes cast by this node by operation and result",
		[]string{"op", "result"},
	)
	ActiveSetSize = NewHistogramWithBuckets(
		"active_set_size",
		"Nodes holding a live replica per active set discovery",
		QuorumAckBuckets,
	)
	LockWaitSeconds = NewHistogramWithBuckets(
		"lock_wait_seconds",
		"Time waiting for the coordinator lock in seconds",
		LockWaitBuckets,
	)
	ActiveLocks = NewGauge(
		"active_locks",
		"Coordinator locks currently held",
	)
	HeldPromises = NewGauge(
		"held_promises",
		"Files with a live vote promise",
	)
	OpenRounds = NewGauge(
		"open_rounds",
		"Coordinator rounds awaiting release",
	)

	PlacementCyclesTotal = NewCounter(
		"placement_cycles_total",
		"Total replica placement cycles executed",
	)
	PlacementReplicasTotal = NewCounterVec(
		"placement_replicas_total",
		"Replica identifiers processed by placement result",
		[]string{"result"},
	)
	PlacementCycleSeconds = NewHistogramWithBuckets(
		"placement_cycle_seconds",
		"Placement cycle duration in seconds",
		PlacementBuckets,
	)
	LocalReplicas = NewGauge(
		"local_replicas",
		"Replicas materialized on this node",
	)
}
