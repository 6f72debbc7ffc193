package coordinator

import (
	"time"

	"github.com/maxpert/ringfs/telemetry"
)

// OpMetrics records the timing and outcome of one quorum round
type OpMetrics struct {
	op        string // "read" or "write"
	startTime time.Time
}

func NewOpMetrics(op string) *OpMetrics {
	return &OpMetrics{
		op:        op,
		startTime: time.Now(),
	}
}

// RecordFailure records a failed round under result and returns err unchanged
func (m *OpMetrics) RecordFailure(result string, err error) error {
	telemetry.QuorumOperationsTotal.With(m.op, result).Inc()
	telemetry.QuorumOperationSeconds.With(m.op).Observe(time.Since(m.startTime).Seconds())
	return err
}

// RecordSuccess records a completed round. Returns nil for use in return statements.
func (m *OpMetrics) RecordSuccess() error {
	telemetry.QuorumOperationsTotal.With(m.op, "ok").Inc()
	telemetry.QuorumOperationSeconds.With(m.op).Observe(time.Since(m.startTime).Seconds())
	return nil
}
