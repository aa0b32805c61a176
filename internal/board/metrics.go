package board

import (
	"sync/atomic"
	"time"
)

// Metrics counts controller outcomes. All methods are safe for concurrent
// use.
type Metrics struct {
	Moves          int64 `json:"moves"`
	Reconciled     int64 `json:"reconciled"`
	Rollbacks      int64 `json:"rollbacks"`
	StaleResponses int64 `json:"stale_responses"`
	Failures       int64 `json:"failures"`
	StartTime      int64 `json:"start_time"`
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now().Unix()}
}

func (m *Metrics) RecordMove()       { atomic.AddInt64(&m.Moves, 1) }
func (m *Metrics) RecordReconciled() { atomic.AddInt64(&m.Reconciled, 1) }
func (m *Metrics) RecordRollback()   { atomic.AddInt64(&m.Rollbacks, 1) }
func (m *Metrics) RecordStale()      { atomic.AddInt64(&m.StaleResponses, 1) }
func (m *Metrics) RecordFailure()    { atomic.AddInt64(&m.Failures, 1) }

func (m *Metrics) GetStats() Metrics {
	return Metrics{
		Moves:          atomic.LoadInt64(&m.Moves),
		Reconciled:     atomic.LoadInt64(&m.Reconciled),
		Rollbacks:      atomic.LoadInt64(&m.Rollbacks),
		StaleResponses: atomic.LoadInt64(&m.StaleResponses),
		Failures:       atomic.LoadInt64(&m.Failures),
		StartTime:      m.StartTime,
	}
}
