package cache

import (
	"sync/atomic"
	"time"
)

// CacheMetrics counts list-cache outcomes.
type CacheMetrics struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Errors        int64 `json:"errors"`
	Sets          int64 `json:"sets"`
	Invalidations int64 `json:"invalidations"`
	// Bypassed counts reads served straight from the source because the
	// breaker was open.
	Bypassed int64 `json:"bypassed"`
	// StaleFills counts source reads that were not stored because their
	// tag was invalidated while they were in flight.
	StaleFills int64 `json:"stale_fills"`
	StartTime  int64 `json:"start_time"`
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{
		StartTime: time.Now().Unix(),
	}
}

func (m *CacheMetrics) RecordHit() {
	atomic.AddInt64(&m.Hits, 1)
}

func (m *CacheMetrics) RecordMiss() {
	atomic.AddInt64(&m.Misses, 1)
}

func (m *CacheMetrics) RecordError() {
	atomic.AddInt64(&m.Errors, 1)
}

func (m *CacheMetrics) RecordSet() {
	atomic.AddInt64(&m.Sets, 1)
}

func (m *CacheMetrics) RecordInvalidation() {
	atomic.AddInt64(&m.Invalidations, 1)
}

func (m *CacheMetrics) RecordBypass() {
	atomic.AddInt64(&m.Bypassed, 1)
}

func (m *CacheMetrics) RecordStaleFill() {
	atomic.AddInt64(&m.StaleFills, 1)
}

func (m *CacheMetrics) GetStats() CacheMetrics {
	return CacheMetrics{
		Hits:          atomic.LoadInt64(&m.Hits),
		Misses:        atomic.LoadInt64(&m.Misses),
		Errors:        atomic.LoadInt64(&m.Errors),
		Sets:          atomic.LoadInt64(&m.Sets),
		Invalidations: atomic.LoadInt64(&m.Invalidations),
		Bypassed:      atomic.LoadInt64(&m.Bypassed),
		StaleFills:    atomic.LoadInt64(&m.StaleFills),
		StartTime:     m.StartTime,
	}
}

func (m *CacheMetrics) HitRate() float64 {
	hits := atomic.LoadInt64(&m.Hits)
	misses := atomic.LoadInt64(&m.Misses)
	total := hits + misses

	if total == 0 {
		return 0.0
	}

	return float64(hits) / float64(total) * 100.0
}
