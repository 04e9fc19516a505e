package bus

import (
	"sync"
	"time"

	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/metrics"
)

// maxErrorKinds bounds the error histogram per consumer.
const maxErrorKinds = 16

type ErrorCount struct {
	Message  string    `json:"message"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

type ConsumerStatus struct {
	Name           string       `json:"name"`
	TotalProcessed int64        `json:"total_processed"`
	TotalErrors    int64        `json:"total_errors"`
	LastSuccessAt  *time.Time   `json:"last_success_at,omitempty"`
	AvgDurationMs  float64      `json:"avg_duration_ms"`
	Errors         []ErrorCount `json:"errors,omitempty"`
}

// StatusReporter accumulates per-delivery outcomes for one consumer and
// flushes them to the cache after every report. Flushes are best-effort.
type StatusReporter struct {
	name   string
	cacher *cache.Cacher

	mu     sync.Mutex
	status ConsumerStatus
	errors map[string]*ErrorCount
}

func NewStatusReporter(name string, cacher *cache.Cacher) *StatusReporter {
	return &StatusReporter{
		name:   name,
		cacher: cacher,
		status: ConsumerStatus{Name: name},
		errors: map[string]*ErrorCount{},
	}
}

// ReportSuccess records one successful delivery.
func (r *StatusReporter) ReportSuccess(duration time.Duration) {
	r.mu.Lock()
	now := time.Now()
	r.status.TotalProcessed++
	r.status.LastSuccessAt = &now
	r.recordDuration(duration)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.flush(snapshot)
}

// ReportError records one failed delivery.
func (r *StatusReporter) ReportError(duration time.Duration, err error) {
	r.mu.Lock()
	r.status.TotalProcessed++
	r.status.TotalErrors++
	r.recordDuration(duration)
	msg := err.Error()
	if ec, ok := r.errors[msg]; ok {
		ec.Count++
		ec.LastSeen = time.Now()
	} else if len(r.errors) < maxErrorKinds {
		r.errors[msg] = &ErrorCount{Message: msg, Count: 1, LastSeen: time.Now()}
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.flush(snapshot)
}

// recordDuration maintains a cumulative rolling average in milliseconds.
func (r *StatusReporter) recordDuration(d time.Duration) {
	ms := float64(d.Milliseconds())
	n := float64(r.status.TotalProcessed)
	r.status.AvgDurationMs += (ms - r.status.AvgDurationMs) / n
}

func (r *StatusReporter) snapshotLocked() ConsumerStatus {
	snapshot := r.status
	snapshot.Errors = make([]ErrorCount, 0, len(r.errors))
	for _, ec := range r.errors {
		snapshot.Errors = append(snapshot.Errors, *ec)
	}
	return snapshot
}

// Snapshot returns the current status.
func (r *StatusReporter) Snapshot() ConsumerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *StatusReporter) flush(snapshot ConsumerStatus) {
	metrics.ConsumerProcessed.WithLabelValues(r.name).Set(float64(snapshot.TotalProcessed))
	metrics.ConsumerErrors.WithLabelValues(r.name).Set(float64(snapshot.TotalErrors))
	if r.cacher == nil {
		return
	}
	if err := r.cacher.Set(cache.ConsumerStatus(r.name), snapshot); err != nil {
		logger.Warnw("status flush failed", "consumer", r.name, "err", err)
	}
}
