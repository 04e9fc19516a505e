// Package metrics holds the process-wide prometheus registry and the
// in-process job metrics map.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the single process-wide prometheus registry, initialized
// once at startup.
var Registry = prometheus.NewRegistry()

var (
	ConsumerProcessed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "consumer_total_processed",
		Help: "Deliveries processed per consumer.",
	}, []string{"consumer"})
	ConsumerErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "consumer_total_errors",
		Help: "Failed deliveries per consumer.",
	}, []string{"consumer"})
	ParserCurrentBlock = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parser_current_block",
		Help: "Last processed block per chain.",
	}, []string{"chain"})
	ParserLatestBlock = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parser_latest_block",
		Help: "Node-reported latest block per chain.",
	}, []string{"chain"})
	ProxyRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dynode_request_duration_seconds",
		Help:    "Upstream latency per host and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"host", "method", "upstream"})
	ProxyCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dynode_cache_hits_total",
		Help: "Proxy cache hits per host and method.",
	}, []string{"host", "method"})
	ProxyCacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dynode_cache_misses_total",
		Help: "Proxy cache misses per host and method.",
	}, []string{"host", "method"})
	JobDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "job_duration_ms",
		Help: "Last run duration per job.",
	}, []string{"service", "job"})
	JobErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "job_error_count",
		Help: "Cumulative errors per job.",
	}, []string{"service", "job"})
)

func init() {
	Registry.MustRegister(
		ConsumerProcessed, ConsumerErrors,
		ParserCurrentBlock, ParserLatestBlock,
		ProxyRequestDuration, ProxyCacheHits, ProxyCacheMisses,
		JobDuration, JobErrors,
	)
}

type jobKey struct {
	Service string
	Job     string
}

// JobStatus is the recorded state of one scheduled job.
type JobStatus struct {
	Service       string        `json:"service"`
	Job           string        `json:"job"`
	Interval      time.Duration `json:"interval"`
	Duration      time.Duration `json:"duration"`
	LastSuccessAt *time.Time    `json:"last_success_at,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorAt   *time.Time    `json:"last_error_at,omitempty"`
	ErrorCount    int64         `json:"error_count"`
}

// JobMetrics tracks scheduled jobs behind a single short-lived mutex;
// writes are constant-time.
type JobMetrics struct {
	mu   sync.Mutex
	jobs map[jobKey]*JobStatus
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{jobs: map[jobKey]*JobStatus{}}
}

func (m *JobMetrics) get(service, job string) *JobStatus {
	key := jobKey{service, job}
	s, ok := m.jobs[key]
	if !ok {
		s = &JobStatus{Service: service, Job: job}
		m.jobs[key] = s
	}
	return s
}

func (m *JobMetrics) SetInterval(service, job string, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(service, job).Interval = interval
}

func (m *JobMetrics) ReportSuccess(service, job string, duration time.Duration) {
	m.mu.Lock()
	now := time.Now()
	s := m.get(service, job)
	s.Duration = duration
	s.LastSuccessAt = &now
	m.mu.Unlock()
	JobDuration.WithLabelValues(service, job).Set(float64(duration.Milliseconds()))
}

func (m *JobMetrics) ReportError(service, job string, err error) {
	m.mu.Lock()
	now := time.Now()
	s := m.get(service, job)
	s.LastError = err.Error()
	s.LastErrorAt = &now
	s.ErrorCount++
	count := s.ErrorCount
	m.mu.Unlock()
	JobErrors.WithLabelValues(service, job).Set(float64(count))
}

// Snapshot returns a copy of every job status.
func (m *JobMetrics) Snapshot() []JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]JobStatus, 0, len(m.jobs))
	for _, s := range m.jobs {
		out = append(out, *s)
	}
	return out
}
