package metrics

import (
	"strconv"

	"jastip-market/internal/domain/job"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements the queue, lock and worker metric ports on top of
// prometheus collectors.
type Metrics struct {
	JobsEnqueued  *prometheus.CounterVec
	JobsDequeued  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	ActiveLocks   prometheus.Gauge
	ReservedUnits prometheus.Gauge
	LocksReleased *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	WorkerActive  prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jastip_jobs_enqueued_total",
				Help: "Total number of jobs enqueued",
			},
			[]string{"type"},
		),
		JobsDequeued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jastip_jobs_dequeued_total",
				Help: "Total number of jobs claimed by a worker",
			},
			[]string{"type"},
		),
		JobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jastip_jobs_completed_total",
				Help: "Total number of jobs acknowledged",
			},
			[]string{"type"},
		),
		JobsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jastip_jobs_failed_total",
				Help: "Total number of job failures, by whether the job was dropped",
			},
			[]string{"type", "dropped"},
		),
		ActiveLocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jastip_stock_locks_active",
				Help: "Number of stock holds in the lock table",
			},
		),
		ReservedUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jastip_stock_reserved_units",
				Help: "Units currently held by stock holds",
			},
		),
		LocksReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jastip_stock_locks_released_total",
				Help: "Total number of released stock holds",
			},
			[]string{"cause", "restored"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jastip_job_duration_seconds",
				Help:    "Handler execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type", "outcome"},
		),
		WorkerActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jastip_worker_active_jobs",
				Help: "Jobs currently being handled by this process",
			},
		),
	}

	reg.MustRegister(
		m.JobsEnqueued,
		m.JobsDequeued,
		m.JobsCompleted,
		m.JobsFailed,
		m.ActiveLocks,
		m.ReservedUnits,
		m.LocksReleased,
		m.JobDuration,
		m.WorkerActive,
	)

	return m
}

func (m *Metrics) JobEnqueued(t job.Type) {
	m.JobsEnqueued.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) JobDequeued(t job.Type) {
	m.JobsDequeued.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) JobCompleted(t job.Type) {
	m.JobsCompleted.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) JobFailed(t job.Type, dropped bool) {
	m.JobsFailed.WithLabelValues(string(t), strconv.FormatBool(dropped)).Inc()
}

func (m *Metrics) SetActiveLocks(count, units int) {
	m.ActiveLocks.Set(float64(count))
	m.ReservedUnits.Set(float64(units))
}

func (m *Metrics) LockReleased(cause string, restored bool) {
	m.LocksReleased.WithLabelValues(cause, strconv.FormatBool(restored)).Inc()
}

func (m *Metrics) ObserveJob(t job.Type, outcome string, seconds float64) {
	m.JobDuration.WithLabelValues(string(t), outcome).Observe(seconds)
}

func (m *Metrics) SetWorkerActive(n int) {
	m.WorkerActive.Set(float64(n))
}
