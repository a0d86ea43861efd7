// Package metrics exposes Prometheus collectors for the scheduler, the
// execution pools, the dedup gate and the recovery sweeper.
//
// Collectors live on a private registry owned by Metrics so tests and
// multiple daemons in one process never collide on global registration.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recap/internal/queue"
	"recap/internal/services"
)

const namespace = "recap"

// StatsFunc reports job counts per stage. It is called on every scrape.
type StatsFunc func(ctx context.Context) (map[queue.Stage]int, error)

// Metrics holds every recap collector.
type Metrics struct {
	registry *prometheus.Registry

	activeJobs     prometheus.Gauge
	jobOutcomes    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	dedupHits      prometheus.Counter
	recoveryResets prometheus.Counter
	retries        prometheus.Counter

	poolQueued   *prometheus.CounterVec
	poolWait     *prometheus.HistogramVec
	poolDuration *prometheus.HistogramVec
	poolTasks    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry. stats may be nil.
func New(stats StatsFunc) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently owned by the scheduler",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal stage, by outcome",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage executor failures by stage and error kind",
		}, []string{"stage", "kind"}),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_hits_total",
			Help:      "Jobs completed from an earlier job with the same content",
		}),
		recoveryResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_resets_total",
			Help:      "Orphaned jobs returned to pending by the recovery sweeper",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Automatic retries scheduled for transient failures",
		}),
		poolQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_queued_total",
			Help:      "Tasks submitted to an execution pool",
		}, []string{"pool"}),
		poolWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "wait_seconds",
			Help:      "Time tasks spent queued before a worker picked them up",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"pool"}),
		poolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Time tasks spent running on a worker",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"pool"}),
		poolTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_finished_total",
			Help:      "Finished pool tasks by result",
		}, []string{"pool", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.activeJobs,
		m.jobOutcomes,
		m.stageDuration,
		m.stageFailures,
		m.dedupHits,
		m.recoveryResets,
		m.retries,
		m.poolQueued,
		m.poolWait,
		m.poolDuration,
		m.poolTasks,
	)
	if stats != nil {
		m.registry.MustRegister(newQueueCollector(stats))
	}
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobStarted increments the active job gauge.
func (m *Metrics) JobStarted() {
	m.activeJobs.Inc()
}

// JobFinished decrements the active gauge and counts the outcome, which is
// the final stage or "abandoned" when the execution stopped mid-pipeline.
func (m *Metrics) JobFinished(outcome string) {
	m.activeJobs.Dec()
	m.jobOutcomes.WithLabelValues(outcome).Inc()
}

// StageObserved records a stage run.
func (m *Metrics) StageObserved(stage queue.Stage, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(string(stage), string(services.Details(err).Kind)).Inc()
	}
}

// DedupHit counts a job short-circuited by the dedup gate.
func (m *Metrics) DedupHit() {
	m.dedupHits.Inc()
}

// RetryScheduled counts an automatic retry.
func (m *Metrics) RetryScheduled() {
	m.retries.Inc()
}

// RecoveryReset adds count reset jobs.
func (m *Metrics) RecoveryReset(count int64) {
	m.recoveryResets.Add(float64(count))
}

// TaskQueued implements pool.Observer.
func (m *Metrics) TaskQueued(pool string) {
	m.poolQueued.WithLabelValues(pool).Inc()
}

// TaskStarted implements pool.Observer.
func (m *Metrics) TaskStarted(pool string, wait time.Duration) {
	m.poolWait.WithLabelValues(pool).Observe(wait.Seconds())
}

// TaskFinished implements pool.Observer.
func (m *Metrics) TaskFinished(pool string, elapsed time.Duration, err error) {
	m.poolDuration.WithLabelValues(pool).Observe(elapsed.Seconds())
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	default:
		result = "error"
	}
	m.poolTasks.WithLabelValues(pool, result).Inc()
}

// queueCollector reads stage counts from the job store at scrape time.
type queueCollector struct {
	stats StatsFunc
	desc  *prometheus.Desc
}

func newQueueCollector(stats StatsFunc) *queueCollector {
	return &queueCollector{
		stats: stats,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Jobs in the store by stage",
			[]string{"stage"}, nil,
		),
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	counts, err := c.stats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.desc, err)
		return
	}
	for _, stage := range queue.AllStages() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[stage]), string(stage))
	}
}
