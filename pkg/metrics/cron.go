package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron cycle outcomes.
const (
	CycleRan       = "ran"
	CycleSkipped   = "skipped"
	CycleLockError = "lock_error"
)

const (
	jobResultSuccess = "success"
	jobResultFailure = "failure"
)

// CronJobMetrics records scheduler cycles and per-job runs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	cycles   *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convertflow_cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convertflow_cron_job_runs_total",
		Help: "Cron job executions, by job and result.",
	}, []string{"job", "result"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convertflow_cron_cycles_total",
		Help: "Scheduler cycles, by outcome of the run lock.",
	}, []string{"outcome"})
	reg.MustRegister(duration, runs, cycles)
	return &CronJobMetrics{
		duration: duration,
		runs:     runs,
		cycles:   cycles,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	c.incRun(job, jobResultSuccess)
}

func (c *CronJobMetrics) IncFailure(job string) {
	c.incRun(job, jobResultFailure)
}

// IncCycle counts one scheduler tick with the given outcome.
func (c *CronJobMetrics) IncCycle(outcome string) {
	if c == nil || c.cycles == nil {
		return
	}
	c.cycles.WithLabelValues(outcome).Inc()
}

func (c *CronJobMetrics) incRun(job, result string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), result).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
