package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobRunsTotal, jobDurationSeconds) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // 'ok', 'failed', 'panic'
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Duration of scheduled job runs.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"job"},
	)
)

func ObserveJob(job, status string, d time.Duration) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
	jobDurationSeconds.WithLabelValues(norm(job)).Observe(d.Seconds())
}
