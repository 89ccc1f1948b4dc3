package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "dispatched_total",
		Help:      "Jobs claimed from storage and handed to a runner, by job type.",
	}, []string{"job_type"})

	jobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Job executions that reached a terminal Complete outcome, by job type.",
	}, []string{"job_type"})

	jobsRescheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "rescheduled_total",
		Help:      "Job executions voluntarily rescheduled by their runner, by job type.",
	}, []string{"job_type"})

	jobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Job executions that returned an error from Run, by job type and whether they will retry.",
	}, []string{"job_type", "outcome"})

	jobsLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "lost_total",
		Help:      "Job executions reclaimed because their lease went stale.",
	}, []string{"job_type"})

	jobsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "northstar",
		Subsystem: "jobs",
		Name:      "active",
		Help:      "Job executions currently running on this process.",
	}, []string{"job_type"})
)

// MustRegisterMetrics registers the scheduler's Prometheus collectors
// against reg. It panics on a duplicate registration, matching
// prometheus.MustRegister's own contract.
func MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(jobsDispatched, jobsCompleted, jobsRescheduled, jobsFailed, jobsLost, jobsActive)
}
