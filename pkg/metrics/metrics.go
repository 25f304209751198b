// Package metrics declares the Prometheus collectors CipherSwarm's
// scheduling components update as they run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherswarmd_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	AttacksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherswarmd_attacks_total",
			Help: "Total number of attacks by state",
		},
		[]string{"state"},
	)

	AgentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cipherswarmd_agents_total",
			Help: "Total number of agents by state",
		},
		[]string{"state"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cipherswarmd_scheduling_latency_seconds",
			Help:    "Time taken to find and assign the next task for an agent",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_tasks_assigned_total",
			Help: "Total number of tasks assigned to agents",
		},
	)

	TasksPreempted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_tasks_preempted_total",
			Help: "Total number of tasks preempted in favor of higher priority work",
		},
	)

	CracksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_cracks_submitted_total",
			Help: "Total number of cracked-hash submissions accepted",
		},
	)

	CracksPropagated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_cracks_propagated_total",
			Help: "Total number of sibling hash items marked cracked by propagation",
		},
	)

	StatusFramesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_status_frames_ingested_total",
			Help: "Total number of hashcat status frames ingested",
		},
	)

	EtaCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_eta_cache_hits_total",
			Help: "Total number of ETA calculations served from cache",
		},
	)

	EtaCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherswarmd_eta_cache_misses_total",
			Help: "Total number of ETA calculations recomputed",
		},
	)

	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherswarmd_health_check_duration_seconds",
			Help:    "Time taken to probe a dependency during a system health check",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dependency"},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(AttacksTotal)
	prometheus.MustRegister(AgentsTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(TasksAssigned)
	prometheus.MustRegister(TasksPreempted)
	prometheus.MustRegister(CracksSubmitted)
	prometheus.MustRegister(CracksPropagated)
	prometheus.MustRegister(StatusFramesIngested)
	prometheus.MustRegister(EtaCacheHits)
	prometheus.MustRegister(EtaCacheMisses)
	prometheus.MustRegister(HealthCheckDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
