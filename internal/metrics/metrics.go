// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fiscalops"

var (
	global *Metrics
	once   sync.Once
)

type Metrics struct {
	ProceduresGenerated *prometheus.CounterVec
	TasksGenerated      prometheus.Counter
	TaskTransitions     *prometheus.CounterVec
	TasksUnlocked       prometheus.Counter
	TasksAutoCompleted  prometheus.Counter
	VersionConflicts    prometheus.Counter
	GenerationFailures  *prometheus.CounterVec
	GenerateDuration    prometheus.Histogram
	ProceduresByStatus  *prometheus.GaugeVec
	WebhookDeliveries   *prometheus.CounterVec
}

// New returns the process-wide collectors, registering them on first use.
//
// Metrics:
//   - fiscalops_engine_procedures_generated_total{complexity}
//   - fiscalops_engine_tasks_generated_total
//   - fiscalops_engine_task_transitions_total{from,to}
//   - fiscalops_engine_tasks_unlocked_total
//   - fiscalops_engine_tasks_auto_completed_total
//   - fiscalops_engine_version_conflicts_total
//   - fiscalops_engine_generation_failures_total{reason}
//   - fiscalops_engine_generate_duration_seconds
//   - fiscalops_store_procedures{status}
//   - fiscalops_webhook_deliveries_total{result}
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ProceduresGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "procedures_generated_total",
				Help: "Procedures generated, by complexity tier.",
			}, []string{"complexity"}),
			TasksGenerated: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "tasks_generated_total",
				Help: "Tasks emitted by procedure generation.",
			}),
			TaskTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "task_transitions_total",
				Help: "Task status updates by previous and resulting status.",
			}, []string{"from", "to"}),
			TasksUnlocked: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "tasks_unlocked_total",
				Help: "Dependents unlocked by a completed predecessor.",
			}),
			TasksAutoCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "tasks_auto_completed_total",
				Help: "Tasks completed because their progress reached 100.",
			}),
			VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "version_conflicts_total",
				Help: "Optimistic concurrency conflicts on procedure writes.",
			}),
			GenerationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "engine",
				Name: "generation_failures_total",
				Help: "Procedure generations rejected, by reason.",
			}, []string{"reason"}),
			GenerateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: "engine",
				Name:    "generate_duration_seconds",
				Help:    "Time spent classifying and generating a procedure.",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			}),
			ProceduresByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "store",
				Name: "procedures",
				Help: "Stored procedures by status.",
			}, []string{"status"}),
			WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "webhook",
				Name: "deliveries_total",
				Help: "Webhook delivery attempts by result.",
			}, []string{"result"}),
		}
	})
	return global
}
