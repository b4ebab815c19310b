// ABOUTME: Prometheus collector for turns, tools, background tasks, and impulses
// ABOUTME: Every method is nil-safe so components may run without metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome and status labels
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusDropped = "dropped"
)

// Collector holds all duet metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	busyRejections  *prometheus.CounterVec
	toolCallsTotal  *prometheus.CounterVec
	backgroundTasks *prometheus.CounterVec
	impulsesTotal   *prometheus.CounterVec
	modelCallsTotal *prometheus.CounterVec
}

// NewCollector creates a collector registered on a fresh registry
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed turns",
		}, []string{"mode", "outcome"}),
		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn processing duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		busyRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "busy_rejections_total",
			Help:      "Entries rejected because the brain was busy",
		}, []string{"entry"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		backgroundTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Detached background tasks by task and status",
		}, []string{"task", "status"}),
		impulsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "impulses_total",
			Help:      "Scheduler impulses by type and outcome",
		}, []string{"type", "outcome"}),
		modelCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by purpose and status",
		}, []string{"purpose", "status"}),
	}
}

// Registry exposes the underlying registry (for tests and custom exporters)
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler serving the registry
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordTurn records one finished turn
func (c *Collector) RecordTurn(mode, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(mode, outcome).Inc()
	c.turnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordBusy records a single-flight rejection
func (c *Collector) RecordBusy(entry string) {
	if c == nil {
		return
	}
	c.busyRejections.WithLabelValues(entry).Inc()
}

// RecordToolCall records one tool execution
func (c *Collector) RecordToolCall(tool, status string) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordBackground records the end of a detached task
func (c *Collector) RecordBackground(task, status string) {
	if c == nil {
		return
	}
	c.backgroundTasks.WithLabelValues(task, status).Inc()
}

// RecordImpulse records how an impulse was handled
func (c *Collector) RecordImpulse(kind, outcome string) {
	if c == nil {
		return
	}
	c.impulsesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordModelCall records one model call
func (c *Collector) RecordModelCall(purpose, status string) {
	if c == nil {
		return
	}
	c.modelCallsTotal.WithLabelValues(purpose, status).Inc()
}
