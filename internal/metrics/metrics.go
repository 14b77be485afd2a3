// Package metrics registers and exposes Prometheus instrumentation for
// TimerPipe. Init must be called once at startup; before that every helper is
// a no-op, which keeps tests free of registration side effects.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "timerpipe_"

var (
	registerOnce sync.Once

	timersStarted   prometheus.Counter
	timersCompleted prometheus.Counter

	automationsFired *prometheus.CounterVec
	actionsExecuted  *prometheus.CounterVec

	notifyFailures *prometheus.CounterVec

	scheduledTasks prometheus.Gauge
)

// Init registers all TimerPipe metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		timersStarted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "timers_started_total",
				Help: "Total timers started, including autoplay advances",
			},
		)
		timersCompleted = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "timers_completed_total",
				Help: "Total timers that ran to zero",
			},
		)

		automationsFired = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "automations_fired_total",
				Help: "Total automation firings by trigger kind",
			},
			[]string{"trigger"},
		)
		actionsExecuted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "actions_executed_total",
				Help: "Total actions executed by action kind",
			},
			[]string{"action"},
		)

		notifyFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_failures_total",
				Help: "Total playback and notification delivery failures",
			},
			[]string{"collaborator"},
		)

		scheduledTasks = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "scheduled_tasks",
				Help: "Outstanding delayed and repeating task handles",
			},
		)

		prometheus.MustRegister(
			timersStarted,
			timersCompleted,
			automationsFired,
			actionsExecuted,
			notifyFailures,
			scheduledTasks,
		)
	})
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncTimerStarted increments the started-timer counter.
func IncTimerStarted() {
	if timersStarted != nil {
		timersStarted.Inc()
	}
}

// IncTimerCompleted increments the completed-timer counter.
func IncTimerCompleted() {
	if timersCompleted != nil {
		timersCompleted.Inc()
	}
}

// IncAutomationFired increments the automation counter for a trigger kind.
func IncAutomationFired(trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}
	if automationsFired != nil {
		automationsFired.WithLabelValues(trigger).Inc()
	}
}

// IncActionExecuted increments the action counter for an action kind.
func IncActionExecuted(action string) {
	if action == "" {
		action = "unknown"
	}
	if actionsExecuted != nil {
		actionsExecuted.WithLabelValues(action).Inc()
	}
}

// IncNotifyFailure increments the delivery failure counter for a collaborator.
func IncNotifyFailure(collaborator string) {
	if collaborator == "" {
		collaborator = "unknown"
	}
	if notifyFailures != nil {
		notifyFailures.WithLabelValues(collaborator).Inc()
	}
}

// SetScheduledTasks records the number of outstanding task handles.
func SetScheduledTasks(count int) {
	if scheduledTasks != nil {
		scheduledTasks.Set(float64(count))
	}
}
