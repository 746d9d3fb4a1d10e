// Package metrics exposes gateway counters and gauges in Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hw-control/hgc/internal/state"
)

// Registry owns every gateway collector.
type Registry struct {
	reg *prometheus.Registry

	taskRuns       *prometheus.CounterVec
	channelFresh   *prometheus.GaugeVec
	stateVersion   prometheus.Gauge
	mqttPublishes  *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
}

// New creates the registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hgc_task_runs_total",
			Help: "Scheduler task executions by outcome.",
		}, []string{"task", "result"}),
		channelFresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hgc_channel_fresh",
			Help: "1 when the channel's last poll succeeded, 0 otherwise.",
		}, []string{"channel"}),
		stateVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hgc_state_version",
			Help: "Monotonic version of the telemetry state store.",
		}),
		mqttPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hgc_mqtt_publishes_total",
			Help: "Telemetry publishes by outcome.",
		}, []string{"result"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hgc_command_latency_seconds",
			Help:    "Actuation command latency by action and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action", "result"}),
	}

	reg.MustRegister(r.taskRuns, r.channelFresh, r.stateVersion, r.mqttPublishes, r.commandLatency)
	return r
}

// Handler serves the scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveTaskRun counts one scheduler task execution.
func (r *Registry) ObserveTaskRun(task string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.taskRuns.WithLabelValues(task, result).Inc()
}

// ObserveCommand records one actuation outcome.
func (r *Registry) ObserveCommand(action string, latency time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.commandLatency.WithLabelValues(action, result).Observe(latency.Seconds())
}

// ObservePublish counts one telemetry publish attempt.
func (r *Registry) ObservePublish(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.mqttPublishes.WithLabelValues(result).Inc()
}

// UpdateSnapshot refreshes the per-channel health gauges and the version
// gauge from a store snapshot.
func (r *Registry) UpdateSnapshot(snap state.Snapshot) {
	r.stateVersion.Set(float64(snap.Version))
	for id, ch := range snap.Channels {
		v := 0.0
		if ch.Health == state.Fresh {
			v = 1.0
		}
		r.channelFresh.WithLabelValues(string(id)).Set(v)
	}
}
