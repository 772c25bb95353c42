package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every syncpeer collector plus the Go runtime and process collectors.
var Registry = prometheus.NewRegistry()

var (
	// TransportConnected records whether the message channel is connected to its broker.
	// 1 = connected, 0 = disconnected or reconnecting.
	TransportConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncpeer_transport_connected",
			Help: "Whether the message channel is connected to its broker (1=connected).",
		},
	)

	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncpeer_messages_published_total",
			Help: "Messages published, by topic and result.",
		},
		[]string{"topic", "result"}, // result: success/failed
	)

	MessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncpeer_messages_consumed_total",
			Help: "Messages received, by topic and outcome.",
		},
		[]string{"topic", "outcome"}, // outcome: handled/duplicate/malformed/failed
	)

	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncpeer_commands_sent_total",
			Help: "Commands dispatched by the console, by type and result.",
		},
		[]string{"type", "result"},
	)

	ExecutionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncpeer_executions_finished_total",
			Help: "Test executions that reached a terminal status.",
		},
		[]string{"status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncpeer_job_duration_seconds",
			Help:    "Wall time of commands run by the agent.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"status"},
	)

	ClockOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncpeer_clock_offset_seconds",
			Help: "Last measured offset between the reference time and the local clock.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TransportConnected,
		MessagesPublished,
		MessagesConsumed,
		CommandsSent,
		ExecutionsFinished,
		JobDuration,
		ClockOffset,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Result maps a boolean outcome to the label values used above.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
