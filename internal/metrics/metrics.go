// Package metrics provides Prometheus instrumentation for the chat
// relay: connection and message throughput counters plus assistant
// invocation outcomes and latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks the current number of WebSocket connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts broadcast chat events, labeled by event type:
	// "user", "bot", or "system".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_messages_total",
		Help: "Total number of chat events broadcast",
	}, []string{"type"})

	// AssistantInvocations counts assistant trigger outcomes, labeled
	// "completed", "rate_limited", or "failed".
	AssistantInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_assistant_invocations_total",
		Help: "Total number of assistant invocation attempts by outcome",
	}, []string{"outcome"})

	// ClassifierResults counts classification outcomes, labeled "match",
	// "no_match", or "error". Classification always runs for user
	// messages, so this also measures question volume.
	ClassifierResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_classifier_results_total",
		Help: "Total number of classifier runs by result",
	}, []string{"result"})

	// CompletionLatency records assistant completion latency in seconds.
	CompletionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatrelay_completion_latency_seconds",
		Help:    "Assistant completion call latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		MessagesTotal,
		AssistantInvocations,
		ClassifierResults,
		CompletionLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
