package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slack_relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Ingress
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_events_received_total",
			Help: "Slack events accepted by ingress",
		},
		[]string{"kind", "transport"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_events_dropped_total",
			Help: "Slack events ignored before a turn started",
		},
		[]string{"reason"}, // "duplicate", "self", "unsupported", "bad_signature"
	)

	// Turns
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_turns_total",
			Help: "Turns handled, by outcome",
		},
		[]string{"status", "error_kind"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slack_relay_turn_duration_seconds",
			Help:    "Time from event dispatch to reply update",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_completion_tokens_total",
			Help: "Tokens consumed by the completion provider",
		},
		[]string{"type"}, // "prompt" or "completion"
	)

	// URL augmentation
	URLFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_url_fetches_total",
			Help: "URL content fetches, by result",
		},
		[]string{"result"}, // "ok" or "error"
	)

	URLFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slack_relay_url_fetch_duration_seconds",
			Help:    "URL content fetch latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	// Queue
	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slack_relay_queue_messages_total",
			Help: "Stream messages by worker outcome",
		},
		[]string{"outcome"}, // "acked", "requeued", "dlq", "malformed", "reclaimed"
	)
)

const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)
