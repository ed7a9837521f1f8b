package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signbridge_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayMessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_relay_messages_posted_total",
			Help: "Total messages posted to a relay",
		},
		[]string{"relay"}, // "transcription" or "gesture"
	)

	RelayMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_relay_messages_dropped_total",
			Help: "Messages truncated from the head of a full room log",
		},
		[]string{"relay"},
	)

	// Prediction metrics
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_predictions_total",
			Help: "Total prediction requests",
		},
		[]string{"mode", "outcome"}, // outcome: "ok", "invalid", "unavailable"
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signbridge_prediction_duration_seconds",
			Help:    "Classifier inference latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"mode"},
	)

	// Communication provider metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_provider_requests_total",
			Help: "Calls to the communication identity/rooms API",
		},
		[]string{"operation", "outcome"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"rule"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signbridge_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signbridge_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signbridge_database_latency_seconds",
			Help:    "Room directory query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
