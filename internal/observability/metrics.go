package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool_client"

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "api_requests_total", Help: "Backend API calls by operation and outcome"},
		[]string{"op", "outcome"},
	)
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Backend API call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	PollTicksTotal    = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "poll_ticks_total", Help: "Polling ticks executed"}, []string{"task"})
	PollFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "poll_failures_total", Help: "Polling ticks that failed and were ignored"}, []string{"task"})
	PollTasksActive   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "poll_tasks_active", Help: "Polling tasks currently scheduled"})

	SessionAuthenticated = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "session_authenticated", Help: "1 when the session holds a validated token"})
	UnreadMessages       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "unread_messages", Help: "Last polled unread message count"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "View updates shipped to the event backend"}, []string{"backend", "outcome"})
	MirrorMessagesTotal  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "mirror_messages_total", Help: "View updates consumed by the redis mirror"}, []string{"outcome"})
	WSSubscribers        = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_subscribers", Help: "Mounted websocket views"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total gateway HTTP requests handled"},
		[]string{"method", "view", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Gateway HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "view", "status"},
	)
)
