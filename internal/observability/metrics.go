package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values shared by the console engine.
const (
	KindTyped = "typed"
	KindText  = "text"

	OutcomeHandled       = "handled"
	OutcomeUnprocessable = "unprocessable"
	OutcomeHandlerError  = "handler_error"

	PeerAccepted = "accepted"
	PeerRejected = "rejected"
)

var (
	registerOnce sync.Once

	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpconsole",
			Subsystem: "session",
			Name:      "connections_total",
			Help:      "Accepted console connections by peer admission result.",
		},
		[]string{"result"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tcpconsole",
			Subsystem: "session",
			Name:      "active",
			Help:      "Console sessions currently running.",
		},
	)
	SessionEnds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpconsole",
			Subsystem: "session",
			Name:      "ends_total",
			Help:      "Finished console sessions by terminal state.",
		},
		[]string{"state"},
	)
	Frames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tcpconsole",
			Subsystem: "frame",
			Name:      "received_total",
			Help:      "Frames decoded from console connections.",
		},
	)
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpconsole",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Dispatched console commands by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpconsole",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Console command dispatch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpconsole",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total ops HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpconsole",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Ops HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Sessions,
			ActiveSessions,
			SessionEnds,
			Frames,
			Commands,
			DispatchDuration,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordPeer(result string) {
	RegisterMetrics()
	Sessions.WithLabelValues(result).Inc()
}

func RecordSessionStart() {
	RegisterMetrics()
	ActiveSessions.Inc()
}

func RecordSessionEnd(state string) {
	RegisterMetrics()
	ActiveSessions.Dec()
	SessionEnds.WithLabelValues(state).Inc()
}

func RecordFrame() {
	RegisterMetrics()
	Frames.Inc()
}

func RecordCommand(kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	Commands.WithLabelValues(kind, outcome).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
