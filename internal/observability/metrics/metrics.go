package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_messages_sent_total",
			Help: "Total number of direct messages accepted.",
		},
		[]string{"service", "transport", "result"},
	)

	SocketEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_socket_events_total",
			Help: "Total number of inbound WebSocket events.",
		},
		[]string{"service", "event", "result"},
	)

	SocketConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_socket_connections",
			Help: "Currently connected WebSocket clients.",
		},
		[]string{"service"},
	)

	SessionCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_cache_lookups_total",
			Help: "Session cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)

	CallParticipants = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calls_live_participants",
			Help: "Live participants across connected channel calls.",
		},
		[]string{"service"},
	)

	MembershipMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_mutations_total",
			Help: "Membership mutations by operation and result.",
		},
		[]string{"service", "op", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)
	MessagesSentTotal = MessagesSentTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	SocketEventsTotal = SocketEventsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	SocketConnections = SocketConnections.MustCurryWith(prometheus.Labels{"service": serviceName})
	SessionCacheLookupsTotal = SessionCacheLookupsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	CallParticipants = CallParticipants.MustCurryWith(prometheus.Labels{"service": serviceName})
	MembershipMutationsTotal = MembershipMutationsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		MessagesSentTotal,
		SocketEventsTotal,
		SocketConnections,
		SessionCacheLookupsTotal,
		CallParticipants,
		MembershipMutationsTotal,
	)
}
