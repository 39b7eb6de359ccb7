package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestDuration tracks HTTP request latency by method, endpoint
	// and status.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "msx_bridge_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msx_bridge_api_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msx_bridge_api_active_connections",
		Help: "In-flight HTTP requests",
	})

	// ActivePlayers tracks registered virtual players.
	ActivePlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msx_bridge_active_players",
		Help: "Registered virtual players",
	})

	// ActiveStreams tracks live audio deliveries.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msx_bridge_active_streams",
		Help: "Live audio deliveries",
	})

	// PushClients tracks connected websocket push channels.
	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msx_bridge_push_clients",
		Help: "Connected websocket push channels",
	})

	// StreamedBytes counts encoded audio bytes delivered to TVs.
	StreamedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msx_bridge_streamed_bytes_total",
		Help: "Encoded audio bytes delivered",
	})

	// PlayersReaped counts idle players removed by the reaper.
	PlayersReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msx_bridge_players_reaped_total",
		Help: "Idle players removed by the reaper",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
