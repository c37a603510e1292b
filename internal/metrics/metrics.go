// Package metrics registers the Prometheus metrics used by the proxy.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// TileRequestsTotal counts tile requests labelled by transport
	// ("redirect", "proxied") and outcome ("success", "error", "rejected").
	TileRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexprox_tile_requests_total",
			Help: "Total number of tile requests handled by the proxy.",
		},
		[]string{"transport", "status"},
	)

	// DocumentRequestsTotal counts capabilities/general passthrough requests
	// by outcome.
	DocumentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexprox_document_requests_total",
			Help: "Total number of capabilities/document requests handled by the proxy.",
		},
		[]string{"status"},
	)

	// UpstreamDuration observes vendor round-trip latency in seconds.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hexprox_upstream_duration_seconds",
			Help:    "Vendor request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// TokenRefreshes counts vendor bearer-token fetches by outcome.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexprox_token_refreshes_total",
			Help: "Total vendor token endpoint calls.",
		},
		[]string{"status"},
	)

	// CredentialRefreshes counts secret-store credential-set fetches by
	// trigger ("cold", "background") and outcome.
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexprox_credential_refreshes_total",
			Help: "Total credential-set fetches from the secret store.",
		},
		[]string{"trigger", "status"},
	)

	// RateLimitRejections counts requests rejected by the per-key rate
	// limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexprox_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
		[]string{"key_type"},
	)
)
