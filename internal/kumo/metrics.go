package kumo

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kumocloud_api_requests_total",
			Help: "Authenticated API requests by method and status",
		},
		[]string{"method", "status"},
	)
	requestsRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kumocloud_api_rate_limited_total",
			Help: "Responses with HTTP 429 from the cloud",
		},
	)
	refreshSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kumocloud_token_refresh_success_total",
			Help: "Successful access token refreshes",
		},
	)
	refreshFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kumocloud_token_refresh_failure_total",
			Help: "Failed access token refreshes",
		},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kumocloud_token_valid",
			Help: "Access token validity (1=valid, 0=invalid)",
		},
	)
)

// MetricsCollectors returns collectors for the API client.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		requestsTotal,
		requestsRateLimited,
		refreshSuccess,
		refreshFailure,
		tokenValid,
	}
}
