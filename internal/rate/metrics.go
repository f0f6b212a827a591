package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	waitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kumocloud_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the request cool-down window",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		},
	)
	acquisitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kumocloud_rate_limit_acquisitions_total",
			Help: "Requests admitted through the rate limiter",
		},
	)
)

// MetricsCollectors exposes the shared rate-limiter collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		waitSeconds,
		acquisitions,
	}
}
