package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_polls_total",
		Help: "Completed full poll cycles.",
	})

	pollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_poll_failures_total",
		Help: "Full poll cycles that failed after retries.",
	})

	pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kumocloud_poll_duration_seconds",
		Help:    "Wall time of a full poll cycle.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	deviceRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_device_refresh_failures_total",
		Help: "Failed on-demand single-device refreshes.",
	})

	devicesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kumocloud_devices_tracked",
		Help: "Devices present in the latest snapshot.",
	})

	cachedCommands = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kumocloud_cached_commands",
		Help: "Command overrides waiting for cloud confirmation.",
	})

	commandsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_commands_sent_total",
		Help: "Individual command fields accepted by the cloud.",
	})

	commandsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_command_sends_failed_total",
		Help: "Command send requests rejected or errored.",
	})
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		pollsTotal,
		pollFailures,
		pollDuration,
		deviceRefreshFailures,
		devicesTracked,
		cachedCommands,
		commandsSent,
		commandsFailed,
	}
}
