package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	publishes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_mqtt_publishes_total",
		Help: "Device state messages delivered to the broker.",
	})

	publishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_mqtt_publish_failures_total",
		Help: "Device state messages that failed to deliver.",
	})
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		publishes,
		publishFailures,
	}
}
