package tokens

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	remotePersistOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kumocloud_token_remote_persist_ok",
		Help: "1 if the last blob mirror write succeeded, 0 otherwise.",
	})

	persistFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kumocloud_token_persist_failures_total",
		Help: "Failed writes of the local token state file.",
	})
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		remotePersistOK,
		persistFailure,
	}
}
