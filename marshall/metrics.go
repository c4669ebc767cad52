package marshall

import (
	"github.com/eventzio/eventz"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promMarshals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventz_marshall_marshal_total",
		Help: "total number of values marshalled",
	})

	promUnmarshals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventz_marshall_unmarshal_total",
		Help: "total number of payloads unmarshalled",
	})

	promErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventz_marshall_errors_total",
		Help: "total number of failed operations",
	}, []string{"operation"})

	promPayloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventz_marshall_payload_bytes",
		Help:    "size of the marshalled payloads",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})
)

func init() {
	eventz.PromCollectors = append(eventz.PromCollectors,
		promMarshals, promUnmarshals, promErrors, promPayloadSize)
}
