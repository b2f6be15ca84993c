// Package metrics exposes Prometheus collectors for the rate board.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "goldboard"

var (
	// Registry holds the application-specific collectors.
	Registry = prometheus.NewRegistry()

	feedSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_total",
			Help:      "Feed samples received, by source.",
		},
		[]string{"source"},
	)

	feedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Feed fetch, decode or connection errors, by source.",
		},
		[]string{"source"},
	)

	feedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Live feed reconnect attempts.",
		},
	)

	finalPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "board",
			Name:      "final_price",
			Help:      "Latest displayed final price, by purity.",
		},
		[]string{"purity"},
	)

	configWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "writes_total",
			Help:      "Retailer config persistence attempts, by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		feedSamples,
		feedErrors,
		feedReconnects,
		finalPrice,
		configWrites,
		httpRequests,
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFeedSample counts a received sample.
func RecordFeedSample(source string) {
	feedSamples.WithLabelValues(source).Inc()
}

// RecordFeedError counts a feed failure.
func RecordFeedError(source string) {
	feedErrors.WithLabelValues(source).Inc()
}

// RecordReconnect counts a live feed reconnect.
func RecordReconnect() {
	feedReconnects.Inc()
}

// SetFinalPrice publishes the displayed price for purity.
func SetFinalPrice(purity string, value float64) {
	finalPrice.WithLabelValues(purity).Set(value)
}

// RecordConfigWrite counts a persistence attempt.
func RecordConfigWrite(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	configWrites.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a served request.
func RecordHTTPRequest(method, route, status string) {
	httpRequests.WithLabelValues(method, route, status).Inc()
}
