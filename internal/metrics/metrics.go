package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prayerroom"

var (
	once sync.Once

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Booking change events handled, by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Access-control API calls, by operation and result.",
		},
		[]string{"operation", "result"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Access-control API call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	revocationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "revocation_failures_total",
			Help:      "Credentials that could not be revoked and may still open the door.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "enqueued_total",
			Help:      "Notifications enqueued, by template and result.",
		},
		[]string{"template", "result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read-through cache lookups, by result (hit, miss, stale).",
		},
		[]string{"result"},
	)
)

// Register registers the collectors. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			transitions,
			gatewayCalls,
			gatewayDuration,
			revocationFailures,
			notifications,
			cacheLookups,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveTransition(event, outcome string) {
	transitions.WithLabelValues(event, outcome).Inc()
}

func ObserveGatewayCall(operation string, started time.Time, err error) {
	gatewayCalls.WithLabelValues(operation, Result(err)).Inc()
	gatewayDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func IncRevocationFailure() {
	revocationFailures.Inc()
}

func ObserveNotification(template string, err error) {
	notifications.WithLabelValues(template, Result(err)).Inc()
}

func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
