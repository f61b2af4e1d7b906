// Package metrics holds the Prometheus collectors exported by cloudwarden.
//
// Collectors are package-level so any component can record into them; they
// are registered on a private registry the first time Registry is called.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudwarden"

var (
	once     sync.Once
	registry *prometheus.Registry

	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Account scans by provider and terminal status.",
	}, []string{"provider", "status"})

	ScanDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall clock duration of one account scan.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"provider"})

	FindingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Newly persisted findings by severity.",
	}, []string{"severity"})

	FindingsDeduplicatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_deduplicated_total",
		Help:      "Findings skipped because an open duplicate exists in the window.",
	})

	AlertsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_published_total",
		Help:      "Alert events handed to the event sink.",
	})

	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped because a subscriber buffer was full.",
	})

	FindingPersistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "finding_persist_errors_total",
		Help:      "Findings that could not be written.",
	})
)

func initRegistry() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(
		ScansTotal,
		ScanDurationSeconds,
		FindingsTotal,
		FindingsDeduplicatedTotal,
		AlertsPublishedTotal,
		EventsDroppedTotal,
		FindingPersistErrorsTotal,
	)
}

// Registry returns the process registry, creating it on first use.
func Registry() *prometheus.Registry {
	once.Do(initRegistry)
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
