package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hostsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browser_inventory_hosts_total",
			Help: "Hosts that reached a terminal collection state, by status.",
		},
		[]string{"status"},
	)

	recordsCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "browser_inventory_records_total",
			Help: "Extension records collected from all hosts.",
		})

	hostsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_inventory_hosts_in_flight",
			Help: "Hosts currently being collected.",
		})

	collectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browser_inventory_host_collection_seconds",
			Help:    "Time taken to collect one host.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		})
)
