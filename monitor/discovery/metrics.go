package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_pool_scans_total",
		Help: "Completed pool-discovery ticks.",
	})
	scanFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_pool_scan_failures_total",
		Help: "Per-chain fetch failures that skipped the chain for a tick.",
	}, []string{"chain"})
	poolsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_pools_observed_total",
		Help: "Pool records observed across all discovery ticks.",
	})
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendwatch_discovery_events_total",
		Help: "Change events handed to the notification router, by kind.",
	}, []string{"kind"})
)
