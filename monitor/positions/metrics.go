package positions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_position_scans_total",
		Help: "Completed position-scan ticks.",
	})
	positionsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_positions_observed_total",
		Help: "Non-dust positions observed across all scans.",
	})
	positionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_positions_closed_total",
		Help: "Positions deactivated after their balance dropped to dust.",
	})
	apyChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendwatch_apy_changes_total",
		Help: "Material APY shifts detected on tracked positions.",
	})
)
