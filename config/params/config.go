// Package params defines the tunable configuration for the lendwatch
// monitoring engine. Values are process-wide and overridable once at
// start-up from command line flags.
package params

import (
	"math/big"
	"time"
)

// MonitorConfig contains the knobs for the discovery and position
// schedulers and the notification router.
type MonitorConfig struct {
	// PoolScanInterval is the period of the pool-discovery scheduler.
	PoolScanInterval time.Duration
	// PositionScanInterval is the period of the position scheduler.
	PositionScanInterval time.Duration
	// MinorAPYDelta is the APY shift, in percentage points, at or above
	// which an APY change event is emitted for a tracked position.
	MinorAPYDelta float64
	// MajorAPYDelta is the shift, in percentage points, at or above which
	// an APY change is flagged as major.
	MajorAPYDelta float64
	// DustShares is the share balance at or below which a holding is
	// treated as zero.
	DustShares *big.Int

	// AlertMatchCooldown is the minimum interval between two alert-match
	// notifications for the same user and pool.
	AlertMatchCooldown time.Duration
	// APYChangeCooldown is the minimum interval between two APY-change
	// notifications for the same position.
	APYChangeCooldown time.Duration

	// ChainTickBudget is the soft per-chain time budget within one tick.
	// Outstanding work is cancelled once it is exhausted.
	ChainTickBudget time.Duration
	// ShutdownGrace is how long in-flight ticks are given to drain on
	// process shutdown.
	ShutdownGrace time.Duration
	// SampleRetention is how long APY history samples are kept before the
	// pruning pass removes them.
	SampleRetention time.Duration

	// RPCConcurrency bounds concurrent outbound RPC calls per chain.
	RPCConcurrency int64

	// AppBaseURL is the base of deep links attached to notifications.
	AppBaseURL string
}

func mainnetMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		PoolScanInterval:     15 * time.Minute,
		PositionScanInterval: 15 * time.Minute,
		MinorAPYDelta:        0.5,
		MajorAPYDelta:        2.0,
		DustShares:           big.NewInt(1_000_000_000),
		AlertMatchCooldown:   24 * time.Hour,
		APYChangeCooldown:    6 * time.Hour,
		ChainTickBudget:      5 * time.Minute,
		ShutdownGrace:        30 * time.Second,
		SampleRetention:      30 * 24 * time.Hour,
		RPCConcurrency:       4,
		AppBaseURL:           "https://app.lendwatch.xyz",
	}
}

var monitorConfig = mainnetMonitorConfig()

// Get retrieves the active monitor configuration.
func Get() *MonitorConfig {
	return monitorConfig
}

// Override replaces the active monitor configuration. Expected to run once,
// before any service starts.
func Override(c *MonitorConfig) {
	monitorConfig = c
}

// Copy returns a value copy of the active configuration, convenient for
// flag-driven overrides.
func Copy() MonitorConfig {
	return *monitorConfig
}
