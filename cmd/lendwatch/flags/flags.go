// Package flags defines the command line flags of the lendwatch monitor.
package flags

import (
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus level.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info=default, warn, error, fatal, panic)",
		Value: "info",
	}
	// DataDirFlag defines where the database lives.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the database",
		Value: DefaultDataDir(),
	}
	// LogFormatFlag selects the log output format.
	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format (text, json)",
		Value: "text",
	}
	// LogFileNameFlag writes logs to a file in addition to stderr.
	LogFileNameFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to the given file as well",
	}
	// ChatTokenFlag is the outbound chat bot credential. Required.
	ChatTokenFlag = &cli.StringFlag{
		Name:    "chat-bot-token",
		Usage:   "Bot token for the outbound chat gateway",
		EnvVars: []string{"CHAT_BOT_TOKEN"},
	}
	// MonitoringHostFlag is the metrics listen host.
	MonitoringHostFlag = &cli.StringFlag{
		Name:  "monitoring-host",
		Usage: "Host for the Prometheus metrics endpoint",
		Value: "127.0.0.1",
	}
	// MonitoringPortFlag is the metrics listen port.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port for the Prometheus metrics endpoint",
		Value: 9090,
	}
	// DisableMonitoringFlag turns the metrics endpoint off.
	DisableMonitoringFlag = &cli.BoolFlag{
		Name:  "disable-monitoring",
		Usage: "Disable the metrics endpoint",
	}
	// PoolScanIntervalFlag overrides the pool-discovery period.
	PoolScanIntervalFlag = &cli.DurationFlag{
		Name:    "pool-scan-interval",
		Usage:   "Interval between pool-discovery scans",
		EnvVars: []string{"POOL_SCAN_INTERVAL"},
		Value:   15 * time.Minute,
	}
	// PositionScanIntervalFlag overrides the position-scan period.
	PositionScanIntervalFlag = &cli.DurationFlag{
		Name:    "position-scan-interval",
		Usage:   "Interval between position scans",
		EnvVars: []string{"POSITION_SCAN_INTERVAL"},
		Value:   15 * time.Minute,
	}
	// MinorAPYDeltaFlag overrides the minor APY shift threshold.
	MinorAPYDeltaFlag = &cli.Float64Flag{
		Name:    "minor-apy-delta",
		Usage:   "APY shift in percentage points that triggers a notification",
		EnvVars: []string{"MINOR_APY_DELTA"},
		Value:   0.5,
	}
	// MajorAPYDeltaFlag overrides the major APY shift threshold.
	MajorAPYDeltaFlag = &cli.Float64Flag{
		Name:    "major-apy-delta",
		Usage:   "APY shift in percentage points flagged as major",
		EnvVars: []string{"MAJOR_APY_DELTA"},
		Value:   2.0,
	}
	// DustSharesFlag overrides the dust threshold, in raw share units.
	DustSharesFlag = &cli.StringFlag{
		Name:    "dust-shares",
		Usage:   "Share balance at or below which a holding counts as zero",
		EnvVars: []string{"DUST_SHARES"},
		Value:   "1000000000",
	}
	// AppBaseURLFlag overrides the deep-link base of notifications.
	AppBaseURLFlag = &cli.StringFlag{
		Name:  "app-base-url",
		Usage: "Base URL for deep links attached to notifications",
		Value: "https://app.lendwatch.xyz",
	}
	// ClearDBFlag wipes the database before starting.
	ClearDBFlag = &cli.BoolFlag{
		Name:  "clear-db",
		Usage: "Delete the database on start-up",
	}
)

// DefaultDataDir returns ~/.lendwatch, falling back to the working
// directory when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".lendwatch")
}
