// Package main defines the lendwatch command line entry point: a 24/7
// monitor of the protocol's lending pools and its users' positions across
// every supported chain.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/lendwatch/lendwatch/cmd/lendwatch/flags"
	"github.com/lendwatch/lendwatch/io/logs"
	"github.com/lendwatch/lendwatch/node"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.VerbosityFlag,
	flags.DataDirFlag,
	flags.LogFormatFlag,
	flags.LogFileNameFlag,
	flags.ChatTokenFlag,
	flags.MonitoringHostFlag,
	flags.MonitoringPortFlag,
	flags.DisableMonitoringFlag,
	flags.PoolScanIntervalFlag,
	flags.PositionScanIntervalFlag,
	flags.MinorAPYDeltaFlag,
	flags.MajorAPYDeltaFlag,
	flags.DustSharesFlag,
	flags.AppBaseURLFlag,
	flags.ClearDBFlag,
}

func startMonitor(cliCtx *cli.Context) error {
	monitor, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	monitor.Start()
	return nil
}

func main() {
	app := cli.App{
		Name:   "lendwatch",
		Usage:  "monitors lending pools and user positions across every supported chain",
		Action: startMonitor,
		Flags:  appFlags,
		Before: func(cliCtx *cli.Context) error {
			// A .env file in the working directory provides the same knobs as
			// real environment variables, with the environment winning.
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				log.WithError(err).Warn("Could not load .env file")
			}

			format := cliCtx.String(flags.LogFormatFlag.Name)
			switch format {
			case "text":
				formatter := new(prefixed.TextFormatter)
				formatter.TimestampFormat = "2006-01-02 15:04:05"
				formatter.FullTimestamp = true
				// If persistent log files are written, we disable the log
				// formatting colors so the file is greppable.
				formatter.DisableColors = cliCtx.String(flags.LogFileNameFlag.Name) != ""
				logrus.SetFormatter(formatter)
			case "json":
				logrus.SetFormatter(&logrus.JSONFormatter{})
			default:
				return fmt.Errorf("unknown log format %s", format)
			}

			level, err := logrus.ParseLevel(cliCtx.String(flags.VerbosityFlag.Name))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)

			if logFileName := cliCtx.String(flags.LogFileNameFlag.Name); logFileName != "" {
				if err := logs.ConfigurePersistentLogging(logFileName); err != nil {
					log.WithError(err).Error("Failed to configure file logging")
					return err
				}
			}
			return nil
		},
	}

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("Runtime panic: %v\n%v", x, string(debugStack()))
			panic(x)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func debugStack() []byte {
	buf := make([]byte, 1024*1024)
	return buf[:runtime.Stack(buf, true)]
}
