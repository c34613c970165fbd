// Package node assembles the lendwatch monitor: it owns the store handle
// and the per-chain client cache, registers every service in explicit
// order, and manages the process lifecycle.
package node

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/lendwatch/lendwatch/async"
	"github.com/lendwatch/lendwatch/chains"
	"github.com/lendwatch/lendwatch/cmd/lendwatch/flags"
	"github.com/lendwatch/lendwatch/config/params"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/db/sqlite"
	"github.com/lendwatch/lendwatch/fetcher"
	"github.com/lendwatch/lendwatch/io/logs"
	"github.com/lendwatch/lendwatch/monitor/discovery"
	"github.com/lendwatch/lendwatch/monitor/positions"
	"github.com/lendwatch/lendwatch/monitoring/prometheus"
	"github.com/lendwatch/lendwatch/notify"
	"github.com/lendwatch/lendwatch/runtime"
)

var log = logrus.WithField("prefix", "node")

// MonitorNode handles the lifecycle of the whole monitoring engine.
type MonitorNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	services *runtime.ServiceRegistry
	store    db.Database
	lock     sync.RWMutex
	stop     chan struct{}
}

// New validates configuration, opens the store, and registers every
// service in dependency order.
func New(cliCtx *cli.Context) (*MonitorNode, error) {
	if err := configure(cliCtx); err != nil {
		return nil, err
	}
	dumpConfig(cliCtx)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	n := &MonitorNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	token := cliCtx.String(flags.ChatTokenFlag.Name)
	if token == "" {
		cancel()
		return nil, errors.New("chat bot token is required (set CHAT_BOT_TOKEN or --chat-bot-token)")
	}

	store, err := sqlite.NewStore(cliCtx.String(flags.DataDirFlag.Name))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "could not open store")
	}
	if cliCtx.Bool(flags.ClearDBFlag.Name) {
		log.Warn("Clearing database")
		if err := store.ClearDB(); err != nil {
			cancel()
			return nil, errors.Wrap(err, "could not clear database")
		}
		if store, err = sqlite.NewStore(cliCtx.String(flags.DataDirFlag.Name)); err != nil {
			cancel()
			return nil, errors.Wrap(err, "could not reopen store")
		}
	}
	n.store = store

	reader := chains.NewReader()
	router := notify.NewRouter(store, notify.NewTelegramGateway(token))

	discoverySvc := discovery.New(ctx, &discovery.Config{
		Store:    store,
		Source:   fetcher.New(reader),
		Sink:     router,
		Interval: cliCtx.Duration(flags.PoolScanIntervalFlag.Name),
	})
	if err := n.services.RegisterService(discoverySvc); err != nil {
		cancel()
		return nil, err
	}

	positionSvc := positions.New(ctx, &positions.Config{
		Store:    store,
		Reader:   reader,
		Sink:     router,
		Interval: cliCtx.Duration(flags.PositionScanIntervalFlag.Name),
	})
	if err := n.services.RegisterService(positionSvc); err != nil {
		cancel()
		return nil, err
	}

	if err := n.services.RegisterService(chains.NewProber(ctx, reader, nil, 0)); err != nil {
		cancel()
		return nil, err
	}

	if !cliCtx.Bool(flags.DisableMonitoringFlag.Name) {
		addr := fmt.Sprintf("%s:%d", cliCtx.String(flags.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name))
		if err := n.services.RegisterService(prometheus.NewService(addr, n.services)); err != nil {
			cancel()
			return nil, err
		}
	}

	// Housekeeping: prune APY history past retention, sweep expired
	// conversation state.
	async.RunEvery(ctx, 6*time.Hour, func() {
		cutoff := time.Now().Add(-params.Get().SampleRetention)
		if n, err := store.PruneSamples(ctx, cutoff); err != nil {
			log.WithError(err).Warn("Could not prune APY samples")
		} else if n > 0 {
			log.WithField("samples", n).Debug("Pruned APY history")
		}
		if _, err := store.ExpireConversations(ctx, time.Now()); err != nil {
			log.WithError(err).Warn("Could not expire conversation state")
		}
	})

	return n, nil
}

// configure folds flag overrides into the process-wide monitor config.
func configure(cliCtx *cli.Context) error {
	cfg := params.Copy()
	cfg.PoolScanInterval = cliCtx.Duration(flags.PoolScanIntervalFlag.Name)
	cfg.PositionScanInterval = cliCtx.Duration(flags.PositionScanIntervalFlag.Name)
	cfg.MinorAPYDelta = cliCtx.Float64(flags.MinorAPYDeltaFlag.Name)
	cfg.MajorAPYDelta = cliCtx.Float64(flags.MajorAPYDeltaFlag.Name)
	cfg.AppBaseURL = cliCtx.String(flags.AppBaseURLFlag.Name)
	if cfg.PoolScanInterval <= 0 || cfg.PositionScanInterval <= 0 {
		return errors.New("scan intervals must be positive")
	}
	if cfg.MinorAPYDelta < 0 || cfg.MajorAPYDelta < cfg.MinorAPYDelta {
		return errors.New("APY thresholds must satisfy 0 <= minor <= major")
	}
	dust, ok := new(big.Int).SetString(cliCtx.String(flags.DustSharesFlag.Name), 10)
	if !ok || dust.Sign() < 0 {
		return errors.Errorf("invalid dust threshold %q", cliCtx.String(flags.DustSharesFlag.Name))
	}
	cfg.DustShares = dust
	params.Override(&cfg)
	return nil
}

// dumpConfig logs which environment knobs are set, without values.
func dumpConfig(cliCtx *cli.Context) {
	log.WithFields(logrus.Fields{
		"datadir":            cliCtx.String(flags.DataDirFlag.Name),
		"poolScanInterval":   cliCtx.Duration(flags.PoolScanIntervalFlag.Name),
		"positionInterval":   cliCtx.Duration(flags.PositionScanIntervalFlag.Name),
		"chatTokenSet":       cliCtx.String(flags.ChatTokenFlag.Name) != "",
		"monitoringDisabled": cliCtx.Bool(flags.DisableMonitoringFlag.Name),
	}).Info("Configuration")
	for _, chain := range chains.Supported {
		explicit := os.Getenv(chain.EndpointEnvVar()) != ""
		log.WithFields(logrus.Fields{
			"chain":    chain.Name,
			"id":       chain.ID,
			"explicit": explicit,
			"endpoint": logs.MaskCredentialsLogging(chain.Endpoint()),
		}).Info("Chain endpoint")
	}
}

// Start kicks off every registered service and blocks until shutdown.
func (n *MonitorNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the monitor node")
	}()

	<-stop
}

// Close stops every service, giving in-flight ticks the shutdown grace to
// drain, then closes the store.
func (n *MonitorNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping lendwatch monitor")
	done := make(chan struct{})
	go func() {
		n.services.StopAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(params.Get().ShutdownGrace):
		log.Warn("Shutdown grace exceeded, cancelling in-flight work")
	}
	n.cancel()
	if err := n.store.Close(); err != nil {
		log.WithError(err).Error("Could not close store")
	}
	close(n.stop)
}
