// Package discovery implements the pool-discovery scheduler: a periodic
// scan that fetches every pool on every supported chain, diffs the results
// against the cache, records APY history, and emits announcement events.
package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lendwatch/lendwatch/async"
	"github.com/lendwatch/lendwatch/chains"
	"github.com/lendwatch/lendwatch/config/params"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/events"
	"github.com/lendwatch/lendwatch/fetcher"
)

var log = logrus.WithField("prefix", "discovery")

// PoolSource enumerates a chain's pools; the fetcher implements it.
type PoolSource interface {
	Fetch(ctx context.Context, chainID uint64) ([]fetcher.Pool, error)
}

// Config holds the discovery service dependencies.
type Config struct {
	Store    db.Database
	Source   PoolSource
	Sink     events.Sink
	Chains   []chains.Chain
	Interval time.Duration
}

// Service is the pool-discovery scheduler.
type Service struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *Config
	scanErr error
	mu      sync.Mutex
}

// New builds the service. Chains and Interval default to the supported
// chain set and the configured scan interval.
func New(ctx context.Context, cfg *Config) *Service {
	if len(cfg.Chains) == 0 {
		cfg.Chains = chains.Supported
	}
	if cfg.Interval == 0 {
		cfg.Interval = params.Get().PoolScanInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{ctx: ctx, cancel: cancel, cfg: cfg}
}

// Start runs an immediate scan and then schedules periodic ones.
func (s *Service) Start() {
	log.WithField("interval", s.cfg.Interval).Info("Starting pool discovery")
	go s.scan()
	async.RunEvery(s.ctx, s.cfg.Interval, s.scan)
}

// Stop cancels in-flight work.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status reports the error of the last scan, if any.
func (s *Service) Status() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanErr
}

type chainResult struct {
	chain chains.Chain
	pools []fetcher.Pool
	err   error
}

// scan is one discovery tick. Chains fetch in parallel; the cache diff and
// event emission run serially afterwards so event ordering is stable.
func (s *Service) scan() {
	start := time.Now()
	results := s.fetchAll()

	var observedTotal, newTotal int
	anyNonEmpty := false
	var announcements []events.PoolAnnouncement
	launchChains := make(map[uint64]bool)

	for _, res := range results {
		if res.err != nil {
			scanFailures.WithLabelValues(res.chain.Name).Inc()
			log.WithError(res.err).WithField("chain", res.chain.Name).Warn("Chain fetch failed, skipping for this tick")
			continue
		}
		if len(res.pools) > 0 {
			anyNonEmpty = true
		}
		for i := range res.pools {
			pool := &res.pools[i]
			rec := recordFromPool(pool, start)
			change, err := s.cfg.Store.UpsertPool(s.ctx, rec)
			if err != nil {
				s.setErr(err)
				log.WithError(err).WithField("pool", rec.Address).Error("Could not upsert pool")
				continue
			}
			observedTotal++
			// Any observed active pool on a launch-watched chain arms the
			// broadcast check; the ledger gate keeps it one-shot even when a
			// prior tick crashed between caching the pool and broadcasting.
			if rec.ChainID == chains.MonadChainID {
				launchChains[rec.ChainID] = true
			}
			if err := s.cfg.Store.AppendAPYSample(s.ctx, &db.APYSample{
				PoolAddress: rec.Address,
				ChainID:     rec.ChainID,
				SupplyAPY:   rec.APY,
				TVL:         rec.TVL,
				RecordedAt:  start,
			}); err != nil {
				log.WithError(err).WithField("pool", rec.Address).Warn("Could not append APY sample")
			}
			if change.New || change.Reactivated {
				newTotal++
				ev, err := events.NewPoolAnnouncement(*rec, change.Reactivated)
				if err != nil {
					log.WithError(err).Error("Dropping malformed announcement")
					continue
				}
				announcements = append(announcements, ev)
			}
		}
	}

	// Deactivation only runs when at least one chain produced pools, so a
	// full RPC outage cannot mass-deactivate the cache. Failed chains keep
	// their rows untouched either way.
	if anyNonEmpty {
		for _, res := range results {
			if res.err != nil {
				continue
			}
			observed := make([]string, 0, len(res.pools))
			for i := range res.pools {
				observed = append(observed, strings.ToLower(res.pools[i].Address.Hex()))
			}
			flipped, err := s.cfg.Store.MarkPoolsInactive(s.ctx, res.chain.ID, observed)
			if err != nil {
				s.setErr(err)
				log.WithError(err).WithField("chain", res.chain.Name).Error("Could not mark pools inactive")
				continue
			}
			if flipped > 0 {
				log.WithFields(logrus.Fields{"chain": res.chain.Name, "pools": flipped}).Info("Deactivated unobserved pools")
			}
		}
	}

	// First-ever active pool on a launch-watched chain triggers a one-shot
	// broadcast before the ordinary announcements.
	for chainID := range launchChains {
		seen, err := s.cfg.Store.HasChainAnnouncement(s.ctx, chainID)
		if err != nil {
			s.setErr(err)
			continue
		}
		if seen {
			continue
		}
		ev, err := events.NewProtocolLaunch(chainID)
		if err != nil {
			continue
		}
		eventsEmitted.WithLabelValues("protocol_launch").Inc()
		if err := s.cfg.Sink.HandleProtocolLaunch(s.ctx, ev); err != nil {
			log.WithError(err).WithField("chain", chainID).Error("Could not route launch broadcast")
		}
	}
	for _, ev := range announcements {
		eventsEmitted.WithLabelValues("pool_announcement").Inc()
		if err := s.cfg.Sink.HandlePoolAnnouncement(s.ctx, ev); err != nil {
			log.WithError(err).WithField("pool", ev.Pool.Address).Error("Could not route announcement")
		}
	}

	scans.Inc()
	poolsObserved.Add(float64(observedTotal))
	s.setErr(nil)
	log.WithFields(logrus.Fields{
		"pools":    observedTotal,
		"new":      newTotal,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Pool scan complete")
}

// fetchAll runs the per-chain fetches in parallel, each bounded by the
// chain tick budget.
func (s *Service) fetchAll() []chainResult {
	results := make([]chainResult, len(s.cfg.Chains))
	var g errgroup.Group
	for i, chain := range s.cfg.Chains {
		i, chain := i, chain
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(s.ctx, params.Get().ChainTickBudget)
			defer cancel()
			pools, err := s.cfg.Source.Fetch(fetchCtx, chain.ID)
			results[i] = chainResult{chain: chain, pools: pools, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	s.scanErr = err
	s.mu.Unlock()
}

func recordFromPool(p *fetcher.Pool, now time.Time) *db.PoolRecord {
	return &db.PoolRecord{
		Address:           strings.ToLower(p.Address.Hex()),
		ChainID:           p.ChainID,
		Name:              p.Name,
		Symbol:            p.Symbol,
		UnderlyingSymbol:  p.UnderlyingSymbol,
		UnderlyingAddress: strings.ToLower(p.UnderlyingAddress.Hex()),
		Decimals:          p.Decimals,
		TVL:               p.TVL,
		APY:               p.APY,
		Borrowed:          p.Borrowed,
		Utilization:       p.Utilization,
		Collaterals:       p.Collaterals,
		Active:            true,
		LastSeen:          now,
		UpdatedAt:         now,
	}
}
