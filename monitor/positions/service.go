// Package positions implements the position scheduler: a periodic scan of
// every wallet-holding user's share balances across the cached pools,
// upserting positions, detecting closures, and flagging material APY
// shifts.
package positions

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/lendwatch/lendwatch/async"
	"github.com/lendwatch/lendwatch/config/params"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/events"
)

var log = logrus.WithField("prefix", "positions")

// BalanceReader is the slice of the chain-access layer the scheduler needs.
type BalanceReader interface {
	ShareBalance(ctx context.Context, chainID uint64, pool, holder common.Address) (*big.Int, error)
	ConvertToAssets(ctx context.Context, chainID uint64, pool common.Address, shares *big.Int) (*big.Int, error)
}

// Config holds the position service dependencies.
type Config struct {
	Store    db.Database
	Reader   BalanceReader
	Sink     events.Sink
	Interval time.Duration
}

// Service is the position scheduler.
type Service struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *Config
	scanErr error
	mu      sync.Mutex
}

// New builds the service.
func New(ctx context.Context, cfg *Config) *Service {
	if cfg.Interval == 0 {
		cfg.Interval = params.Get().PositionScanInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Service{ctx: ctx, cancel: cancel, cfg: cfg}
}

// Start runs an immediate scan and then schedules periodic ones.
func (s *Service) Start() {
	log.WithField("interval", s.cfg.Interval).Info("Starting position scanner")
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

type posKey struct {
	userID  int64
	address string
	chainID uint64
}

// observation is one (user, pool) balance read. A failed read leaves the
// position untouched rather than closing it.
type observation struct {
	user  *db.User
	pool  *db.PoolRecord
	share *big.Int
	value *big.Int
	err   error
}

// scan is one position tick. Balance reads fan out in parallel per chain
// with bounded concurrency; position upserts and event emission run
// serially afterwards, sequenced per position.
func (s *Service) scan() {
	start := time.Now()
	cfg := params.Get()

	users, err := s.cfg.Store.UsersWithWallet(s.ctx)
	if err != nil {
		s.setErr(err)
		log.WithError(err).Error("Could not load users")
		return
	}
	pools, err := s.cfg.Store.ActivePools(s.ctx)
	if err != nil {
		s.setErr(err)
		log.WithError(err).Error("Could not load pool cache")
		return
	}
	if len(users) == 0 || len(pools) == 0 {
		s.setErr(nil)
		return
	}

	observations := s.readBalances(users, pools, cfg.RPCConcurrency)

	existing, err := s.cfg.Store.ActivePositions(s.ctx)
	if err != nil {
		s.setErr(err)
		log.WithError(err).Error("Could not load active positions")
		return
	}

	seen := make(map[posKey]bool)
	unknown := make(map[posKey]bool)
	var apyEvents []events.APYChange

	for _, obs := range observations {
		key := posKey{obs.user.ID, obs.pool.Address, obs.pool.ChainID}
		if obs.err != nil {
			unknown[key] = true
			log.WithError(obs.err).WithFields(logrus.Fields{
				"user": obs.user.ID, "pool": obs.pool.Address,
			}).Warn("Balance read failed, skipping position this tick")
			continue
		}
		// Dust balances count as zero and fall through to closure below.
		if obs.share == nil || obs.share.Cmp(cfg.DustShares) <= 0 {
			continue
		}

		pos := &db.Position{
			UserID:       obs.user.ID,
			PoolAddress:  obs.pool.Address,
			ChainID:      obs.pool.ChainID,
			Shares:       obs.share,
			Value:        valueUnits(obs.value, obs.pool.Decimals),
			CurrentAPY:   obs.pool.APY,
			NetAPY:       obs.pool.APY,
			LastAPYCheck: start,
			UpdatedAt:    start,
		}
		prev, err := s.cfg.Store.UpsertPosition(s.ctx, pos)
		if err != nil {
			s.setErr(err)
			log.WithError(err).WithField("pool", obs.pool.Address).Error("Could not upsert position")
			unknown[key] = true
			continue
		}
		seen[key] = true
		positionsObserved.Inc()

		if prev == nil {
			// Fresh positions pin initial APY to current and emit nothing.
			continue
		}
		delta := obs.pool.APY - prev.CurrentAPY
		if math.Abs(delta) >= cfg.MinorAPYDelta {
			ev, err := events.NewAPYChange(withCurrent(prev, pos), obs.pool.Name,
				prev.CurrentAPY, obs.pool.APY, math.Abs(delta) >= cfg.MajorAPYDelta)
			if err != nil {
				log.WithError(err).WithField("pool", obs.pool.Address).Error("Dropping malformed APY change")
				continue
			}
			apyEvents = append(apyEvents, ev)
		}

		s.sampleOnce(obs.pool, start)
	}

	// Pre-existing active positions not observed this tick are closed.
	// Positions whose reads failed, or whose user or pool fell out of this
	// tick's scan set, are left untouched.
	inScope := scanScope(users, pools)
	for _, pos := range existing {
		key := posKey{pos.UserID, pos.PoolAddress, pos.ChainID}
		if seen[key] || unknown[key] || !inScope[key] {
			continue
		}
		if err := s.cfg.Store.DeactivatePosition(s.ctx, pos.ID); err != nil {
			s.setErr(err)
			log.WithError(err).WithField("position", pos.ID).Error("Could not deactivate position")
			continue
		}
		positionsClosed.Inc()
		name := pos.PoolAddress
		if p, err := s.cfg.Store.PoolByKey(s.ctx, pos.Key()); err == nil {
			name = p.Name
		}
		ev, err := events.NewPositionClosed(*pos, name)
		if err != nil {
			log.WithError(err).WithField("position", pos.ID).Error("Dropping malformed closure")
			continue
		}
		if err := s.cfg.Sink.HandlePositionClosed(s.ctx, ev); err != nil {
			log.WithError(err).WithField("position", pos.ID).Error("Could not route closure")
		}
	}

	// Closures above win over APY changes: a closed position never appears
	// in seen, so its APY event was never queued.
	for _, ev := range apyEvents {
		apyChanges.Inc()
		if err := s.cfg.Sink.HandleAPYChange(s.ctx, ev); err != nil {
			log.WithError(err).WithField("position", ev.Position.ID).Error("Could not route APY change")
		}
	}

	scans.Inc()
	s.setErr(nil)
	log.WithFields(logrus.Fields{
		"users":    len(users),
		"pools":    len(pools),
		"held":     len(seen),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Position scan complete")
}

// readBalances fans out one balance read per (user, pool) with bounded
// concurrency per chain. The balance read and the value conversion of one
// position are sequenced on the same goroutine.
func (s *Service) readBalances(users []*db.User, pools []*db.PoolRecord, rpcLimit int64) []*observation {
	byChain := make(map[uint64][]*db.PoolRecord)
	for _, p := range pools {
		byChain[p.ChainID] = append(byChain[p.ChainID], p)
	}

	var mu sync.Mutex
	var observations []*observation
	var g errgroup.Group
	for chainID, chainPools := range byChain {
		chainID, chainPools := chainID, chainPools
		g.Go(func() error {
			sem := semaphore.NewWeighted(rpcLimit)
			var cg errgroup.Group
			for _, user := range users {
				for _, pool := range chainPools {
					user, pool := user, pool
					cg.Go(func() error {
						if err := sem.Acquire(s.ctx, 1); err != nil {
							return nil
						}
						defer sem.Release(1)
						obs := s.readOne(chainID, user, pool)
						mu.Lock()
						observations = append(observations, obs)
						mu.Unlock()
						return nil
					})
				}
			}
			return cg.Wait()
		})
	}
	_ = g.Wait()
	return observations
}

func (s *Service) readOne(chainID uint64, user *db.User, pool *db.PoolRecord) *observation {
	obs := &observation{user: user, pool: pool}
	holder := common.HexToAddress(user.Wallet)
	poolAddr := common.HexToAddress(pool.Address)

	shares, err := s.cfg.Reader.ShareBalance(s.ctx, chainID, poolAddr, holder)
	if err != nil {
		obs.err = err
		return obs
	}
	obs.share = shares
	if shares.Sign() > 0 {
		value, err := s.cfg.Reader.ConvertToAssets(s.ctx, chainID, poolAddr, shares)
		if err != nil {
			obs.err = err
			return obs
		}
		obs.value = value
	}
	return obs
}

// sampleOnce appends an APY sample unless the pool already has one for the
// current minute bucket, typically written by the discovery tick.
func (s *Service) sampleOnce(pool *db.PoolRecord, now time.Time) {
	bucket := now.Truncate(time.Minute)
	has, err := s.cfg.Store.HasSampleSince(s.ctx, pool.Key(), bucket)
	if err != nil || has {
		return
	}
	_ = s.cfg.Store.AppendAPYSample(s.ctx, &db.APYSample{
		PoolAddress: pool.Address,
		ChainID:     pool.ChainID,
		SupplyAPY:   pool.APY,
		TVL:         pool.TVL,
		RecordedAt:  now,
	})
}

func (s *Service) setErr(err error) {
	s.mu.Lock()
	s.scanErr = err
	s.mu.Unlock()
}

// scanScope marks every (user, pool) pair covered by this tick, so stale
// positions of removed pools or wallet-less users are not spuriously
// closed.
func scanScope(users []*db.User, pools []*db.PoolRecord) map[posKey]bool {
	scope := make(map[posKey]bool, len(users)*len(pools))
	for _, u := range users {
		for _, p := range pools {
			scope[posKey{u.ID, p.Address, p.ChainID}] = true
		}
	}
	return scope
}

func withCurrent(prev *db.Position, cur *db.Position) db.Position {
	pos := *prev
	pos.Shares = cur.Shares
	pos.Value = cur.Value
	pos.CurrentAPY = cur.CurrentAPY
	pos.NetAPY = cur.NetAPY
	pos.LastAPYCheck = cur.LastAPYCheck
	pos.UpdatedAt = cur.UpdatedAt
	return pos
}

func valueUnits(raw *big.Int, decimals uint8) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, -int32(decimals)).Float64()
	return f
}
