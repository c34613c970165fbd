// Package fetcher enumerates the lending pools of the target protocol on
// each supported chain and returns them as normalized records. Chains where
// the protocol registry contract is deployed and reliable are enumerated
// through it; the rest use a hard-coded pool list with direct contract
// reads. The choice is a static design knob, not runtime inference.
package fetcher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lendwatch/lendwatch/chains"
)

var log = logrus.WithField("prefix", "fetcher")

// ChainReader is the slice of the chain-access layer the fetcher needs.
type ChainReader interface {
	PoolMetadata(ctx context.Context, chainID uint64, pool common.Address) (*chains.PoolMetadata, error)
	TokenSymbol(ctx context.Context, chainID uint64, token common.Address) (string, error)
	RegistryPools(ctx context.Context, chainID uint64, registry common.Address) ([]common.Address, error)
}

// Pool is one normalized lending pool record. TVL and Borrowed are in
// underlying display units; APY and Utilization are percentages rounded to
// two decimals.
type Pool struct {
	Address           common.Address
	ChainID           uint64
	Name              string
	Symbol            string
	UnderlyingSymbol  string
	UnderlyingAddress common.Address
	Decimals          uint8
	TVL               float64
	APY               float64
	Borrowed          float64
	Utilization       float64
	Collaterals       []string
}

// Fetcher reads pools per chain according to the strategy table.
type Fetcher struct {
	reader ChainReader
}

// New builds a Fetcher on top of a chain reader.
func New(reader ChainReader) *Fetcher {
	return &Fetcher{reader: reader}
}

// Fetch returns every pool of the protocol on the given chain. A pool that
// fails any required read is dropped from the batch with a warning; the
// batch itself only fails when enumeration fails.
func (f *Fetcher) Fetch(ctx context.Context, chainID uint64) ([]Pool, error) {
	plan, ok := chainPlans[chainID]
	if !ok {
		return nil, errors.Errorf("no fetch strategy for chain %d", chainID)
	}
	switch plan.strategy {
	case strategyRegistry:
		return f.fetchFromRegistry(ctx, chainID, plan.registry)
	case strategyStatic:
		return f.fetchStatic(ctx, chainID, plan.pools)
	default:
		return nil, errors.Errorf("unknown fetch strategy %d for chain %d", plan.strategy, chainID)
	}
}

func (f *Fetcher) fetchFromRegistry(ctx context.Context, chainID uint64, registry common.Address) ([]Pool, error) {
	addrs, err := f.reader.RegistryPools(ctx, chainID, registry)
	if err != nil {
		return nil, errors.Wrapf(err, "could not enumerate registry pools on chain %d", chainID)
	}
	pools := make([]Pool, 0, len(addrs))
	for _, addr := range addrs {
		p, err := f.readPool(ctx, chainID, addr, "", "", 0)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"chain": chainID,
				"pool":  addr.Hex(),
			}).Warn("Dropping pool from batch")
			continue
		}
		pools = append(pools, *p)
	}
	return pools, nil
}

func (f *Fetcher) fetchStatic(ctx context.Context, chainID uint64, entries []StaticPool) ([]Pool, error) {
	pools := make([]Pool, 0, len(entries))
	for _, entry := range entries {
		p, err := f.readPool(ctx, chainID, entry.Address, entry.Name, entry.Symbol, entry.Decimals)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"chain": chainID,
				"pool":  entry.Address.Hex(),
			}).Warn("Dropping pool from batch")
			continue
		}
		if len(entry.Collaterals) > 0 {
			p.Collaterals = append([]string(nil), entry.Collaterals...)
		}
		pools = append(pools, *p)
	}
	return pools, nil
}

// readPool performs the metadata reads for one pool and normalizes the
// result. Static list values act as fallbacks for missing on-chain fields.
func (f *Fetcher) readPool(ctx context.Context, chainID uint64, addr common.Address, fallbackName, fallbackSymbol string, fallbackDecimals uint8) (*Pool, error) {
	md, err := f.reader.PoolMetadata(ctx, chainID, addr)
	if err != nil {
		return nil, err
	}

	name := md.Name
	if name == "" {
		name = fallbackName
	}
	symbol := md.Symbol
	if symbol == "" {
		symbol = fallbackSymbol
	}
	decimals := md.Decimals
	if decimals == 0 {
		decimals = fallbackDecimals
	}

	underlyingSymbol, err := f.reader.TokenSymbol(ctx, chainID, md.Underlying)
	if err != nil || underlyingSymbol == "" {
		// Unknown underlying: fall back to the truncated hex address.
		underlyingSymbol = shortAddress(md.Underlying)
	}

	tvl := unitsFromRaw(md.TotalAssets, decimals)
	borrowed := unitsFromRaw(md.TotalBorrows, decimals)
	p := &Pool{
		Address:           addr,
		ChainID:           chainID,
		Name:              name,
		Symbol:            symbol,
		UnderlyingSymbol:  underlyingSymbol,
		UnderlyingAddress: md.Underlying,
		Decimals:          decimals,
		TVL:               tvl,
		APY:               PercentFromRay(md.SupplyRateRay),
		Borrowed:          borrowed,
		Utilization:       utilization(borrowed, tvl),
	}
	return p, nil
}

func utilization(borrowed, tvl float64) float64 {
	if tvl <= 0 {
		return 0
	}
	return round2(borrowed / tvl * 100)
}
