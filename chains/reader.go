package chains

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const callTimeout = 10 * time.Second

// PoolMetadata is the normalized result of reading a pool contract.
// Amounts stay in raw on-chain units; rates stay in ray. Conversion to
// display units happens exactly once, in the fetcher.
type PoolMetadata struct {
	Name          string
	Symbol        string
	Underlying    common.Address
	Decimals      uint8
	TotalAssets   *big.Int
	TotalBorrows  *big.Int
	SupplyRateRay *big.Int
	BorrowRateRay *big.Int
}

// Reader performs uniform contract reads across all supported chains. All
// operations retry transient failures up to three times with exponential
// backoff and fail with a tagged *RPCError carrying the chain id.
type Reader struct {
	provider  *ClientProvider
	retryBase time.Duration
}

// NewReader builds a Reader over a fresh client cache.
func NewReader() *Reader {
	return &Reader{provider: NewClientProvider(), retryBase: retryBaseDelay}
}

// BlockNumber is the health probe: the latest block number of the chain.
func (r *Reader) BlockNumber(ctx context.Context, chainID uint64) (uint64, error) {
	var num uint64
	err := r.withRetry(ctx, chainID, "blockNumber", func() error {
		client, err := r.provider.Client(ctx, chainID)
		if err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		n, err := client.BlockNumber(callCtx)
		if err != nil {
			return wrapRPC(chainID, "blockNumber", err)
		}
		num = n
		return nil
	})
	return num, err
}

// ShareBalance reads the holder's share balance in the pool.
func (r *Reader) ShareBalance(ctx context.Context, chainID uint64, pool, holder common.Address) (*big.Int, error) {
	out, err := r.call(ctx, chainID, pool, vaultABI, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return firstBigInt(chainID, "balanceOf", out)
}

// ConvertToAssets asks the pool what the given share amount is worth in
// underlying units.
func (r *Reader) ConvertToAssets(ctx context.Context, chainID uint64, pool common.Address, shares *big.Int) (*big.Int, error) {
	out, err := r.call(ctx, chainID, pool, vaultABI, "convertToAssets", shares)
	if err != nil {
		return nil, err
	}
	return firstBigInt(chainID, "convertToAssets", out)
}

// TokenSymbol reads symbol() of an ERC-20 token contract.
func (r *Reader) TokenSymbol(ctx context.Context, chainID uint64, token common.Address) (string, error) {
	out, err := r.call(ctx, chainID, token, erc20ABI, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", wrapDecode(chainID, "symbol", errors.Errorf("unexpected type %T", out[0]))
	}
	return s, nil
}

// RegistryPools enumerates every pool address known to the protocol
// registry contract on the chain.
func (r *Reader) RegistryPools(ctx context.Context, chainID uint64, registry common.Address) ([]common.Address, error) {
	out, err := r.call(ctx, chainID, registry, registryABI, "getAllPools")
	if err != nil {
		return nil, err
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, wrapDecode(chainID, "getAllPools", errors.Errorf("unexpected type %T", out[0]))
	}
	return addrs, nil
}

// PoolMetadata reads the full metadata set of one pool contract. The rate
// and borrow views are optional on older pool deployments; a missing view
// yields a zero value rather than an error.
func (r *Reader) PoolMetadata(ctx context.Context, chainID uint64, pool common.Address) (*PoolMetadata, error) {
	md := &PoolMetadata{}

	out, err := r.call(ctx, chainID, pool, vaultABI, "asset")
	if err != nil {
		return nil, err
	}
	underlying, ok := out[0].(common.Address)
	if !ok {
		return nil, wrapDecode(chainID, "asset", errors.Errorf("unexpected type %T", out[0]))
	}
	md.Underlying = underlying

	if out, err = r.call(ctx, chainID, pool, vaultABI, "name"); err != nil {
		return nil, err
	} else if s, ok := out[0].(string); ok {
		md.Name = s
	}
	if out, err = r.call(ctx, chainID, pool, vaultABI, "symbol"); err != nil {
		return nil, err
	} else if s, ok := out[0].(string); ok {
		md.Symbol = s
	}

	if out, err = r.call(ctx, chainID, pool, vaultABI, "decimals"); err != nil {
		return nil, err
	} else if d, ok := out[0].(uint8); ok {
		md.Decimals = d
	}

	if out, err = r.call(ctx, chainID, pool, vaultABI, "totalAssets"); err != nil {
		return nil, err
	} else if md.TotalAssets, err = firstBigInt(chainID, "totalAssets", out); err != nil {
		return nil, err
	}

	md.SupplyRateRay = r.optionalBigInt(ctx, chainID, pool, "supplyRate")
	md.BorrowRateRay = r.optionalBigInt(ctx, chainID, pool, "borrowRate")
	md.TotalBorrows = r.optionalBigInt(ctx, chainID, pool, "totalBorrows")
	return md, nil
}

// optionalBigInt reads a view that not every pool implements. Reverts and
// decode failures degrade to zero; only the degradation is logged.
func (r *Reader) optionalBigInt(ctx context.Context, chainID uint64, pool common.Address, method string) *big.Int {
	out, err := r.call(ctx, chainID, pool, vaultABI, method)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"chain":  chainID,
			"pool":   pool.Hex(),
			"method": method,
		}).Debug("Optional pool view unavailable")
		return new(big.Int)
	}
	v, err := firstBigInt(chainID, method, out)
	if err != nil {
		return new(big.Int)
	}
	return v
}

// call packs a method call, executes it with retry and a per-attempt
// timeout, and unpacks the outputs.
func (r *Reader) call(ctx context.Context, chainID uint64, target common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, wrapDecode(chainID, method, err)
	}
	rpcCalls.WithLabelValues(fmt.Sprintf("%d", chainID)).Inc()

	var raw []byte
	err = r.withRetry(ctx, chainID, method, func() error {
		client, err := r.provider.Client(ctx, chainID)
		if err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		raw, err = client.CallContract(callCtx, ethereum.CallMsg{To: &target, Data: input}, nil)
		if err != nil {
			return wrapRPC(chainID, method, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, wrapDecode(chainID, method, err)
	}
	if len(out) == 0 {
		return nil, wrapDecode(chainID, method, errors.New("empty return data"))
	}
	return out, nil
}

func (r *Reader) withRetry(ctx context.Context, chainID uint64, _ string, fn func() error) error {
	err := withRetry(ctx, r.retryBase, fn)
	if err != nil {
		kind := Permanent
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			kind = rpcErr.Kind
		}
		rpcFailures.WithLabelValues(fmt.Sprintf("%d", chainID), kind.String()).Inc()
	}
	return err
}

func firstBigInt(chainID uint64, op string, out []interface{}) (*big.Int, error) {
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, wrapDecode(chainID, op, errors.Errorf("unexpected type %T", out[0]))
	}
	return v, nil
}
