package fetcher

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// rayDecimals is the fixed-point scale of on-chain rate oracles.
const rayDecimals = 27

// PercentFromRay converts a ray (10^27) fixed-point annual rate into a
// percentage rounded to two decimals. A nil or zero rate yields 0.
func PercentFromRay(ray *big.Int) float64 {
	if ray == nil || ray.Sign() == 0 {
		return 0
	}
	pct := decimal.NewFromBigInt(ray, -rayDecimals).Mul(decimal.NewFromInt(100))
	f, _ := pct.Round(2).Float64()
	return f
}

// unitsFromRaw converts a raw on-chain amount into underlying display units
// using the token's decimals. Conversion happens exactly once, here.
func unitsFromRaw(raw *big.Int, decimals uint8) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	f, _ := decimal.NewFromBigInt(raw, -int32(decimals)).Float64()
	return f
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// shortAddress renders a checksum address truncated for display, used when
// a token exposes no readable symbol.
func shortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}
