package fetcher

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func ray(digits string) *big.Int {
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		panic("bad ray literal " + digits)
	}
	return v
}

func TestPercentFromRay(t *testing.T) {
	tests := []struct {
		name string
		ray  *big.Int
		want float64
	}{
		{"nil", nil, 0},
		{"zero", big.NewInt(0), 0},
		// 0.05 * 10^27 is a 5% annual rate.
		{"five percent", ray("50000000000000000000000000"), 5.0},
		{"six point two", ray("62000000000000000000000000"), 6.2},
		// 0.031415... rounds to 3.14%.
		{"rounded down", ray("31415926535897932384626433"), 3.14},
		{"rounded up", ray("31450000000000000000000000"), 3.15},
		{"over 100 percent", ray("1500000000000000000000000000"), 150.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentFromRay(tt.ray))
		})
	}
}

func TestUnitsFromRaw(t *testing.T) {
	assert.Equal(t, float64(0), unitsFromRaw(nil, 6))
	assert.Equal(t, 1.5, unitsFromRaw(big.NewInt(1_500_000), 6))
	assert.Equal(t, 2.0, unitsFromRaw(new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)), 18))
}

func TestUtilization(t *testing.T) {
	assert.Equal(t, float64(0), utilization(100, 0))
	assert.Equal(t, 50.0, utilization(50, 100))
	assert.Equal(t, 33.33, utilization(1, 3))
}

func TestShortAddress(t *testing.T) {
	addr := common.HexToAddress("0x6Ab5d5E96aC59f66baB57450275cc16961219796")
	short := shortAddress(addr)
	assert.Equal(t, "0x6Ab5", short[:6])
	assert.Equal(t, "9796", short[len(short)-4:])
}
