package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendwatch/lendwatch/db"
)

func testPool(addr string, apy float64) *db.PoolRecord {
	now := time.Now().Truncate(time.Second)
	return &db.PoolRecord{
		Address:           addr,
		ChainID:           146,
		Name:              "Sonic USDC.e Pool",
		Symbol:            "lwUSDC",
		UnderlyingSymbol:  "USDC.e",
		UnderlyingAddress: "0xaaaa000000000000000000000000000000000001",
		Decimals:          6,
		TVL:               1_000_000,
		APY:               apy,
		Collaterals:       []string{"wS", "WETH"},
		LastSeen:          now,
		UpdatedAt:         now,
	}
}

func TestUpsertPoolNew(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	change, err := s.UpsertPool(ctx, testPool("0xpool1", 5.0))
	require.NoError(t, err)
	assert.True(t, change.New)
	assert.False(t, change.Reactivated)
	assert.False(t, change.APYChanged)

	got, err := s.PoolByKey(ctx, db.PoolKey{Address: "0xpool1", ChainID: 146})
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 5.0, got.APY)
	assert.Equal(t, []string{"wS", "WETH"}, got.Collaterals)
	assert.Equal(t, got.LastSeen, got.FirstSeen)
}

func TestUpsertPoolAPYChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPool(ctx, testPool("0xpool1", 5.0))
	require.NoError(t, err)

	change, err := s.UpsertPool(ctx, testPool("0xpool1", 6.2))
	require.NoError(t, err)
	assert.False(t, change.New)
	assert.False(t, change.Reactivated)
	assert.True(t, change.APYChanged)
	assert.Equal(t, 5.0, change.PreviousAPY)

	// Unchanged APY reports no change.
	change, err = s.UpsertPool(ctx, testPool("0xpool1", 6.2))
	require.NoError(t, err)
	assert.False(t, change.New)
	assert.False(t, change.APYChanged)
}

func TestUpsertPoolReactivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPool(ctx, testPool("0xpool1", 5.0))
	require.NoError(t, err)
	flipped, err := s.MarkPoolsInactive(ctx, 146, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	change, err := s.UpsertPool(ctx, testPool("0xpool1", 5.0))
	require.NoError(t, err)
	assert.False(t, change.New)
	assert.True(t, change.Reactivated)

	got, err := s.PoolByKey(ctx, db.PoolKey{Address: "0xpool1", ChainID: 146})
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestMarkPoolsInactiveScopedToChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPool(ctx, testPool("0xpool1", 5.0))
	require.NoError(t, err)
	_, err = s.UpsertPool(ctx, testPool("0xpool2", 4.0))
	require.NoError(t, err)
	other := testPool("0xpool3", 3.0)
	other.ChainID = 143
	_, err = s.UpsertPool(ctx, other)
	require.NoError(t, err)

	// Only the unobserved pool of chain 146 flips; chain 143 is untouched.
	flipped, err := s.MarkPoolsInactive(ctx, 146, []string{"0xpool1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), flipped)

	active, err := s.ActivePools(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	addrs := []string{active[0].Address, active[1].Address}
	assert.Contains(t, addrs, "0xpool1")
	assert.Contains(t, addrs, "0xpool3")
}

func TestAPYSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := db.PoolKey{Address: "0xpool1", ChainID: 146}
	base := time.Now().Truncate(time.Minute)

	for i, apy := range []float64{5.0, 5.1, 5.3} {
		require.NoError(t, s.AppendAPYSample(ctx, &db.APYSample{
			PoolAddress: key.Address,
			ChainID:     key.ChainID,
			SupplyAPY:   apy,
			TVL:         1_000_000,
			RecordedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	has, err := s.HasSampleSince(ctx, key, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.HasSampleSince(ctx, key, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, has)

	samples, err := s.SamplesSince(ctx, key, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 5.1, samples[0].SupplyAPY)
	assert.Equal(t, 5.3, samples[1].SupplyAPY)

	pruned, err := s.PruneSamples(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	samples, err = s.SamplesSince(ctx, key, base)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}
