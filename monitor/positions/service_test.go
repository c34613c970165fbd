package positions

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/db/sqlite"
	"github.com/lendwatch/lendwatch/events"
)

const (
	testChainID  = uint64(146)
	testWallet   = "0x6Ab5d5E96aC59f66baB57450275cc16961219796"
	testPoolAddr = "0x3C1Cb427D20F15563aDa8C249E71db76d7183B6c"
)

// fakeBalanceReader serves scripted share balances and converts shares to
// assets one to one.
type fakeBalanceReader struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	errs     map[string]error
}

func balanceKey(pool, holder common.Address) string {
	return strings.ToLower(pool.Hex()) + "|" + strings.ToLower(holder.Hex())
}

func (f *fakeBalanceReader) set(pool, holder string, shares *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[string]*big.Int)
	}
	f.balances[balanceKey(common.HexToAddress(pool), common.HexToAddress(holder))] = shares
}

func (f *fakeBalanceReader) fail(pool, holder string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[balanceKey(common.HexToAddress(pool), common.HexToAddress(holder))] = err
}

func (f *fakeBalanceReader) ShareBalance(_ context.Context, _ uint64, pool, holder common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := balanceKey(pool, holder)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if b, ok := f.balances[key]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeBalanceReader) ConvertToAssets(_ context.Context, _ uint64, _ common.Address, shares *big.Int) (*big.Int, error) {
	return new(big.Int).Set(shares), nil
}

// positionSink records APY changes and closures.
type positionSink struct {
	apyChanges []events.APYChange
	closures   []events.PositionClosed
}

func (p *positionSink) HandlePoolAnnouncement(context.Context, events.PoolAnnouncement) error {
	return nil
}

func (p *positionSink) HandleProtocolLaunch(context.Context, events.ProtocolLaunch) error {
	return nil
}

func (p *positionSink) HandleAPYChange(_ context.Context, ev events.APYChange) error {
	p.apyChanges = append(p.apyChanges, ev)
	return nil
}

func (p *positionSink) HandlePositionClosed(_ context.Context, ev events.PositionClosed) error {
	p.closures = append(p.closures, ev)
	return nil
}

func seedPool(t *testing.T, store *sqlite.Store, apy float64) {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	_, err := store.UpsertPool(context.Background(), &db.PoolRecord{
		Address:          strings.ToLower(testPoolAddr),
		ChainID:          testChainID,
		Name:             "Sonic wS Pool",
		Symbol:           "lwWS",
		UnderlyingSymbol: "wS",
		Decimals:         18,
		TVL:              1_000_000,
		APY:              apy,
		LastSeen:         now,
		UpdatedAt:        now,
	})
	require.NoError(t, err)
}

func newTestService(t *testing.T, apy float64) (*Service, *sqlite.Store, *fakeBalanceReader, *positionSink) {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	ctx := context.Background()
	_, err = store.CreateUser(ctx, "chan-1")
	require.NoError(t, err)
	require.NoError(t, store.SetWallet(ctx, "chan-1", testWallet))
	seedPool(t, store, apy)

	reader := &fakeBalanceReader{}
	sink := &positionSink{}
	svc := New(ctx, &Config{Store: store, Reader: reader, Sink: sink, Interval: time.Hour})
	return svc, store, reader, sink
}

// shares constructs a balance comfortably above the dust threshold.
func shares(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestScanCreatesPositionSilently(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))

	svc.scan()

	active, err := store.ActivePositions(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 6.0, active[0].InitialAPY)
	assert.Equal(t, 6.0, active[0].CurrentAPY)
	assert.Equal(t, 0, shares(5).Cmp(active[0].Shares))
	assert.Equal(t, 5.0, active[0].Value)

	// Opening a position is not an APY change.
	assert.Empty(t, sink.apyChanges)
	assert.Empty(t, sink.closures)
}

func TestScanEmitsMinorAPYShift(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))
	svc.scan()

	seedPool(t, store, 5.3)
	svc.scan()

	require.Len(t, sink.apyChanges, 1)
	ev := sink.apyChanges[0]
	assert.Equal(t, 6.0, ev.Old)
	assert.Equal(t, 5.3, ev.New)
	assert.False(t, ev.Major)
	assert.Equal(t, "Sonic wS Pool", ev.PoolName)
}

func TestScanAPYThresholds(t *testing.T) {
	tests := []struct {
		name      string
		from, to  float64
		wantEvent bool
		wantMajor bool
	}{
		{"below minor", 6.0, 5.51, false, false},
		{"exactly minor", 6.0, 5.5, true, false},
		{"between", 6.0, 4.5, true, false},
		{"exactly major", 6.0, 4.0, true, true},
		{"beyond major", 6.0, 1.0, true, true},
		{"upward shift", 6.0, 6.5, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, reader, sink := newTestService(t, tt.from)
			reader.set(testPoolAddr, testWallet, shares(5))
			svc.scan()

			seedPool(t, store, tt.to)
			svc.scan()

			if !tt.wantEvent {
				assert.Empty(t, sink.apyChanges)
				return
			}
			require.Len(t, sink.apyChanges, 1)
			assert.Equal(t, tt.wantMajor, sink.apyChanges[0].Major)
		})
	}
}

func TestScanClosesDustedPosition(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))
	svc.scan()

	// Balance collapses below the dust threshold.
	reader.set(testPoolAddr, testWallet, big.NewInt(1))
	svc.scan()

	require.Len(t, sink.closures, 1)
	assert.Equal(t, "Sonic wS Pool", sink.closures[0].PoolName)
	active, err := store.ActivePositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	// A closed position never produces a second closure event.
	svc.scan()
	assert.Len(t, sink.closures, 1)
}

func TestClosureWinsOverAPYChange(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))
	svc.scan()

	// The APY collapses in the same tick the wallet exits the pool; only
	// the closure is reported.
	seedPool(t, store, 1.0)
	reader.set(testPoolAddr, testWallet, new(big.Int))
	svc.scan()

	assert.Len(t, sink.closures, 1)
	assert.Empty(t, sink.apyChanges)
}

func TestFailedReadDoesNotClosePosition(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))
	svc.scan()

	reader.fail(testPoolAddr, testWallet, errors.New("connection refused"))
	svc.scan()

	assert.Empty(t, sink.closures)
	active, err := store.ActivePositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestPoolLeavingScopeDoesNotClosePosition(t *testing.T) {
	svc, store, reader, sink := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))
	svc.scan()

	// The pool dropping out of the cache removes it from the scan set; its
	// positions must not be mistaken for exits.
	_, err := store.MarkPoolsInactive(context.Background(), testChainID, nil)
	require.NoError(t, err)
	svc.scan()

	assert.Empty(t, sink.closures)
	active, err := store.ActivePositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestScanRecordsAPYSample(t *testing.T) {
	svc, store, reader, _ := newTestService(t, 6.0)
	reader.set(testPoolAddr, testWallet, shares(5))

	svc.scan()
	svc.scan()

	key := db.PoolKey{Address: strings.ToLower(testPoolAddr), ChainID: testChainID}
	samples, err := store.SamplesSince(context.Background(), key, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, samples)
}
