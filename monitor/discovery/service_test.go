package discovery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendwatch/lendwatch/chains"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/db/sqlite"
	"github.com/lendwatch/lendwatch/events"
	"github.com/lendwatch/lendwatch/fetcher"
)

// fakeSource serves a mutable pool set per chain.
type fakeSource struct {
	pools map[uint64][]fetcher.Pool
	errs  map[uint64]error
}

func (f *fakeSource) Fetch(_ context.Context, chainID uint64) ([]fetcher.Pool, error) {
	if err := f.errs[chainID]; err != nil {
		return nil, err
	}
	return f.pools[chainID], nil
}

// recordingSink captures routed events in emission order.
type recordingSink struct {
	order         []string
	announcements []events.PoolAnnouncement
	launches      []events.ProtocolLaunch
}

func (r *recordingSink) HandlePoolAnnouncement(_ context.Context, ev events.PoolAnnouncement) error {
	r.order = append(r.order, "announcement")
	r.announcements = append(r.announcements, ev)
	return nil
}

func (r *recordingSink) HandleProtocolLaunch(_ context.Context, ev events.ProtocolLaunch) error {
	r.order = append(r.order, "launch")
	r.launches = append(r.launches, ev)
	return nil
}

func (r *recordingSink) HandleAPYChange(context.Context, events.APYChange) error {
	return nil
}

func (r *recordingSink) HandlePositionClosed(context.Context, events.PositionClosed) error {
	return nil
}

var (
	sonicChain = chains.Chain{ID: chains.SonicChainID, Name: "sonic"}
	monadChain = chains.Chain{ID: chains.MonadChainID, Name: "monad"}
)

func sonicPool(addr string, apy float64) fetcher.Pool {
	return fetcher.Pool{
		Address:          common.HexToAddress(addr),
		ChainID:          chains.SonicChainID,
		Name:             "Sonic USDC.e Pool",
		Symbol:           "lwUSDC",
		UnderlyingSymbol: "USDC.e",
		Decimals:         6,
		TVL:              1_000_000,
		APY:              apy,
	}
}

func newTestService(t *testing.T, source *fakeSource, sink events.Sink, scanChains ...chains.Chain) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	svc := New(context.Background(), &Config{
		Store:    store,
		Source:   source,
		Sink:     sink,
		Chains:   scanChains,
		Interval: time.Hour,
	})
	return svc, store
}

func TestScanCachesAndAnnouncesNewPool(t *testing.T) {
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.SonicChainID: {sonicPool("0xb001", 6.2)},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, sonicChain)

	svc.scan()

	active, err := store.ActivePools(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 6.2, active[0].APY)
	assert.Equal(t, strings.ToLower(common.HexToAddress("0xb001").Hex()), active[0].Address)

	require.Len(t, sink.announcements, 1)
	assert.False(t, sink.announcements[0].Reactivated)

	// APY history starts with the discovery sample.
	samples, err := store.SamplesSince(context.Background(), active[0].Key(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	// A second tick over the same set announces nothing new.
	svc.scan()
	assert.Len(t, sink.announcements, 1)
}

func TestScanDeactivatesUnobservedPools(t *testing.T) {
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.SonicChainID: {sonicPool("0xb001", 6.2), sonicPool("0xb002", 4.0)},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, sonicChain)
	ctx := context.Background()

	svc.scan()
	active, err := store.ActivePools(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// One pool disappears from the registry.
	source.pools[chains.SonicChainID] = []fetcher.Pool{sonicPool("0xb001", 6.2)}
	svc.scan()
	active, err = store.ActivePools(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// It coming back is a reactivation announcement, not a new-pool one.
	source.pools[chains.SonicChainID] = []fetcher.Pool{sonicPool("0xb001", 6.2), sonicPool("0xb002", 4.1)}
	svc.scan()
	require.Len(t, sink.announcements, 3)
	assert.True(t, sink.announcements[2].Reactivated)
}

func TestScanChainFailureLeavesCacheUntouched(t *testing.T) {
	monadPool := sonicPool("0xc001", 8.0)
	monadPool.ChainID = chains.MonadChainID
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.SonicChainID: {sonicPool("0xb001", 6.2)},
		chains.MonadChainID: {monadPool},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, sonicChain, monadChain)
	ctx := context.Background()

	svc.scan()
	active, err := store.ActivePools(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Sonic erroring out must not deactivate its cached pools, even though
	// the healthy Monad fetch makes the tick eligible for deactivation.
	source.errs = map[uint64]error{chains.SonicChainID: errors.New("connection refused")}
	svc.scan()
	active, err = store.ActivePools(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestScanFullOutageDoesNotMassDeactivate(t *testing.T) {
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.SonicChainID: {sonicPool("0xb001", 6.2)},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, sonicChain)
	ctx := context.Background()

	svc.scan()

	// Every chain answering with an empty set is indistinguishable from an
	// upstream outage, so nothing is deactivated.
	source.pools[chains.SonicChainID] = nil
	svc.scan()
	active, err := store.ActivePools(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMonadLaunchBroadcastPrecedesAnnouncement(t *testing.T) {
	pool := sonicPool("0xc001", 8.0)
	pool.ChainID = chains.MonadChainID
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.MonadChainID: {pool},
	}}
	sink := &recordingSink{}
	svc, _ := newTestService(t, source, sink, monadChain)

	svc.scan()

	require.Len(t, sink.launches, 1)
	assert.Equal(t, chains.MonadChainID, sink.launches[0].ChainID)
	require.Len(t, sink.announcements, 1)
	// The launch broadcast goes out before the pool announcement.
	assert.Equal(t, []string{"launch", "announcement"}, sink.order)
}

func TestMonadLaunchRecoversForAlreadyCachedPool(t *testing.T) {
	pool := sonicPool("0xc001", 8.0)
	pool.ChainID = chains.MonadChainID
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.MonadChainID: {pool},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, monadChain)
	ctx := context.Background()

	// A prior tick cached the pool but never got the broadcast into the
	// ledger (crash, or every delivery failed). The pool is unchanged on
	// this tick, yet the broadcast must still go out.
	now := time.Now().Truncate(time.Second)
	_, err := store.UpsertPool(ctx, &db.PoolRecord{
		Address:   strings.ToLower(common.HexToAddress("0xc001").Hex()),
		ChainID:   chains.MonadChainID,
		Name:      pool.Name,
		APY:       pool.APY,
		LastSeen:  now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	svc.scan()

	require.Len(t, sink.launches, 1)
	assert.Equal(t, chains.MonadChainID, sink.launches[0].ChainID)
	// The pool itself is neither new nor reactivated, so no announcement.
	assert.Empty(t, sink.announcements)
}

func TestMonadLaunchSuppressedAfterLedgerEntry(t *testing.T) {
	pool := sonicPool("0xc001", 8.0)
	pool.ChainID = chains.MonadChainID
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.MonadChainID: {pool},
	}}
	sink := &recordingSink{}
	svc, store := newTestService(t, source, sink, monadChain)
	ctx := context.Background()

	// A prior run already broadcast the launch.
	u, err := store.CreateUser(ctx, "chan-1")
	require.NoError(t, err)
	require.NoError(t, store.RecordNotification(ctx, u.ID, db.KindPoolAnnouncement,
		db.SubjectChain(chains.MonadChainID), ""))

	svc.scan()

	assert.Empty(t, sink.launches)
	assert.Len(t, sink.announcements, 1)
}

func TestNewPoolOnOtherChainDoesNotLaunch(t *testing.T) {
	source := &fakeSource{pools: map[uint64][]fetcher.Pool{
		chains.SonicChainID: {sonicPool("0xb001", 6.2)},
	}}
	sink := &recordingSink{}
	svc, _ := newTestService(t, source, sink, sonicChain)

	svc.scan()
	assert.Empty(t, sink.launches)
	assert.Len(t, sink.announcements, 1)
}
