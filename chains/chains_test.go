package chains

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByID(t *testing.T) {
	c, ok := ByID(MonadChainID)
	require.True(t, ok)
	assert.Equal(t, "monad", c.Name)

	_, ok = ByID(999999)
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Arbitrum", DisplayName(ArbitrumChainID))
	assert.Equal(t, "chain 31337", DisplayName(31337))
}

func TestEndpointOverride(t *testing.T) {
	c, ok := ByID(SonicChainID)
	require.True(t, ok)
	assert.Equal(t, "RPC_URL_SONIC", c.EndpointEnvVar())
	assert.Equal(t, c.DefaultRPC, c.Endpoint())

	t.Setenv("RPC_URL_SONIC", "http://localhost:8545")
	assert.Equal(t, "http://localhost:8545", c.Endpoint())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("read tcp: i/o timeout"), Transient},
		{errors.New("429 Too Many Requests"), Transient},
		{errors.New("connection refused"), Transient},
		{errors.New("unexpected EOF"), Transient},
		{context.DeadlineExceeded, Transient},
		{errors.New("execution reverted"), Permanent},
		{errors.New("the method eth_call does not exist"), Permanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), "classify(%v)", tt.err)
	}
}

func TestRPCErrorTagging(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := wrapRPC(ArbitrumChainID, "totalAssets", cause)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ArbitrumChainID, rpcErr.ChainID)
	assert.Equal(t, Transient, rpcErr.Kind)
	assert.True(t, IsTransient(err))
	assert.False(t, IsDecode(err))

	wrapped := errors.Wrap(err, "could not read pool")
	assert.True(t, IsTransient(wrapped))
	assert.True(t, errors.Is(wrapped, cause))
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 0, func() error {
		calls++
		if calls < 3 {
			return wrapRPC(EthereumChainID, "balanceOf", errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 0, func() error {
		calls++
		return wrapRPC(EthereumChainID, "balanceOf", errors.New("timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, retryAttempts, calls)
	assert.True(t, IsTransient(err))
}

func TestWithRetryPermanentFailsFast(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 0, func() error {
		calls++
		return wrapRPC(EthereumChainID, "balanceOf", errors.New("execution reverted"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, time.Hour, func() error {
		return wrapRPC(EthereumChainID, "balanceOf", errors.New("timeout"))
	})
	assert.Equal(t, context.Canceled, err)
}
