package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunEveryRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int64
	RunEvery(ctx, 5*time.Millisecond, func() {
		atomic.AddInt64(&calls, 1)
	})

	time.Sleep(50 * time.Millisecond)
	cancel()
	// Let any in-flight run drain before taking the baseline.
	time.Sleep(20 * time.Millisecond)
	ran := atomic.LoadInt64(&calls)
	assert.Greater(t, ran, int64(0))

	// No further runs after cancellation.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ran, atomic.LoadInt64(&calls))
}
