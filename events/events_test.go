package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendwatch/lendwatch/db"
)

func TestNewPoolAnnouncementRequiresChainID(t *testing.T) {
	_, err := NewPoolAnnouncement(db.PoolRecord{Address: "0xpool1"}, false)
	require.Error(t, err)

	ev, err := NewPoolAnnouncement(db.PoolRecord{Address: "0xpool1", ChainID: 146}, true)
	require.NoError(t, err)
	assert.True(t, ev.Reactivated)
	assert.Equal(t, uint64(146), ev.Pool.ChainID)
}

func TestNewProtocolLaunchRequiresChainID(t *testing.T) {
	_, err := NewProtocolLaunch(0)
	require.Error(t, err)

	ev, err := NewProtocolLaunch(143)
	require.NoError(t, err)
	assert.Equal(t, uint64(143), ev.ChainID)
}

func TestNewAPYChangeRequiresChainID(t *testing.T) {
	_, err := NewAPYChange(db.Position{PoolAddress: "0xpool1"}, "Sonic USDC.e Pool", 6.2, 8.5, true)
	require.Error(t, err)

	ev, err := NewAPYChange(db.Position{PoolAddress: "0xpool1", ChainID: 146}, "Sonic USDC.e Pool", 6.2, 8.5, true)
	require.NoError(t, err)
	assert.Equal(t, 6.2, ev.Old)
	assert.Equal(t, 8.5, ev.New)
	assert.True(t, ev.Major)
	assert.Equal(t, "Sonic USDC.e Pool", ev.PoolName)
}

func TestNewPositionClosedRequiresChainID(t *testing.T) {
	_, err := NewPositionClosed(db.Position{PoolAddress: "0xpool1"}, "Sonic USDC.e Pool")
	require.Error(t, err)

	ev, err := NewPositionClosed(db.Position{PoolAddress: "0xpool1", ChainID: 146}, "Sonic USDC.e Pool")
	require.NoError(t, err)
	assert.Equal(t, "Sonic USDC.e Pool", ev.PoolName)
	assert.Equal(t, uint64(146), ev.Position.ChainID)
}
