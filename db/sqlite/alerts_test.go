package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lendwatch/lendwatch/db"
)

func TestActiveAlertsFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "chan-1")
	require.NoError(t, err)

	signedID, err := s.CreateAlert(ctx, &db.Alert{UserID: u.ID, Asset: "usdc", MinAPY: 5, Signed: true, Active: true})
	require.NoError(t, err)
	_, err = s.CreateAlert(ctx, &db.Alert{UserID: u.ID, Asset: "WETH", MinAPY: 3, Signed: false, Active: true})
	require.NoError(t, err)
	pausedID, err := s.CreateAlert(ctx, &db.Alert{UserID: u.ID, Asset: "ALL", MinAPY: 0, Signed: true, Active: true})
	require.NoError(t, err)
	require.NoError(t, s.PauseAlert(ctx, pausedID))
	_, err = s.CreateAlert(ctx, &db.Alert{
		UserID: u.ID, Asset: "USDT", MinAPY: 4, Signed: true, Active: true,
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	alerts, err := s.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, signedID, alerts[0].ID)
	// Asset symbols normalize to upper case on write.
	assert.Equal(t, "USDC", alerts[0].Asset)
	assert.Equal(t, "chan-1", alerts[0].ChannelID)
}

func TestAlertLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "chan-1")
	require.NoError(t, err)
	id, err := s.CreateAlert(ctx, &db.Alert{UserID: u.ID, Asset: "USDC", MinAPY: 5, Active: true})
	require.NoError(t, err)

	// Drafts do not match until signed.
	alerts, err := s.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	require.NoError(t, s.SignAlert(ctx, id))
	alerts, err = s.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	// Default expiry is 30 days out.
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), alerts[0].ExpiresAt, time.Minute)

	require.NoError(t, s.DeleteAlert(ctx, id))
	assert.Equal(t, db.ErrNotFound, s.DeleteAlert(ctx, id))
}
