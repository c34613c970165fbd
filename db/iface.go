package db

import (
	"context"
	"io"
	"time"
)

// Database is the single persistence interface of the monitor. The store is
// single-writer; every mutation is atomic on its own.
type Database interface {
	io.Closer
	DatabasePath() string
	ClearDB() error

	// Users.
	CreateUser(ctx context.Context, channelID string) (*User, error)
	UserByChannelID(ctx context.Context, channelID string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	SetWallet(ctx context.Context, channelID, wallet string) error
	UsersWithWallet(ctx context.Context) ([]*User, error)
	AllUsers(ctx context.Context) ([]*User, error)
	MarkUnreachable(ctx context.Context, userID int64) error
	ResetUnreachable(ctx context.Context, channelID string) error
	DeleteUser(ctx context.Context, channelID string) error

	// Alerts.
	CreateAlert(ctx context.Context, alert *Alert) (int64, error)
	SignAlert(ctx context.Context, id int64) error
	PauseAlert(ctx context.Context, id int64) error
	DeleteAlert(ctx context.Context, id int64) error
	ActiveAlerts(ctx context.Context) ([]*AlertWithUser, error)

	// Pool cache.
	UpsertPool(ctx context.Context, pool *PoolRecord) (*PoolChange, error)
	PoolByKey(ctx context.Context, key PoolKey) (*PoolRecord, error)
	ActivePools(ctx context.Context) ([]*PoolRecord, error)
	// MarkPoolsInactive deactivates every active pool of the chain whose
	// address is not in observed, returning the number of rows flipped.
	MarkPoolsInactive(ctx context.Context, chainID uint64, observed []string) (int64, error)

	// Positions.
	UpsertPosition(ctx context.Context, pos *Position) (*Position, error)
	DeactivatePosition(ctx context.Context, id int64) error
	ActivePositions(ctx context.Context) ([]*Position, error)

	// APY history.
	AppendAPYSample(ctx context.Context, sample *APYSample) error
	HasSampleSince(ctx context.Context, key PoolKey, since time.Time) (bool, error)
	SamplesSince(ctx context.Context, key PoolKey, since time.Time) ([]*APYSample, error)
	PruneSamples(ctx context.Context, before time.Time) (int64, error)

	// Notification ledger.
	RecordNotification(ctx context.Context, userID int64, kind NotificationKind, subject, payload string) error
	// WasNotifiedWithin reports whether the ledger holds a matching entry
	// newer than the window. A non-positive window means "ever".
	WasNotifiedWithin(ctx context.Context, userID int64, kind NotificationKind, subject string, window time.Duration) (bool, error)
	// HasChainAnnouncement reports whether any pool_announcement was ever
	// recorded for the chain, for any user.
	HasChainAnnouncement(ctx context.Context, chainID uint64) (bool, error)

	// Conversation state.
	SaveConversation(ctx context.Context, state *ConversationState) error
	Conversation(ctx context.Context, userID int64) (*ConversationState, error)
	ExpireConversations(ctx context.Context, now time.Time) (int64, error)
}
