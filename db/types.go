// Package db defines the persistent store interface of the lendwatch
// monitor and the entity types it traffics in. The concrete SQLite
// implementation lives in db/sqlite; every other component goes through the
// Database interface and never touches storage directly.
package db

import (
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// AssetAll is the alert asset wildcard matching any underlying token.
const AssetAll = "ALL"

// User is one chat-channel identity. Wallet is optional, stored as a
// lower-cased 20-byte hex address once set.
type User struct {
	ID          int64
	ChannelID   string
	Wallet      string
	Unreachable bool
	CreatedAt   time.Time
}

// Alert is a user's saved matching rule against future pool announcements.
// Only signed, active, non-expired alerts participate in matching.
type Alert struct {
	ID          int64
	UserID      int64
	Asset       string
	MinAPY      float64
	Risk        string
	MaxNotional float64
	Signed      bool
	Active      bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// AlertWithUser is an alert joined with its owner, so the router avoids
// N+1 user lookups on the hot path.
type AlertWithUser struct {
	Alert
	ChannelID   string
	Wallet      string
	Unreachable bool
}

// PoolKey identifies a pool cache row.
type PoolKey struct {
	Address string
	ChainID uint64
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s:%d", k.Address, k.ChainID)
}

// PoolRecord is one cached pool, unique per (address, chain).
type PoolRecord struct {
	ID                int64
	Address           string
	ChainID           uint64
	Name              string
	Symbol            string
	UnderlyingSymbol  string
	UnderlyingAddress string
	Decimals          uint8
	TVL               float64
	APY               float64
	Borrowed          float64
	Utilization       float64
	Collaterals       []string
	Active            bool
	FirstSeen         time.Time
	LastSeen          time.Time
	UpdatedAt         time.Time
}

// Key returns the pool's cache key.
func (p *PoolRecord) Key() PoolKey {
	return PoolKey{Address: p.Address, ChainID: p.ChainID}
}

// PoolChange describes how an upsert altered a cache row relative to its
// prior state.
type PoolChange struct {
	New         bool
	Reactivated bool
	APYChanged  bool
	PreviousAPY float64
}

// Position is a user's share holding in one pool on one chain, unique per
// (user, pool, chain). Shares are raw on-chain units.
type Position struct {
	ID           int64
	UserID       int64
	PoolAddress  string
	ChainID      uint64
	Shares       *big.Int
	Value        float64
	InitialAPY   float64
	CurrentAPY   float64
	NetAPY       float64
	LastAPYCheck time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Active       bool
}

// Key returns the pool key the position is held in.
func (p *Position) Key() PoolKey {
	return PoolKey{Address: p.PoolAddress, ChainID: p.ChainID}
}

// APYSample is one append-only APY history point.
type APYSample struct {
	PoolAddress string
	ChainID     uint64
	SupplyAPY   float64
	BorrowAPY   float64
	TVL         float64
	RecordedAt  time.Time
}

// NotificationKind names one logical ledger stream.
type NotificationKind string

const (
	KindAlertMatch       NotificationKind = "alert_match"
	KindAPYChange        NotificationKind = "apy_change"
	KindPoolAnnouncement NotificationKind = "pool_announcement"
	KindPositionClosed   NotificationKind = "position_closed"
)

// Subject keys bind a ledger entry to the thing the event is about. The
// format is shared between the router (writes) and the store (queries).

// SubjectPool keys alert-match entries.
func SubjectPool(key PoolKey) string {
	return fmt.Sprintf("pool:%s:%d", key.Address, key.ChainID)
}

// SubjectChain keys protocol-launch broadcast entries.
func SubjectChain(chainID uint64) string {
	return fmt.Sprintf("chain:%d", chainID)
}

// SubjectPosition keys APY-change and position-closed entries.
func SubjectPosition(id int64) string {
	return fmt.Sprintf("position:%d", id)
}

// ConversationState persists a user's multi-step chat command progress so
// it survives restarts. Expired rows are swept periodically.
type ConversationState struct {
	UserID    int64
	Step      string
	Partial   string
	UpdatedAt time.Time
	ExpiresAt time.Time
}
