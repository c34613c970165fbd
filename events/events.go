// Package events defines the change events the schedulers hand to the
// notification router. Every event carries the true chain id of its
// subject; constructing one without a chain id is refused.
package events

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// PoolAnnouncement fires when a pool is newly cached or flips back from
// inactive to active.
type PoolAnnouncement struct {
	Pool        db.PoolRecord
	Reactivated bool
}

// NewPoolAnnouncement validates and builds a PoolAnnouncement.
func NewPoolAnnouncement(pool db.PoolRecord, reactivated bool) (PoolAnnouncement, error) {
	if pool.ChainID == 0 {
		return PoolAnnouncement{}, errors.New("pool announcement requires a chain id")
	}
	return PoolAnnouncement{Pool: pool, Reactivated: reactivated}, nil
}

// ProtocolLaunch fires once ever when the protocol's first active pool is
// observed on a chain, and is broadcast to every user.
type ProtocolLaunch struct {
	ChainID uint64
}

// NewProtocolLaunch validates and builds a ProtocolLaunch.
func NewProtocolLaunch(chainID uint64) (ProtocolLaunch, error) {
	if chainID == 0 {
		return ProtocolLaunch{}, errors.New("protocol launch requires a chain id")
	}
	return ProtocolLaunch{ChainID: chainID}, nil
}

// APYChange fires when a tracked position's supply APY moved by at least
// the minor threshold since the previous scan.
type APYChange struct {
	Position db.Position
	PoolName string
	Old      float64
	New      float64
	Major    bool
}

// NewAPYChange validates and builds an APYChange.
func NewAPYChange(pos db.Position, poolName string, oldAPY, newAPY float64, major bool) (APYChange, error) {
	if pos.ChainID == 0 {
		return APYChange{}, errors.New("apy change requires a chain id")
	}
	return APYChange{Position: pos, PoolName: poolName, Old: oldAPY, New: newAPY, Major: major}, nil
}

// PositionClosed fires once when a position's balance drops below the dust
// threshold.
type PositionClosed struct {
	Position db.Position
	PoolName string
}

// NewPositionClosed validates and builds a PositionClosed.
func NewPositionClosed(pos db.Position, poolName string) (PositionClosed, error) {
	if pos.ChainID == 0 {
		return PositionClosed{}, errors.New("position closure requires a chain id")
	}
	return PositionClosed{Position: pos, PoolName: poolName}, nil
}

// Sink consumes events synchronously, in the order emitted. The router
// implements it.
type Sink interface {
	HandlePoolAnnouncement(ctx context.Context, ev PoolAnnouncement) error
	HandleProtocolLaunch(ctx context.Context, ev ProtocolLaunch) error
	HandleAPYChange(ctx context.Context, ev APYChange) error
	HandlePositionClosed(ctx context.Context, ev PositionClosed) error
}
