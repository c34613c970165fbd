package sqlite

import (
	"context"
	"database/sql"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// UpsertPosition inserts or refreshes the row keyed by (user, pool, chain)
// and returns the prior row, nil when the position is new. On insert the
// initial supply APY is pinned to the current one; on update the initial
// APY and creation time are preserved.
func (s *Store) UpsertPosition(ctx context.Context, pos *db.Position) (*db.Position, error) {
	prev, err := s.positionByKey(ctx, pos.UserID, pos.PoolAddress, pos.ChainID)
	if err != nil && err != db.ErrNotFound {
		return nil, err
	}

	shares := "0"
	if pos.Shares != nil {
		shares = pos.Shares.String()
	}
	if prev == nil {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO positions (user_id, pool_address, chain_id, shares, value, initial_apy, current_apy,
			                        net_apy, last_apy_check, created_at, updated_at, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT(user_id, pool_address, chain_id) DO NOTHING`,
			pos.UserID, pos.PoolAddress, pos.ChainID, shares, pos.Value, pos.CurrentAPY, pos.CurrentAPY,
			pos.NetAPY, pos.LastAPYCheck.Unix(), pos.UpdatedAt.Unix(), pos.UpdatedAt.Unix(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "could not insert position")
		}
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE positions SET shares = ?, value = ?, current_apy = ?, net_apy = ?, last_apy_check = ?,
		                      updated_at = ?, active = 1
		 WHERE user_id = ? AND pool_address = ? AND chain_id = ?`,
		shares, pos.Value, pos.CurrentAPY, pos.NetAPY, pos.LastAPYCheck.Unix(), pos.UpdatedAt.Unix(),
		pos.UserID, pos.PoolAddress, pos.ChainID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not update position")
	}
	return prev, nil
}

// DeactivatePosition terminally closes a position row.
func (s *Store) DeactivatePosition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE positions SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "could not deactivate position")
	}
	return requireRow(res)
}

// ActivePositions returns every active position across all users.
func (s *Store) ActivePositions(ctx context.Context) ([]*db.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, pool_address, chain_id, shares, value, initial_apy, current_apy, net_apy,
		        last_apy_check, created_at, updated_at, active
		 FROM positions WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var positions []*db.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *Store) positionByKey(ctx context.Context, userID int64, poolAddress string, chainID uint64) (*db.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, pool_address, chain_id, shares, value, initial_apy, current_apy, net_apy,
		        last_apy_check, created_at, updated_at, active
		 FROM positions WHERE user_id = ? AND pool_address = ? AND chain_id = ?`,
		userID, poolAddress, chainID,
	)
	return scanPosition(row)
}

func scanPosition(row rowScanner) (*db.Position, error) {
	var p db.Position
	var shares string
	var active int
	var lastCheck, createdAt, updatedAt int64
	err := row.Scan(
		&p.ID, &p.UserID, &p.PoolAddress, &p.ChainID, &shares, &p.Value, &p.InitialAPY, &p.CurrentAPY, &p.NetAPY,
		&lastCheck, &createdAt, &updatedAt, &active,
	)
	if err == sql.ErrNoRows {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Shares, _ = new(big.Int).SetString(shares, 10)
	if p.Shares == nil {
		p.Shares = new(big.Int)
	}
	p.Active = active != 0
	p.LastAPYCheck = time.Unix(lastCheck, 0)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}
