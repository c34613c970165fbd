package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// UpsertPool inserts or refreshes a cache row keyed by (address, chain) and
// reports how the row changed relative to its prior state. Callers set
// LastSeen and UpdatedAt to the tick time; FirstSeen is fixed at insert.
func (s *Store) UpsertPool(ctx context.Context, pool *db.PoolRecord) (*db.PoolChange, error) {
	var prevActive int
	var prevAPY float64
	err := s.db.QueryRowContext(ctx,
		`SELECT active, apy FROM pools WHERE address = ? AND chain_id = ?`,
		pool.Address, pool.ChainID,
	).Scan(&prevActive, &prevAPY)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO pools (address, chain_id, name, symbol, underlying_symbol, underlying_address, decimals,
			                    tvl, apy, borrowed, utilization, collaterals, active, first_seen, last_seen, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
			 ON CONFLICT(address, chain_id) DO NOTHING`,
			pool.Address, pool.ChainID, pool.Name, pool.Symbol, pool.UnderlyingSymbol, pool.UnderlyingAddress,
			pool.Decimals, pool.TVL, pool.APY, pool.Borrowed, pool.Utilization, joinCollaterals(pool.Collaterals),
			pool.LastSeen.Unix(), pool.LastSeen.Unix(), pool.UpdatedAt.Unix(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "could not insert pool")
		}
		return &db.PoolChange{New: true}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not read prior pool state")
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE pools SET name = ?, symbol = ?, underlying_symbol = ?, underlying_address = ?, decimals = ?,
		                  tvl = ?, apy = ?, borrowed = ?, utilization = ?, collaterals = ?,
		                  active = 1, last_seen = ?, updated_at = ?
		 WHERE address = ? AND chain_id = ?`,
		pool.Name, pool.Symbol, pool.UnderlyingSymbol, pool.UnderlyingAddress, pool.Decimals,
		pool.TVL, pool.APY, pool.Borrowed, pool.Utilization, joinCollaterals(pool.Collaterals),
		pool.LastSeen.Unix(), pool.UpdatedAt.Unix(),
		pool.Address, pool.ChainID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not update pool")
	}
	return &db.PoolChange{
		Reactivated: prevActive == 0,
		APYChanged:  prevAPY != pool.APY,
		PreviousAPY: prevAPY,
	}, nil
}

// PoolByKey fetches one cache row.
func (s *Store) PoolByKey(ctx context.Context, key db.PoolKey) (*db.PoolRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, address, chain_id, name, symbol, underlying_symbol, underlying_address, decimals,
		        tvl, apy, borrowed, utilization, collaterals, active, first_seen, last_seen, updated_at
		 FROM pools WHERE address = ? AND chain_id = ?`,
		key.Address, key.ChainID,
	)
	return scanPool(row)
}

// ActivePools returns every active cache row across all chains.
func (s *Store) ActivePools(ctx context.Context) ([]*db.PoolRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, address, chain_id, name, symbol, underlying_symbol, underlying_address, decimals,
		        tvl, apy, borrowed, utilization, collaterals, active, first_seen, last_seen, updated_at
		 FROM pools WHERE active = 1 ORDER BY chain_id, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pools []*db.PoolRecord
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// MarkPoolsInactive flips active off for every active row of the chain not
// present in observed, in a single statement per chain.
func (s *Store) MarkPoolsInactive(ctx context.Context, chainID uint64, observed []string) (int64, error) {
	query := `UPDATE pools SET active = 0 WHERE chain_id = ? AND active = 1`
	args := []interface{}{chainID}
	if len(observed) > 0 {
		query += ` AND address NOT IN (?` + strings.Repeat(",?", len(observed)-1) + `)`
		for _, addr := range observed {
			args = append(args, addr)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "could not mark pools inactive")
	}
	return res.RowsAffected()
}

func scanPool(row rowScanner) (*db.PoolRecord, error) {
	var p db.PoolRecord
	var collaterals string
	var active int
	var firstSeen, lastSeen, updatedAt int64
	err := row.Scan(
		&p.ID, &p.Address, &p.ChainID, &p.Name, &p.Symbol, &p.UnderlyingSymbol, &p.UnderlyingAddress, &p.Decimals,
		&p.TVL, &p.APY, &p.Borrowed, &p.Utilization, &collaterals, &active, &firstSeen, &lastSeen, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Collaterals = splitCollaterals(collaterals)
	p.Active = active != 0
	p.FirstSeen = time.Unix(firstSeen, 0)
	p.LastSeen = time.Unix(lastSeen, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

func joinCollaterals(c []string) string {
	return strings.Join(c, ",")
}

func splitCollaterals(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
