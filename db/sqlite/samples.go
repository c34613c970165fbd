package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// AppendAPYSample appends one APY history point.
func (s *Store) AppendAPYSample(ctx context.Context, sample *db.APYSample) error {
	recordedAt := sample.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO apy_samples (pool_address, chain_id, supply_apy, borrow_apy, tvl, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.PoolAddress, sample.ChainID, sample.SupplyAPY, sample.BorrowAPY, sample.TVL, recordedAt.Unix(),
	)
	return errors.Wrap(err, "could not append apy sample")
}

// HasSampleSince reports whether the pool already has a sample recorded at
// or after the given time, used to deduplicate within a tick.
func (s *Store) HasSampleSince(ctx context.Context, key db.PoolKey, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM apy_samples WHERE pool_address = ? AND chain_id = ? AND recorded_at >= ?`,
		key.Address, key.ChainID, since.Unix(),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SamplesSince returns the pool's history points from the given time
// onwards, oldest first.
func (s *Store) SamplesSince(ctx context.Context, key db.PoolKey, since time.Time) ([]*db.APYSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pool_address, chain_id, supply_apy, borrow_apy, tvl, recorded_at
		 FROM apy_samples WHERE pool_address = ? AND chain_id = ? AND recorded_at >= ?
		 ORDER BY recorded_at`,
		key.Address, key.ChainID, since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []*db.APYSample
	for rows.Next() {
		var sm db.APYSample
		var recordedAt int64
		if err := rows.Scan(&sm.PoolAddress, &sm.ChainID, &sm.SupplyAPY, &sm.BorrowAPY, &sm.TVL, &recordedAt); err != nil {
			return nil, err
		}
		sm.RecordedAt = time.Unix(recordedAt, 0)
		samples = append(samples, &sm)
	}
	return samples, rows.Err()
}

// PruneSamples removes history older than the cutoff and returns the count
// of deleted rows.
func (s *Store) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apy_samples WHERE recorded_at < ?`, before.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "could not prune apy samples")
	}
	return res.RowsAffected()
}
