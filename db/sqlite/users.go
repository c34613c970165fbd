package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// CreateUser inserts the channel on first contact and returns the row
// either way. The unique-index race degrades to a plain lookup.
func (s *Store) CreateUser(ctx context.Context, channelID string) (*db.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (channel_id, created_at) VALUES (?, ?) ON CONFLICT(channel_id) DO NOTHING`,
		channelID, time.Now().Unix(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create user")
	}
	return s.UserByChannelID(ctx, channelID)
}

// UserByChannelID looks a user up by its chat channel identifier.
func (s *Store) UserByChannelID(ctx context.Context, channelID string) (*db.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, wallet, unreachable, created_at FROM users WHERE channel_id = ?`, channelID)
	return scanUser(row)
}

// UserByID looks a user up by primary key.
func (s *Store) UserByID(ctx context.Context, id int64) (*db.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, wallet, unreachable, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// SetWallet validates and stores the user's wallet address, lower-cased.
func (s *Store) SetWallet(ctx context.Context, channelID, wallet string) error {
	if !common.IsHexAddress(wallet) {
		return errors.Errorf("invalid wallet address %q", wallet)
	}
	normalized := strings.ToLower(common.HexToAddress(wallet).Hex())
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET wallet = ? WHERE channel_id = ?`, normalized, channelID)
	if err != nil {
		return errors.Wrap(err, "could not set wallet")
	}
	return requireRow(res)
}

// UsersWithWallet returns every user that has a wallet configured.
func (s *Store) UsersWithWallet(ctx context.Context) ([]*db.User, error) {
	return s.queryUsers(ctx,
		`SELECT id, channel_id, wallet, unreachable, created_at FROM users WHERE wallet != '' ORDER BY id`)
}

// AllUsers returns every user, reachable or not.
func (s *Store) AllUsers(ctx context.Context) ([]*db.User, error) {
	return s.queryUsers(ctx,
		`SELECT id, channel_id, wallet, unreachable, created_at FROM users ORDER BY id`)
}

// MarkUnreachable flags the user's channel so no further notifications are
// routed to it until manually reset.
func (s *Store) MarkUnreachable(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET unreachable = 1 WHERE id = ?`, userID)
	if err != nil {
		return errors.Wrap(err, "could not mark user unreachable")
	}
	return requireRow(res)
}

// ResetUnreachable clears the unreachable flag, re-enabling delivery.
func (s *Store) ResetUnreachable(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET unreachable = 0 WHERE channel_id = ?`, channelID)
	if err != nil {
		return errors.Wrap(err, "could not reset user channel")
	}
	return requireRow(res)
}

// DeleteUser removes the user; alerts, positions, ledger entries and
// conversation state cascade.
func (s *Store) DeleteUser(ctx context.Context, channelID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE channel_id = ?`, channelID)
	if err != nil {
		return errors.Wrap(err, "could not delete user")
	}
	return requireRow(res)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*db.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*db.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*db.User, error) {
	var u db.User
	var unreachable int
	var createdAt int64
	err := row.Scan(&u.ID, &u.ChannelID, &u.Wallet, &unreachable, &createdAt)
	if err == sql.ErrNoRows {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Unreachable = unreachable != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}
