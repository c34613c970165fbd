package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// RecordNotification appends one delivery record to the ledger. Written
// strictly after a successful send.
func (s *Store) RecordNotification(ctx context.Context, userID int64, kind db.NotificationKind, subject, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, subject, payload, sent_at) VALUES (?, ?, ?, ?, ?)`,
		userID, string(kind), subject, payload, time.Now().Unix(),
	)
	return errors.Wrap(err, "could not record notification")
}

// WasNotifiedWithin is the cooldown query: does the ledger hold an entry
// for (user, kind, subject) newer than the window? A non-positive window
// means "ever". Backed by the (user, kind, subject, sent_at) index.
func (s *Store) WasNotifiedWithin(ctx context.Context, userID int64, kind db.NotificationKind, subject string, window time.Duration) (bool, error) {
	query := `SELECT COUNT(1) FROM notifications WHERE user_id = ? AND kind = ? AND subject = ?`
	args := []interface{}{userID, string(kind), subject}
	if window > 0 {
		query += ` AND sent_at > ?`
		args = append(args, time.Now().Add(-window).Unix())
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasChainAnnouncement reports whether a pool_announcement was ever
// recorded for the chain, for any user. Drives the one-shot launch
// broadcast.
func (s *Store) HasChainAnnouncement(ctx context.Context, chainID uint64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notifications WHERE kind = ? AND subject = ?`,
		string(db.KindPoolAnnouncement), db.SubjectChain(chainID),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
