package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

// SaveConversation upserts the user's multi-step command state.
func (s *Store) SaveConversation(ctx context.Context, state *db.ConversationState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, step, partial, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET step = excluded.step, partial = excluded.partial,
		                                    updated_at = excluded.updated_at, expires_at = excluded.expires_at`,
		state.UserID, state.Step, state.Partial, state.UpdatedAt.Unix(), state.ExpiresAt.Unix(),
	)
	return errors.Wrap(err, "could not save conversation state")
}

// Conversation loads the user's pending command state, if any.
func (s *Store) Conversation(ctx context.Context, userID int64) (*db.ConversationState, error) {
	var state db.ConversationState
	var updatedAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, step, partial, updated_at, expires_at FROM conversations WHERE user_id = ?`,
		userID,
	).Scan(&state.UserID, &state.Step, &state.Partial, &updatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	state.UpdatedAt = time.Unix(updatedAt, 0)
	state.ExpiresAt = time.Unix(expiresAt, 0)
	return &state, nil
}

// ExpireConversations sweeps rows whose TTL has passed.
func (s *Store) ExpireConversations(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "could not expire conversation state")
	}
	return res.RowsAffected()
}
