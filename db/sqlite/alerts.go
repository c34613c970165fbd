package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lendwatch/lendwatch/db"
)

const defaultAlertTTL = 30 * 24 * time.Hour

// CreateAlert inserts a draft alert. Asset symbols are stored upper-cased;
// a zero expiry defaults to 30 days after creation.
func (s *Store) CreateAlert(ctx context.Context, alert *db.Alert) (int64, error) {
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	expiresAt := alert.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(defaultAlertTTL)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (user_id, asset, min_apy, risk, max_notional, signed, active, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.UserID,
		strings.ToUpper(alert.Asset),
		alert.MinAPY,
		alert.Risk,
		alert.MaxNotional,
		boolInt(alert.Signed),
		boolInt(alert.Active),
		createdAt.Unix(),
		expiresAt.Unix(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "could not create alert")
	}
	return res.LastInsertId()
}

// SignAlert transitions a draft alert to signed, making it eligible for
// matching.
func (s *Store) SignAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET signed = 1 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "could not sign alert")
	}
	return requireRow(res)
}

// PauseAlert clears the active flag without deleting the alert.
func (s *Store) PauseAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "could not pause alert")
	}
	return requireRow(res)
}

// DeleteAlert removes the alert.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "could not delete alert")
	}
	return requireRow(res)
}

// ActiveAlerts returns every signed, active, non-expired alert joined with
// its owning user, in one query.
func (s *Store) ActiveAlerts(ctx context.Context) ([]*db.AlertWithUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.user_id, a.asset, a.min_apy, a.risk, a.max_notional, a.signed, a.active, a.created_at, a.expires_at,
		        u.channel_id, u.wallet, u.unreachable
		 FROM alerts a JOIN users u ON u.id = a.user_id
		 WHERE a.signed = 1 AND a.active = 1 AND a.expires_at > ?
		 ORDER BY a.id`,
		time.Now().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []*db.AlertWithUser
	for rows.Next() {
		var a db.AlertWithUser
		var signed, active, unreachable int
		var createdAt, expiresAt int64
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Asset, &a.MinAPY, &a.Risk, &a.MaxNotional, &signed, &active, &createdAt, &expiresAt,
			&a.ChannelID, &a.Wallet, &unreachable,
		); err != nil {
			return nil, err
		}
		a.Signed = signed != 0
		a.Active = active != 0
		a.Unreachable = unreachable != 0
		a.CreatedAt = time.Unix(createdAt, 0)
		a.ExpiresAt = time.Unix(expiresAt, 0)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
