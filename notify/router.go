package notify

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lendwatch/lendwatch/config/params"
	"github.com/lendwatch/lendwatch/db"
	"github.com/lendwatch/lendwatch/events"
)

const deliverAttempts = 3

// cooldown is the de-duplication policy of one delivery. A zero window with
// check set means "once ever".
type cooldown struct {
	check  bool
	window time.Duration
}

// Router converts change events into per-user messages. It is the only
// writer of the notification ledger and is driven synchronously by the
// schedulers, one event at a time.
type Router struct {
	store     db.Database
	gateway   Gateway
	recent    *gocache.Cache
	retryBase time.Duration
}

var _ events.Sink = (*Router)(nil)

// NewRouter wires a router over the store and the outbound chat gateway.
func NewRouter(store db.Database, gateway Gateway) *Router {
	return &Router{
		store:     store,
		gateway:   gateway,
		recent:    gocache.New(gocache.NoExpiration, 10*time.Minute),
		retryBase: time.Second,
	}
}

// HandlePoolAnnouncement matches the pool against every active signed
// alert and notifies each qualifying owner, at most once per pool and user
// within the alert-match cooldown.
func (r *Router) HandlePoolAnnouncement(ctx context.Context, ev events.PoolAnnouncement) error {
	if ev.Pool.ChainID == 0 {
		return errors.New("refusing pool announcement without a chain id")
	}
	alerts, err := r.store.ActiveAlerts(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load active alerts")
	}
	subject := db.SubjectPool(ev.Pool.Key())
	for _, alert := range alerts {
		if !alertMatches(alert, &ev.Pool) {
			continue
		}
		text, actions := formatAlertMatch(&ev.Pool, alert)
		payload := fmt.Sprintf("%s apy=%.2f", ev.Pool.UnderlyingSymbol, ev.Pool.APY)
		err := r.deliver(ctx, alert.UserID, alert.ChannelID, alert.Unreachable,
			db.KindAlertMatch, subject, payload, text, actions,
			cooldown{check: true, window: params.Get().AlertMatchCooldown})
		if err != nil {
			log.WithError(err).WithField("user", alert.UserID).Error("Could not deliver alert match")
		}
	}
	return nil
}

// HandleProtocolLaunch broadcasts the chain launch to every user, once per
// chain per user, ever.
func (r *Router) HandleProtocolLaunch(ctx context.Context, ev events.ProtocolLaunch) error {
	if ev.ChainID == 0 {
		return errors.New("refusing protocol launch without a chain id")
	}
	users, err := r.store.AllUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load users")
	}
	subject := db.SubjectChain(ev.ChainID)
	text, actions := formatProtocolLaunch(ev.ChainID)
	for _, user := range users {
		err := r.deliver(ctx, user.ID, user.ChannelID, user.Unreachable,
			db.KindPoolAnnouncement, subject, subject, text, actions,
			cooldown{check: true})
		if err != nil {
			log.WithError(err).WithField("user", user.ID).Error("Could not deliver launch broadcast")
		}
	}
	return nil
}

// HandleAPYChange notifies the position owner of a material APY shift,
// subject to the apy-change cooldown.
func (r *Router) HandleAPYChange(ctx context.Context, ev events.APYChange) error {
	if ev.Position.ChainID == 0 {
		return errors.New("refusing apy change without a chain id")
	}
	user, err := r.store.UserByID(ctx, ev.Position.UserID)
	if err != nil {
		return errors.Wrap(err, "could not load position owner")
	}
	pool, err := r.store.PoolByKey(ctx, ev.Position.Key())
	if err != nil && err != db.ErrNotFound {
		return errors.Wrap(err, "could not load pool for apy change")
	}
	text, actions := formatAPYChange(ev, pool)
	payload := fmt.Sprintf("apy %.2f->%.2f major=%t", ev.Old, ev.New, ev.Major)
	return r.deliver(ctx, user.ID, user.ChannelID, user.Unreachable,
		db.KindAPYChange, db.SubjectPosition(ev.Position.ID), payload, text, actions,
		cooldown{check: true, window: params.Get().APYChangeCooldown})
}

// HandlePositionClosed notifies the owner of a terminal closure. No
// cooldown applies; deactivation guarantees at most one event.
func (r *Router) HandlePositionClosed(ctx context.Context, ev events.PositionClosed) error {
	if ev.Position.ChainID == 0 {
		return errors.New("refusing position closure without a chain id")
	}
	user, err := r.store.UserByID(ctx, ev.Position.UserID)
	if err != nil {
		return errors.Wrap(err, "could not load position owner")
	}
	pool, err := r.store.PoolByKey(ctx, ev.Position.Key())
	if err != nil && err != db.ErrNotFound {
		return errors.Wrap(err, "could not load pool for closure")
	}
	text, actions := formatPositionClosed(ev, pool)
	return r.deliver(ctx, user.ID, user.ChannelID, user.Unreachable,
		db.KindPositionClosed, db.SubjectPosition(ev.Position.ID), "closed", text, actions,
		cooldown{})
}

func alertMatches(alert *db.AlertWithUser, pool *db.PoolRecord) bool {
	if alert.Asset != db.AssetAll && alert.Asset != pool.UnderlyingSymbol {
		return false
	}
	return pool.APY >= alert.MinAPY
}

// deliver runs the per-message state machine: cooldown check, send with
// retry, ledger write. The ledger write happens strictly after a
// successful send, so a crash in between re-delivers rather than drops.
func (r *Router) deliver(
	ctx context.Context,
	userID int64,
	channelID string,
	unreachable bool,
	kind db.NotificationKind,
	subject, payload, text string,
	actions []Action,
	policy cooldown,
) error {
	if unreachable {
		notificationsDropped.WithLabelValues(string(kind), "unreachable").Inc()
		return nil
	}

	cacheKey := fmt.Sprintf("%d|%s|%s", userID, kind, subject)
	if policy.check {
		if _, hit := r.recent.Get(cacheKey); hit {
			notificationsDropped.WithLabelValues(string(kind), "cooldown").Inc()
			return nil
		}
		notified, err := r.store.WasNotifiedWithin(ctx, userID, kind, subject, policy.window)
		if err != nil {
			return errors.Wrap(err, "cooldown query failed")
		}
		if notified {
			notificationsDropped.WithLabelValues(string(kind), "cooldown").Inc()
			return nil
		}
	}

	if err := r.send(ctx, channelID, text, actions); err != nil {
		if IsPermanentDelivery(err) {
			log.WithError(err).WithFields(logrus.Fields{
				"user": userID, "kind": kind,
			}).Warn("Channel rejected delivery, marking unreachable")
			notificationsFailed.WithLabelValues(string(kind), "permanent").Inc()
			if markErr := r.store.MarkUnreachable(ctx, userID); markErr != nil {
				return errors.Wrap(markErr, "could not mark channel unreachable")
			}
			return nil
		}
		notificationsFailed.WithLabelValues(string(kind), "transient").Inc()
		return err
	}

	if err := r.store.RecordNotification(ctx, userID, kind, subject, payload); err != nil {
		return errors.Wrap(err, "could not record notification")
	}
	if policy.check {
		ttl := policy.window
		if ttl <= 0 {
			ttl = gocache.NoExpiration
		}
		r.recent.Set(cacheKey, struct{}{}, ttl)
	}
	notificationsSent.WithLabelValues(string(kind)).Inc()
	return nil
}

func (r *Router) send(ctx context.Context, channelID, text string, actions []Action) error {
	var err error
	for attempt := 0; attempt < deliverAttempts; attempt++ {
		if attempt > 0 {
			deliveryRetries.Inc()
			select {
			case <-time.After(r.retryBase << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = r.gateway.Send(ctx, channelID, text, actions); err == nil {
			return nil
		}
		if !IsTransientDelivery(err) {
			return err
		}
	}
	return err
}
