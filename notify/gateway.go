// Package notify converts change events into per-user chat messages,
// enforcing cooldowns and recording deliveries in the durable notification
// ledger.
package notify

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "notify")

// Action is one tappable button attached to a message. Target is either a
// URL or an opaque callback token, never both.
type Action struct {
	Label         string
	URL           string
	CallbackToken string
}

// Gateway is the outbound chat channel. Text is preformatted lightweight
// markup renderable as Markdown.
type Gateway interface {
	Send(ctx context.Context, channelID, text string, actions []Action) error
}

// DeliveryError tags a send failure so the router can decide between
// retrying and marking the channel unreachable.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("delivery %s: %v", kind, e.Err)
}

// Unwrap supports errors.Is and errors.As against the cause.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanentDelivery reports whether err is a non-retryable delivery
// failure such as an invalid channel id.
func IsPermanentDelivery(err error) bool {
	var dErr *DeliveryError
	return errors.As(err, &dErr) && dErr.Permanent
}

// IsTransientDelivery reports whether err is a retryable delivery failure
// such as a rate limit or network error.
func IsTransientDelivery(err error) bool {
	var dErr *DeliveryError
	return errors.As(err, &dErr) && !dErr.Permanent
}
