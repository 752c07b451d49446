package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/leroytan/the-website-sub000/internal/logging"
)

// ErrThrottled is returned when the receiver was notified about the same chat
// within the throttle window.
var ErrThrottled = errors.New("notification throttled")

type Throttle interface {
	Allow(ctx context.Context, recipientID, chatID string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
}

// Notifier sends unread notifications. A nil throttle disables throttling.
type Notifier struct {
	throttle Throttle
	pub      Publisher
	log      logging.Logger

	retries uint64
	backoff time.Duration
	now     func() time.Time
}

func NewNotifier(throttle Throttle, pub Publisher, log logging.Logger) *Notifier {
	if log == nil {
		log = logging.Nop()
	}
	return &Notifier{
		throttle: throttle,
		pub:      pub,
		log:      log.With("module", "notify"),
		retries:  3,
		backoff:  100 * time.Millisecond,
		now:      time.Now,
	}
}

// NotifyUnread publishes an EventUnread envelope for u. A throttle backend
// error lets the notification through.
func (n *Notifier) NotifyUnread(ctx context.Context, u Unread) error {
	if n.throttle != nil {
		ok, err := n.throttle.Allow(ctx, u.RecipientID, u.ChatID)
		switch {
		case err != nil:
			n.log.Warn(ctx, "throttle unavailable", "error", err)
		case !ok:
			return ErrThrottled
		}
	}

	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Type:     EventUnread,
			Producer: producer,
			Time:     n.now().UTC(),
		},
		Data: u,
	}

	b := retry.WithMaxRetries(n.retries, retry.NewExponential(n.backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := n.pub.Publish(ctx, EventUnread, env); err != nil {
			n.log.Debug(ctx, "publish failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
