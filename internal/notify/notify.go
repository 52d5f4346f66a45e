// Package notify delivers verification codes to users over email or SMS.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Purposes of a delivery.
const (
	PurposePasswordReset = "password_reset"
	PurposeEmailVerify   = "email_verify"
)

// Delivery is one out-of-band message. Channel is "email" or "sms".
type Delivery struct {
	Channel     string
	Destination string
	Purpose     string
	Token       string
	Code        string
}

// Dispatcher sends a delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Delivery) error
}

var ErrNoChannel = errors.New("notify: no dispatcher for channel")

// Router picks a dispatcher by channel.
type Router map[string]Dispatcher

func (r Router) Dispatch(ctx context.Context, d Delivery) error {
	next, ok := r[d.Channel]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoChannel, d.Channel)
	}
	return next.Dispatch(ctx, d)
}

// LogDispatcher writes deliveries to the log instead of sending them. The code
// is never logged.
type LogDispatcher struct {
	Logger *zap.SugaredLogger
}

func (l LogDispatcher) Dispatch(ctx context.Context, d Delivery) error {
	l.Logger.Infow("notification queued", "channel", d.Channel, "destination", d.Destination, "purpose", d.Purpose)
	return nil
}

// Noop drops every delivery.
type Noop struct{}

func (Noop) Dispatch(context.Context, Delivery) error { return nil }
