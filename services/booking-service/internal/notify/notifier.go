package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

const KindBookingConfirmed = "booking_confirmed"

// Notification tells the organization owner about a booking event.
type Notification struct {
	Kind         string
	Organization model.Organization
	Booking      model.Booking
}

// Text is the short templated body used by every channel.
func (n Notification) Text() string {
	start := n.Booking.Start
	if loc, err := n.Organization.Location(); err == nil {
		start = start.In(loc)
	}
	body := fmt.Sprintf("New booking: %s (%s) on %s at %s.",
		n.Booking.CustomerName, n.Booking.CustomerEmail,
		start.Format("Mon Jan 2"), start.Format("3:04 PM MST"))
	if n.Booking.MeetingLink != "" {
		body += " Join: " + n.Booking.MeetingLink
	}
	return body
}

func (n Notification) Subject() string {
	return fmt.Sprintf("New booking with %s", n.Booking.CustomerName)
}

// Notifier delivers one notification; a nil error means it was accepted.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every channel and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Noop struct{}

func (Noop) Notify(context.Context, Notification) error { return nil }
