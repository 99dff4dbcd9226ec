package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proofline/booking/services/booking-service/internal/availability"
	"github.com/proofline/booking/services/booking-service/internal/model"
)

// Demo serves synthetic availability and accepts bookings without storing
// them. It backs the widget when no store is configured.
type Demo struct {
	clock availability.Clock
	loc   *time.Location
	delay time.Duration
}

var _ Engine = (*Demo)(nil)

func NewDemo(clock availability.Clock, loc *time.Location, delay time.Duration) *Demo {
	if loc == nil {
		loc = time.UTC
	}
	return &Demo{clock: clock, loc: loc, delay: delay}
}

func (d *Demo) Availability(_ context.Context, slug string, rangeStart time.Time, numDays int) (Availability, error) {
	if numDays <= 0 {
		return Availability{}, &Error{Kind: KindInvalidArgument, Message: "days must be positive", Field: "days", Err: availability.ErrInvalidRange}
	}
	if rangeStart.IsZero() {
		rangeStart = d.clock.Now().In(d.loc)
	}
	days, err := availability.Demo(slug, d.loc, rangeStart, numDays, d.clock.Now())
	if err != nil {
		return Availability{}, err
	}
	return Availability{Organization: availability.DemoOrganization(slug, d.loc), Days: days}, nil
}

// CreateBooking validates the contact fields, waits the simulated delay and
// reports success.
func (d *Demo) CreateBooking(ctx context.Context, req Request) (Confirmation, error) {
	req.normalize()
	org := availability.DemoOrganization(req.OrganizationSlug, d.loc)
	if req.StartTime.IsZero() {
		return Confirmation{}, validationError([]string{"start_time"}, "Please choose a time.")
	}
	if verr := validateContact(req); verr != nil {
		return Confirmation{}, verr
	}

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Confirmation{}, ctx.Err()
		case <-timer.C:
		}
	}

	start := req.StartTime.In(d.loc)
	return Confirmation{
		Organization: org,
		Booking: model.Booking{
			ID:              uuid.NewString(),
			Start:           start,
			End:             start.Add(org.Duration()),
			DurationMinutes: org.DurationMinutes,
			CustomerName:    req.CustomerName,
			CustomerEmail:   req.CustomerEmail,
			Status:          model.StatusConfirmed,
			CreatedAt:       d.clock.Now(),
		},
	}, nil
}
