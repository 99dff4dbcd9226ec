package booking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proofline/booking/services/booking-service/internal/model"
	"github.com/proofline/booking/services/booking-service/internal/storage"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

func (s *Service) Organization(ctx context.Context, slug string) (model.Organization, error) {
	return s.organization(ctx, slug)
}

// UpsertOrganization creates or updates the organization keyed by slug.
func (s *Service) UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error) {
	org.Slug = strings.ToLower(strings.TrimSpace(org.Slug))
	org.Name = strings.TrimSpace(org.Name)
	org.Timezone = strings.TrimSpace(org.Timezone)
	if org.DurationMinutes == 0 {
		org.DurationMinutes = model.DefaultDurationMinutes
	}
	if org.Timezone == "" {
		org.Timezone = "UTC"
	}

	var fields []string
	if !slugPattern.MatchString(org.Slug) {
		fields = append(fields, "slug")
	}
	if org.Name == "" {
		fields = append(fields, "name")
	}
	if org.DurationMinutes < 0 || org.DurationMinutes > model.MinutesPerDay {
		fields = append(fields, "duration_minutes")
	}
	if _, err := org.Location(); err != nil {
		fields = append(fields, "timezone")
	}
	if len(fields) > 0 {
		return model.Organization{}, validationError(fields, "invalid organization: "+strings.Join(fields, ", "))
	}

	if org.ID == "" {
		org.ID = s.newID()
	}
	saved, err := s.store.UpsertOrganization(ctx, org)
	if err != nil {
		return model.Organization{}, err
	}
	s.logger.Info("organization saved", "organization", saved.Slug)
	return saved, nil
}

type ScheduleView struct {
	Rules     []model.AvailabilityRule
	Overrides []model.DateOverride
}

// Schedule returns the weekly rules and the overrides dated within [from, to].
func (s *Service) Schedule(ctx context.Context, slug, from, to string) (ScheduleView, error) {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return ScheduleView{}, err
	}
	rules, err := s.store.Rules(ctx, org.ID)
	if err != nil {
		return ScheduleView{}, err
	}
	overrides, err := s.store.Overrides(ctx, org.ID, from, to)
	if err != nil {
		return ScheduleView{}, err
	}
	return ScheduleView{Rules: rules, Overrides: overrides}, nil
}

func (s *Service) ReplaceRules(ctx context.Context, slug string, rules []model.AvailabilityRule) error {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return err
	}
	for i := range rules {
		rules[i].OrganizationID = org.ID
		if err := rules[i].Validate(); err != nil {
			return &Error{Kind: KindValidation, Message: fmt.Sprintf("rule %d: %v", i, err), Field: "rules", Fields: []string{"rules"}}
		}
	}
	if err := s.store.ReplaceRules(ctx, org.ID, rules); err != nil {
		return err
	}
	s.logger.Info("availability rules replaced", "organization", org.Slug, "count", len(rules))
	return nil
}

func (s *Service) PutOverride(ctx context.Context, slug string, o model.DateOverride) error {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return err
	}
	o.OrganizationID = org.ID
	if err := o.Validate(); err != nil {
		return &Error{Kind: KindValidation, Message: err.Error(), Field: "override", Fields: []string{"override"}}
	}
	return s.store.PutOverride(ctx, o)
}

func (s *Service) DeleteOverride(ctx context.Context, slug, date string) error {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return err
	}
	if err := s.store.DeleteOverride(ctx, org.ID, date); err != nil {
		if storage.IsNotFound(err) {
			return &Error{Kind: KindNotFound, Message: "no override on " + date, Err: err}
		}
		return err
	}
	return nil
}

func (s *Service) ListBookings(ctx context.Context, slug string, limit int) ([]model.Booking, error) {
	org, err := s.organization(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.store.ListBookings(ctx, org.ID, limit)
}

// CancelBooking soft-cancels a booking, freeing its slot. Cancelling an
// already cancelled booking returns it unchanged.
func (s *Service) CancelBooking(ctx context.Context, slug, bookingID string) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.CancelBooking")
	defer span.End()

	org, err := s.organization(ctx, slug)
	if err != nil {
		return model.Booking{}, recordErr(span, err)
	}
	if _, err := uuid.Parse(bookingID); err != nil {
		return model.Booking{}, &Error{Kind: KindNotFound, Message: "booking " + bookingID + " not found"}
	}
	b, err := s.store.CancelBooking(ctx, org.ID, bookingID, s.clock.Now())
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Booking{}, &Error{Kind: KindNotFound, Message: "booking " + bookingID + " not found", Err: err}
		}
		return model.Booking{}, recordErr(span, err)
	}
	s.logger.Info("booking cancelled", "organization", org.Slug, "booking_id", b.ID)
	return b, nil
}

// Today is the organization-local calendar date according to the service clock.
func (s *Service) Today(org model.Organization) time.Time {
	now := s.clock.Now().In(mustLocation(org))
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
