// Package booking orchestrates availability queries and booking commits on
// top of a storage.Store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proofline/booking/services/booking-service/internal/availability"
	"github.com/proofline/booking/services/booking-service/internal/meeting"
	"github.com/proofline/booking/services/booking-service/internal/model"
	"github.com/proofline/booking/services/booking-service/internal/notify"
	"github.com/proofline/booking/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/proofline/booking/services/booking-service/internal/booking")

// Engine is what the public API needs. Service implements it against a
// store; Demo implements it without one.
type Engine interface {
	Availability(ctx context.Context, slug string, rangeStart time.Time, numDays int) (Availability, error)
	CreateBooking(ctx context.Context, req Request) (Confirmation, error)
}

type Availability struct {
	Organization model.Organization
	Days         []availability.DayAvailability
}

type Request struct {
	OrganizationSlug string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	CustomerCompany  string
	CustomerNotes    string
	StartTime        time.Time
	IdempotencyToken string
}

type Confirmation struct {
	Booking      model.Booking
	Organization model.Organization
	// Replayed is set when an idempotency token matched an earlier booking.
	Replayed bool
}

type Config struct {
	// ProvisionTimeout bounds meeting-link creation after commit.
	ProvisionTimeout time.Duration
	// IdempotencyTTL is how long a client token keeps resolving to its booking.
	IdempotencyTTL time.Duration
}

const (
	DefaultProvisionTimeout = 5 * time.Second
	DefaultIdempotencyTTL   = 24 * time.Hour
)

type Service struct {
	store       storage.Store
	clock       availability.Clock
	provisioner meeting.Provisioner
	dispatcher  notify.Dispatcher
	logger      *slog.Logger
	cfg         Config
	newID       func() string
}

var _ Engine = (*Service)(nil)

func NewService(store storage.Store, clock availability.Clock, provisioner meeting.Provisioner, dispatcher notify.Dispatcher, logger *slog.Logger, cfg Config) *Service {
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = DefaultProvisionTimeout
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if provisioner == nil {
		provisioner = meeting.Noop{}
	}
	return &Service{
		store:       store,
		clock:       clock,
		provisioner: provisioner,
		dispatcher:  dispatcher,
		logger:      logger,
		cfg:         cfg,
		newID:       uuid.NewString,
	}
}

func (s *Service) organization(ctx context.Context, slug string) (model.Organization, error) {
	org, err := s.store.OrganizationBySlug(ctx, slug)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Organization{}, organizationNotFound(slug, err)
		}
		return model.Organization{}, fmt.Errorf("load organization %s: %w", slug, err)
	}
	return org, nil
}

// window loads the schedule and confirmed bookings covering numDays local days
// from the calendar date of rangeStart.
func (s *Service) window(ctx context.Context, org model.Organization, rangeStart time.Time, numDays int) (availability.Schedule, []model.Booking, error) {
	loc, err := org.Location()
	if err != nil {
		return availability.Schedule{}, nil, err
	}
	y, m, d := rangeStart.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+numDays, 0, 0, 0, 0, loc)
	last := end.AddDate(0, 0, -1)

	rules, err := s.store.Rules(ctx, org.ID)
	if err != nil {
		return availability.Schedule{}, nil, fmt.Errorf("load rules: %w", err)
	}
	overrides, err := s.store.Overrides(ctx, org.ID, first.Format(model.DateLayout), last.Format(model.DateLayout))
	if err != nil {
		return availability.Schedule{}, nil, fmt.Errorf("load overrides: %w", err)
	}
	bookings, err := s.store.ConfirmedBookingsInRange(ctx, org.ID, first, end)
	if err != nil {
		return availability.Schedule{}, nil, fmt.Errorf("load bookings: %w", err)
	}
	return availability.NewSchedule(rules, overrides), bookings, nil
}

// Availability returns numDays of slots from the calendar date of rangeStart.
// A zero rangeStart means today in the organization's timezone.
func (s *Service) Availability(ctx context.Context, slug string, rangeStart time.Time, numDays int) (Availability, error) {
	ctx, span := tracer.Start(ctx, "booking.Availability", trace.WithAttributes(
		attribute.String("organization", slug),
		attribute.Int("days", numDays),
	))
	defer span.End()

	if numDays <= 0 {
		return Availability{}, &Error{Kind: KindInvalidArgument, Message: "days must be positive", Field: "days", Err: availability.ErrInvalidRange}
	}
	org, err := s.organization(ctx, slug)
	if err != nil {
		return Availability{}, recordErr(span, err)
	}
	if rangeStart.IsZero() {
		rangeStart = s.Today(org)
	}
	sched, bookings, err := s.window(ctx, org, rangeStart, numDays)
	if err != nil {
		return Availability{}, recordErr(span, err)
	}
	days, err := availability.Generate(org, sched, bookings, rangeStart, numDays, s.clock.Now())
	if err != nil {
		return Availability{}, recordErr(span, err)
	}
	return Availability{Organization: org, Days: days}, nil
}

// CreateBooking commits a booking for req. The order of checks is organization,
// idempotency token, slot availability, contact fields, then the atomic insert.
func (s *Service) CreateBooking(ctx context.Context, req Request) (Confirmation, error) {
	req.normalize()
	ctx, span := tracer.Start(ctx, "booking.CreateBooking", trace.WithAttributes(
		attribute.String("organization", req.OrganizationSlug),
		attribute.Bool("idempotent", req.IdempotencyToken != ""),
	))
	defer span.End()

	org, err := s.organization(ctx, req.OrganizationSlug)
	if err != nil {
		return Confirmation{}, recordErr(span, err)
	}

	now := s.clock.Now()
	notBefore := now.Add(-s.cfg.IdempotencyTTL)
	if req.IdempotencyToken != "" {
		if conf, ok, err := s.replay(ctx, org, req.IdempotencyToken, notBefore); err != nil || ok {
			return conf, recordErr(span, err)
		}
	}

	if req.StartTime.IsZero() {
		return Confirmation{}, validationError([]string{"start_time"}, "Please choose a time.")
	}
	sched, bookings, err := s.window(ctx, org, req.StartTime.In(mustLocation(org)), 1)
	if err != nil {
		return Confirmation{}, recordErr(span, err)
	}
	ok, err := availability.CheckSlot(org, sched, bookings, req.StartTime, now)
	if err != nil {
		return Confirmation{}, recordErr(span, err)
	}
	if !ok {
		// A concurrent retry with the same token may have taken the slot.
		return s.insertFailed(ctx, span, org, req.IdempotencyToken, notBefore, storage.ErrConflict)
	}

	if verr := validateContact(req); verr != nil {
		return Confirmation{}, verr
	}

	loc := mustLocation(org)
	b := model.Booking{
		ID:              s.newID(),
		OrganizationID:  org.ID,
		Start:           req.StartTime.In(loc),
		End:             req.StartTime.In(loc).Add(org.Duration()),
		DurationMinutes: org.DurationMinutes,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		CustomerCompany: req.CustomerCompany,
		CustomerNotes:   req.CustomerNotes,
		Status:          model.StatusConfirmed,
		CreatedAt:       now,
	}
	if err := s.store.InsertBooking(ctx, b, req.IdempotencyToken, notBefore); err != nil {
		return s.insertFailed(ctx, span, org, req.IdempotencyToken, notBefore, err)
	}
	span.SetAttributes(attribute.String("booking_id", b.ID))
	s.logger.Info("booking confirmed", "organization", org.Slug, "booking_id", b.ID, "start", b.Start.Format(time.RFC3339))

	b.MeetingLink = s.provision(ctx, org, b)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, notify.Notification{Kind: notify.KindBookingConfirmed, Organization: org, Booking: b})
	}
	return Confirmation{Booking: b, Organization: org}, nil
}

// insertFailed maps a rejected insert. A concurrent submission carrying the
// same token wins the race and its booking is returned instead.
func (s *Service) insertFailed(ctx context.Context, span trace.Span, org model.Organization, token string, notBefore time.Time, err error) (Confirmation, error) {
	if token != "" && (storage.IsConflict(err) || errors.Is(err, storage.ErrDuplicateKey)) {
		conf, ok, rerr := s.replay(ctx, org, token, notBefore)
		if rerr != nil {
			return Confirmation{}, recordErr(span, rerr)
		}
		if ok {
			return conf, nil
		}
	}
	if storage.IsConflict(err) {
		s.logger.Info("booking lost race", "organization", org.Slug, "err", err)
		return Confirmation{}, slotNoLongerAvailable(err)
	}
	return Confirmation{}, recordErr(span, fmt.Errorf("insert booking: %w", err))
}

func (s *Service) replay(ctx context.Context, org model.Organization, token string, notBefore time.Time) (Confirmation, bool, error) {
	b, err := s.store.BookingByIdempotencyKey(ctx, org.ID, token, notBefore)
	if err != nil {
		if storage.IsNotFound(err) {
			return Confirmation{}, false, nil
		}
		return Confirmation{}, false, fmt.Errorf("lookup idempotency token: %w", err)
	}
	if loc, lerr := org.Location(); lerr == nil {
		b.Start, b.End = b.Start.In(loc), b.End.In(loc)
	}
	s.logger.Info("booking replayed", "organization", org.Slug, "booking_id", b.ID)
	return Confirmation{Booking: b, Organization: org, Replayed: true}, true, nil
}

// provision creates the meeting link after commit. Failures are logged and
// leave the booking without a link.
func (s *Service) provision(ctx context.Context, org model.Organization, b model.Booking) string {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ProvisionTimeout)
	defer cancel()

	link, err := s.provisioner.Provision(pctx, b, org)
	if err != nil {
		s.logger.Warn("meeting provisioning failed",
			"kind", KindProvisioningFailure, "provider", s.provisioner.ProviderID(), "booking_id", b.ID, "err", err)
		return ""
	}
	if link == "" {
		return ""
	}
	if err := s.store.SetMeetingLink(pctx, org.ID, b.ID, link); err != nil {
		s.logger.Warn("meeting link not stored", "kind", KindProvisioningFailure, "booking_id", b.ID, "err", err)
	}
	return link
}

func mustLocation(org model.Organization) *time.Location {
	loc, err := org.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func recordErr(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
