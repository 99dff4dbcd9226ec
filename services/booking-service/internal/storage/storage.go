// Package storage defines the booking ledger contract shared by the Postgres
// and SQLite backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the booking overlaps a confirmed booking of the same
	// organization. Backends raise it from a storage-level constraint.
	ErrConflict = errors.New("booking overlaps a confirmed booking")
	// ErrDuplicateKey means a live record already holds the idempotency key.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

type Store interface {
	OrganizationBySlug(ctx context.Context, slug string) (model.Organization, error)
	UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error)

	Rules(ctx context.Context, orgID string) ([]model.AvailabilityRule, error)
	ReplaceRules(ctx context.Context, orgID string, rules []model.AvailabilityRule) error
	// Overrides returns the overrides dated within [from, to], both YYYY-MM-DD.
	Overrides(ctx context.Context, orgID, from, to string) ([]model.DateOverride, error)
	PutOverride(ctx context.Context, o model.DateOverride) error
	DeleteOverride(ctx context.Context, orgID, date string) error

	// ConfirmedBookingsInRange returns confirmed bookings intersecting [start, end).
	ConfirmedBookingsInRange(ctx context.Context, orgID string, start, end time.Time) ([]model.Booking, error)
	// BookingByIdempotencyKey returns the booking recorded for key at or after notBefore.
	BookingByIdempotencyKey(ctx context.Context, orgID, key string, notBefore time.Time) (model.Booking, error)
	// InsertBooking writes b atomically. When key is set it is recorded in the
	// same transaction; a record created before notBefore is treated as expired
	// and replaced.
	InsertBooking(ctx context.Context, b model.Booking, key string, notBefore time.Time) error
	SetMeetingLink(ctx context.Context, orgID, bookingID, link string) error
	// CancelBooking marks the booking cancelled. Cancelling twice is not an error.
	CancelBooking(ctx context.Context, orgID, bookingID string, at time.Time) (model.Booking, error)
	ListBookings(ctx context.Context, orgID string, limit int) ([]model.Booking, error)

	Ping(ctx context.Context) error
	Close()
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
