// Package postgres is the production booking ledger. Overlap safety comes from
// the bookings_no_overlap exclusion constraint; booking state changes also
// write an outbox event in the same transaction.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/proofline/booking/libs/db"
	"github.com/proofline/booking/services/booking-service/internal/model"
	"github.com/proofline/booking/services/booking-service/internal/outbox"
	"github.com/proofline/booking/services/booking-service/internal/storage"
)

//go:embed schema.sql
var schema string

const (
	sqlstateExclusionViolation = "23P01"
	sqlstateUniqueViolation    = "23505"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ storage.Store = (*Store)(nil)

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository()}
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate booking schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) OrganizationBySlug(ctx context.Context, slug string) (model.Organization, error) {
	var org model.Organization
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, slug, name, duration_minutes, timezone, owner_email, owner_phone
		FROM organizations
		WHERE slug = $1
	`, slug).Scan(&org.ID, &org.Slug, &org.Name, &org.DurationMinutes, &org.Timezone, &org.OwnerEmail, &org.OwnerPhone)
	if err != nil {
		return model.Organization{}, wrapNoRows(err, "organization "+slug)
	}
	return org, nil
}

// UpsertOrganization keys on slug; org.ID is used only when the row is new.
func (s *Store) UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO organizations (id, slug, name, duration_minutes, timezone, owner_email, owner_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			timezone = EXCLUDED.timezone,
			owner_email = EXCLUDED.owner_email,
			owner_phone = EXCLUDED.owner_phone,
			updated_at = now()
		RETURNING id::text
	`, org.ID, org.Slug, org.Name, org.DurationMinutes, org.Timezone, org.OwnerEmail, org.OwnerPhone).Scan(&org.ID)
	if err != nil {
		return model.Organization{}, fmt.Errorf("upsert organization %s: %w", org.Slug, err)
	}
	return org, nil
}

func (s *Store) Rules(ctx context.Context, orgID string) ([]model.AvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM availability_rules
		WHERE organization_id = $1
		ORDER BY weekday, start_minute, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		r := model.AvailabilityRule{OrganizationID: orgID}
		var weekday int16
		if err := rows.Scan(&weekday, &r.StartMinute, &r.EndMinute); err != nil {
			return nil, err
		}
		r.Weekday = time.Weekday(weekday)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) ReplaceRules(ctx context.Context, orgID string, rules []model.AvailabilityRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE organization_id = $1`, orgID); err != nil {
		return err
	}
	for _, r := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (organization_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, orgID, int16(r.Weekday), r.StartMinute, r.EndMinute); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Overrides(ctx context.Context, orgID, from, to string) ([]model.DateOverride, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(override_date, 'YYYY-MM-DD'), closed, windows
		FROM date_overrides
		WHERE organization_id = $1
			AND override_date BETWEEN $2::text::date AND $3::text::date
		ORDER BY override_date
	`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		o := model.DateOverride{OrganizationID: orgID}
		var raw []byte
		if err := rows.Scan(&o.Date, &o.Closed, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &o.Windows); err != nil {
			return nil, fmt.Errorf("decode override %s windows: %w", o.Date, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) PutOverride(ctx context.Context, o model.DateOverride) error {
	windows := o.Windows
	if windows == nil {
		windows = []model.Window{}
	}
	raw, err := json.Marshal(windows)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO date_overrides (organization_id, override_date, closed, windows)
		VALUES ($1, $2::text::date, $3, $4::text::jsonb)
		ON CONFLICT (organization_id, override_date) DO UPDATE
		SET closed = EXCLUDED.closed, windows = EXCLUDED.windows
	`, o.OrganizationID, o.Date, o.Closed, string(raw))
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, orgID, date string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM date_overrides
		WHERE organization_id = $1 AND override_date = $2::text::date
	`, orgID, date)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("override %s: %w", date, storage.ErrNotFound)
	}
	return nil
}

const bookingColumns = `id::text, organization_id::text, start_time, end_time, duration_minutes,
	customer_name, customer_email, customer_phone, customer_company, customer_notes,
	status, meeting_link, created_at, cancelled_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.OrganizationID,
		&b.Start,
		&b.End,
		&b.DurationMinutes,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.CustomerCompany,
		&b.CustomerNotes,
		&b.Status,
		&b.MeetingLink,
		&b.CreatedAt,
		&b.CancelledAt,
	)
	return b, err
}

func (s *Store) queryBookings(ctx context.Context, sql string, args ...any) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ConfirmedBookingsInRange(ctx context.Context, orgID string, start, end time.Time) ([]model.Booking, error) {
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE organization_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, orgID, start, end)
}

func (s *Store) ListBookings(ctx context.Context, orgID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE organization_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, orgID, limit)
}

func (s *Store) BookingByIdempotencyKey(ctx context.Context, orgID, key string, notBefore time.Time) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT b.id::text, b.organization_id::text, b.start_time, b.end_time, b.duration_minutes,
			b.customer_name, b.customer_email, b.customer_phone, b.customer_company, b.customer_notes,
			b.status, b.meeting_link, b.created_at, b.cancelled_at
		FROM booking_idempotency_keys k
		JOIN bookings b ON b.id = k.booking_id
		WHERE k.organization_id = $1
			AND k.idempotency_key = $2
			AND k.created_at >= $3
	`, orgID, key, notBefore))
	if err != nil {
		return model.Booking{}, wrapNoRows(err, "idempotency key")
	}
	return b, nil
}

func (s *Store) InsertBooking(ctx context.Context, b model.Booking, key string, notBefore time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if key != "" {
		// A concurrent holder of the same key blocks here until it commits; the
		// WHERE clause then leaves its live row untouched.
		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_idempotency_keys (organization_id, idempotency_key, booking_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (organization_id, idempotency_key) DO UPDATE
			SET booking_id = EXCLUDED.booking_id, created_at = EXCLUDED.created_at
			WHERE booking_idempotency_keys.created_at < $5
		`, b.OrganizationID, key, b.ID, b.CreatedAt, notBefore)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrDuplicateKey
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings
			(id, organization_id, start_time, end_time, duration_minutes, customer_name, customer_email,
			customer_phone, customer_company, customer_notes, status, meeting_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, b.ID, b.OrganizationID, b.Start, b.End, b.DurationMinutes, b.CustomerName, b.CustomerEmail,
		b.CustomerPhone, b.CustomerCompany, b.CustomerNotes, b.Status, b.MeetingLink, b.CreatedAt)
	if err != nil {
		return mapInsertErr(err)
	}

	evt, err := outbox.BookingEvent(outbox.EventBookingConfirmed, b)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) SetMeetingLink(ctx context.Context, orgID, bookingID, link string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET meeting_link = $3
		WHERE id = $1 AND organization_id = $2
	`, bookingID, orgID, link)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", bookingID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CancelBooking(ctx context.Context, orgID, bookingID string, at time.Time) (model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, bookingID, orgID))
	if err != nil {
		return model.Booking{}, wrapNoRows(err, "booking "+bookingID)
	}
	if b.Status == model.StatusCancelled {
		return b, nil
	}

	if err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = $3
		WHERE id = $1 AND organization_id = $2
		RETURNING status, cancelled_at
	`, bookingID, orgID, at).Scan(&b.Status, &b.CancelledAt); err != nil {
		return model.Booking{}, err
	}

	evt, err := outbox.BookingEvent(outbox.EventBookingCancelled, b)
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return model.Booking{}, fmt.Errorf("write outbox event: %w", err)
	}
	return b, tx.Commit(ctx)
}

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateExclusionViolation:
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
		case sqlstateUniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, pgErr.ConstraintName)
		}
	}
	return err
}

func wrapNoRows(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}
