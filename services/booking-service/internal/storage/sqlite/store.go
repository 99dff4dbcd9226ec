/*
Package sqlite is the embedded booking ledger for single-node deployments.

The database is opened with one connection, so writers are serialized, and a
BEFORE INSERT trigger rejects a confirmed booking that overlaps another one of
the same organization. Times are stored as Unix milliseconds.

It does not write outbox events; event publishing needs the Postgres backend.
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/proofline/booking/services/booking-service/internal/model"
	"github.com/proofline/booking/services/booking-service/internal/storage"
)

//go:embed schema.sql
var schema string

const overlapMessage = "booking_overlap"

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (and migrates) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) OrganizationBySlug(ctx context.Context, slug string) (model.Organization, error) {
	var org model.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, duration_minutes, timezone, owner_email, owner_phone
		FROM organizations WHERE slug = ?
	`, slug).Scan(&org.ID, &org.Slug, &org.Name, &org.DurationMinutes, &org.Timezone, &org.OwnerEmail, &org.OwnerPhone)
	if err != nil {
		return model.Organization{}, wrapNoRows(err, "organization "+slug)
	}
	return org, nil
}

func (s *Store) UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO organizations (id, slug, name, duration_minutes, timezone, owner_email, owner_phone)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE
		SET name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			timezone = excluded.timezone,
			owner_email = excluded.owner_email,
			owner_phone = excluded.owner_phone
		RETURNING id
	`, org.ID, org.Slug, org.Name, org.DurationMinutes, org.Timezone, org.OwnerEmail, org.OwnerPhone).Scan(&org.ID)
	if err != nil {
		return model.Organization{}, fmt.Errorf("upsert organization %s: %w", org.Slug, err)
	}
	return org, nil
}

func (s *Store) Rules(ctx context.Context, orgID string) ([]model.AvailabilityRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM availability_rules
		WHERE organization_id = ?
		ORDER BY weekday, start_minute, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		r := model.AvailabilityRule{OrganizationID: orgID}
		var weekday int
		if err := rows.Scan(&weekday, &r.StartMinute, &r.EndMinute); err != nil {
			return nil, err
		}
		r.Weekday = time.Weekday(weekday)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) ReplaceRules(ctx context.Context, orgID string, rules []model.AvailabilityRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_rules WHERE organization_id = ?`, orgID); err != nil {
		return err
	}
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO availability_rules (organization_id, weekday, start_minute, end_minute)
			VALUES (?, ?, ?, ?)
		`, orgID, int(r.Weekday), r.StartMinute, r.EndMinute); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) Overrides(ctx context.Context, orgID, from, to string) ([]model.DateOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT override_date, closed, windows_json
		FROM date_overrides
		WHERE organization_id = ? AND override_date BETWEEN ? AND ?
		ORDER BY override_date
	`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		o := model.DateOverride{OrganizationID: orgID}
		var raw string
		if err := rows.Scan(&o.Date, &o.Closed, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &o.Windows); err != nil {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO date_overrides (organization_id, override_date, closed, windows_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (organization_id, override_date) DO UPDATE
		SET closed = excluded.closed, windows_json = excluded.windows_json
	`, o.OrganizationID, o.Date, o.Closed, string(raw))
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, orgID, date string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM date_overrides WHERE organization_id = ? AND override_date = ?
	`, orgID, date)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("override %s: %w", date, storage.ErrNotFound)
	}
	return nil
}

const bookingColumns = `id, organization_id, start_ms, end_ms, duration_minutes,
	customer_name, customer_email, customer_phone, customer_company, customer_notes,
	status, meeting_link, created_ms, cancelled_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b                         model.Booking
		startMS, endMS, createdMS int64
		cancelledMS               sql.NullInt64
	)
	err := row.Scan(
		&b.ID,
		&b.OrganizationID,
		&startMS,
		&endMS,
		&b.DurationMinutes,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.CustomerCompany,
		&b.CustomerNotes,
		&b.Status,
		&b.MeetingLink,
		&createdMS,
		&cancelledMS,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Start = fromMillis(startMS)
	b.End = fromMillis(endMS)
	b.CreatedAt = fromMillis(createdMS)
	if cancelledMS.Valid {
		t := fromMillis(cancelledMS.Int64)
		b.CancelledAt = &t
	}
	return b, nil
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
		WHERE organization_id = ? AND status = 'confirmed' AND start_ms < ? AND end_ms > ?
		ORDER BY start_ms ASC
	`, orgID, end.UnixMilli(), start.UnixMilli())
}

func (s *Store) ListBookings(ctx context.Context, orgID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE organization_id = ?
		ORDER BY start_ms DESC
		LIMIT ?
	`, orgID, limit)
}

func (s *Store) BookingByIdempotencyKey(ctx context.Context, orgID, key string, notBefore time.Time) (model.Booking, error) {
	b, err := scanBooking(s.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = (
			SELECT booking_id FROM booking_idempotency_keys
			WHERE organization_id = ? AND idempotency_key = ? AND created_ms >= ?
		)
	`, orgID, key, notBefore.UnixMilli()))
	if err != nil {
		return model.Booking{}, wrapNoRows(err, "idempotency key")
	}
	return b, nil
}

func (s *Store) InsertBooking(ctx context.Context, b model.Booking, key string, notBefore time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if key != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO booking_idempotency_keys (organization_id, idempotency_key, booking_id, created_ms)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (organization_id, idempotency_key) DO UPDATE
			SET booking_id = excluded.booking_id, created_ms = excluded.created_ms
			WHERE booking_idempotency_keys.created_ms < ?
		`, b.OrganizationID, key, b.ID, b.CreatedAt.UnixMilli(), notBefore.UnixMilli())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrDuplicateKey
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings
			(id, organization_id, start_ms, end_ms, duration_minutes, customer_name, customer_email,
			customer_phone, customer_company, customer_notes, status, meeting_link, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.OrganizationID, b.Start.UnixMilli(), b.End.UnixMilli(), b.DurationMinutes, b.CustomerName, b.CustomerEmail,
		b.CustomerPhone, b.CustomerCompany, b.CustomerNotes, b.Status, b.MeetingLink, b.CreatedAt.UnixMilli())
	if err != nil {
		return mapInsertErr(err)
	}
	return tx.Commit()
}

func (s *Store) SetMeetingLink(ctx context.Context, orgID, bookingID, link string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET meeting_link = ? WHERE id = ? AND organization_id = ?
	`, link, bookingID, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("booking %s: %w", bookingID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CancelBooking(ctx context.Context, orgID, bookingID string, at time.Time) (model.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = 'cancelled', cancelled_ms = ?
		WHERE id = ? AND organization_id = ? AND status = 'confirmed'
	`, at.UnixMilli(), bookingID, orgID); err != nil {
		return model.Booking{}, err
	}
	b, err := scanBooking(tx.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE id = ? AND organization_id = ?
	`, bookingID, orgID))
	if err != nil {
		return model.Booking{}, wrapNoRows(err, "booking "+bookingID)
	}
	return b, tx.Commit()
}

func mapInsertErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		if strings.Contains(sqliteErr.Error(), overlapMessage) {
			return fmt.Errorf("%w: %s", storage.ErrConflict, overlapMessage)
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %v", storage.ErrDuplicateKey, err)
		}
	}
	return err
}

func wrapNoRows(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
