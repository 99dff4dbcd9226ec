package model

import (
	"fmt"
	"time"
)

const (
	DefaultDurationMinutes = 15
	MinutesPerDay          = 24 * 60
	DateLayout             = "2006-01-02"

	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

type Organization struct {
	ID              string
	Slug            string
	Name            string
	DurationMinutes int
	Timezone        string
	OwnerEmail      string
	OwnerPhone      string
}

// Location resolves the organization's IANA timezone. An empty timezone means UTC.
func (o Organization) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s timezone %q: %w", o.Slug, o.Timezone, err)
	}
	return loc, nil
}

func (o Organization) Duration() time.Duration {
	return time.Duration(o.DurationMinutes) * time.Minute
}

// Window is a [Start, End) range of minutes after local midnight.
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

func (w Window) Validate() error {
	if w.StartMinute < 0 || w.EndMinute > MinutesPerDay || w.StartMinute >= w.EndMinute {
		return fmt.Errorf("window %d-%d must satisfy 0 <= start < end <= %d", w.StartMinute, w.EndMinute, MinutesPerDay)
	}
	return nil
}

type AvailabilityRule struct {
	OrganizationID string
	Weekday        time.Weekday
	Window
}

func (r AvailabilityRule) Validate() error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("weekday %d out of range", r.Weekday)
	}
	return r.Window.Validate()
}

// DateOverride replaces the weekday rules for a single local date.
type DateOverride struct {
	OrganizationID string
	Date           string
	Closed         bool
	Windows        []Window
}

func (o DateOverride) Validate() error {
	if _, err := time.Parse(DateLayout, o.Date); err != nil {
		return fmt.Errorf("override date %q must be YYYY-MM-DD", o.Date)
	}
	if o.Closed && len(o.Windows) > 0 {
		return fmt.Errorf("closed override %s cannot carry windows", o.Date)
	}
	for _, w := range o.Windows {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type Booking struct {
	ID              string
	OrganizationID  string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerCompany string
	CustomerNotes   string
	Status          string
	MeetingLink     string
	CreatedAt       time.Time
	CancelledAt     *time.Time
}

// Overlaps reports whether [start, end) intersects the booking's interval.
func (b Booking) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}
