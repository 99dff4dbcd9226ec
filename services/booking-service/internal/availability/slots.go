package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

var (
	ErrInvalidDuration = errors.New("booking duration must be positive")
	ErrInvalidRange    = errors.New("number of days must be positive")
)

const LabelLayout = "3:04 PM"

type TimeSlot struct {
	Start     time.Time
	Label     string
	Available bool
}

type DayAvailability struct {
	Date  string
	Slots []TimeSlot
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Schedule is an organization's weekly rules plus its date overrides keyed by
// YYYY-MM-DD.
type Schedule struct {
	Rules     []model.AvailabilityRule
	Overrides map[string]model.DateOverride
}

func NewSchedule(rules []model.AvailabilityRule, overrides []model.DateOverride) Schedule {
	s := Schedule{Rules: rules, Overrides: make(map[string]model.DateOverride, len(overrides))}
	for _, o := range overrides {
		s.Overrides[o.Date] = o
	}
	return s
}

// WindowsFor returns the windows governing the local date: the override's
// windows when one exists, otherwise every rule for that weekday.
func (s Schedule) WindowsFor(day time.Time) []model.Window {
	if o, ok := s.Overrides[day.Format(model.DateLayout)]; ok {
		if o.Closed {
			return nil
		}
		return o.Windows
	}
	var out []model.Window
	for _, r := range s.Rules {
		if r.Weekday == day.Weekday() {
			out = append(out, r.Window)
		}
	}
	return out
}

// Generate returns one DayAvailability per local calendar day, starting at the
// calendar date of rangeStart in the organization's timezone. Unavailable
// slots are kept so callers can render them greyed out.
func Generate(org model.Organization, sched Schedule, bookings []model.Booking, rangeStart time.Time, numDays int, now time.Time) ([]DayAvailability, error) {
	if org.DurationMinutes <= 0 {
		return nil, fmt.Errorf("organization %s: %w", org.Slug, ErrInvalidDuration)
	}
	if numDays <= 0 {
		return nil, ErrInvalidRange
	}
	loc, err := org.Location()
	if err != nil {
		return nil, err
	}

	busy := busyIntervals(bookings)
	y, m, d := rangeStart.Date()
	days := make([]DayAvailability, 0, numDays)
	for i := 0; i < numDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		days = append(days, DayAvailability{
			Date:  day.Format(model.DateLayout),
			Slots: daySlots(day, sched.WindowsFor(day), org.Duration(), busy, now),
		})
	}
	return days, nil
}

// CheckSlot reports whether start is an available candidate of its local day
// against the given bookings.
func CheckSlot(org model.Organization, sched Schedule, bookings []model.Booking, start time.Time, now time.Time) (bool, error) {
	loc, err := org.Location()
	if err != nil {
		return false, err
	}
	days, err := Generate(org, sched, bookings, start.In(loc), 1, now)
	if err != nil {
		return false, err
	}
	for _, s := range days[0].Slots {
		if s.Available && s.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func daySlots(day time.Time, windows []model.Window, duration time.Duration, busy []Interval, now time.Time) []TimeSlot {
	var slots []TimeSlot
	y, m, d := day.Date()
	for _, w := range windows {
		windowStart := time.Date(y, m, d, 0, w.StartMinute, 0, 0, day.Location())
		windowEnd := time.Date(y, m, d, 0, w.EndMinute, 0, 0, day.Location())
		for _, t := range candidates(windowStart, windowEnd, duration) {
			slots = append(slots, TimeSlot{
				Start:     t,
				Label:     t.Format(LabelLayout),
				Available: !t.Before(now) && !overlapsAny(t, t.Add(duration), busy),
			})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// candidates returns start times within [windowStart, windowEnd) spaced by
// duration where the whole slot fits inside the window.
func candidates(windowStart, windowEnd time.Time, duration time.Duration) []time.Time {
	if duration <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	var out []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		out = append(out, t)
	}
	return out
}

func busyIntervals(bookings []model.Booking) []Interval {
	busy := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == model.StatusCancelled {
			continue
		}
		busy = append(busy, Interval{Start: b.Start, End: b.End})
	}
	return busy
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
