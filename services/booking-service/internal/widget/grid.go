package widget

import (
	"time"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

// GridDays is the number of cells in a month view: six full weeks.
const GridDays = 42

type Cell struct {
	Date         string
	Day          int
	InMonth      bool
	Today        bool
	HasAvailable bool
}

// FirstOfMonth truncates t to the first day of its month, as a UTC date.
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// GridWindow returns the Sunday on or before the first of month. The grid
// covers GridDays days from there.
func GridWindow(month time.Time) time.Time {
	first := FirstOfMonth(month)
	return first.AddDate(0, 0, -int(first.Weekday()))
}

// MonthGrid lays out the month containing month. days holds fetched slots
// keyed by YYYY-MM-DD; missing dates have no availability.
func MonthGrid(month, today time.Time, days map[string][]Slot) []Cell {
	first := FirstOfMonth(month)
	start := GridWindow(first)
	todayKey := today.Format(model.DateLayout)

	cells := make([]Cell, 0, GridDays)
	for i := 0; i < GridDays; i++ {
		d := start.AddDate(0, 0, i)
		key := d.Format(model.DateLayout)
		cells = append(cells, Cell{
			Date:         key,
			Day:          d.Day(),
			InMonth:      d.Month() == first.Month(),
			Today:        key == todayKey,
			HasAvailable: anyAvailable(days[key]),
		})
	}
	return cells
}

func anyAvailable(slots []Slot) bool {
	for _, s := range slots {
		if s.Available {
			return true
		}
	}
	return false
}
