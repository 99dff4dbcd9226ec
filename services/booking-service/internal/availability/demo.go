package availability

import (
	"hash/fnv"
	"time"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

// Demo schedule used when no store is configured.
const (
	DemoDurationMinutes = 30
	demoOpenMinute      = 9 * 60
	demoCloseMinute     = 17 * 60
	demoTakenOneIn      = 4
)

// DemoOrganization describes the synthetic organization served in demo mode.
func DemoOrganization(slug string, loc *time.Location) model.Organization {
	return model.Organization{
		ID:              "demo",
		Slug:            slug,
		Name:            "Demo",
		DurationMinutes: DemoDurationMinutes,
		Timezone:        loc.String(),
	}
}

// DemoSchedule opens weekdays 09:00-17:00.
func DemoSchedule() Schedule {
	var rules []model.AvailabilityRule
	for wd := time.Monday; wd <= time.Friday; wd++ {
		rules = append(rules, model.AvailabilityRule{
			Weekday: wd,
			Window:  model.Window{StartMinute: demoOpenMinute, EndMinute: demoCloseMinute},
		})
	}
	return Schedule{Rules: rules}
}

// Demo produces a plausible grid: weekday slots where roughly one in four is
// pseudo-randomly taken. The choice depends only on date and time of day, so
// the same range always renders the same way.
func Demo(slug string, loc *time.Location, rangeStart time.Time, numDays int, now time.Time) ([]DayAvailability, error) {
	days, err := Generate(DemoOrganization(slug, loc), DemoSchedule(), nil, rangeStart, numDays, now)
	if err != nil {
		return nil, err
	}
	for i := range days {
		for j := range days[i].Slots {
			s := &days[i].Slots[j]
			if s.Available && demoTaken(days[i].Date, s.Start) {
				s.Available = false
			}
		}
	}
	return days, nil
}

func demoTaken(date string, start time.Time) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(date))
	_, _ = h.Write([]byte(start.Format("15:04")))
	return h.Sum32()%demoTakenOneIn == 0
}
