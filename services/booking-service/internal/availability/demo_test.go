package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemo_WeekdaysOnlyAndDeterministic(t *testing.T) {
	now := monday.AddDate(0, 0, -7)
	a, err := Demo("proofline", time.UTC, monday, 14, now)
	require.NoError(t, err)
	b, err := Demo("proofline", time.UTC, monday, 14, now)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var taken, total int
	for _, d := range a {
		day, err := time.Parse("2006-01-02", d.Date)
		require.NoError(t, err)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			assert.Empty(t, d.Slots, d.Date)
			continue
		}
		require.Len(t, d.Slots, 16, d.Date)
		assert.Equal(t, "9:00 AM", d.Slots[0].Label)
		assert.Equal(t, "4:30 PM", d.Slots[15].Label)
		for _, s := range d.Slots {
			total++
			if !s.Available {
				taken++
			}
		}
	}
	assert.Greater(t, taken, 0, "some slots should be pre-marked unavailable")
	assert.Less(t, taken, total)
}

func TestDemo_PastSlotsUnavailable(t *testing.T) {
	now := monday.Add(12 * time.Hour)
	days, err := Demo("proofline", time.UTC, monday, 1, now)
	require.NoError(t, err)
	for _, s := range days[0].Slots {
		if s.Start.Before(now) {
			assert.False(t, s.Available, s.Label)
		}
	}
}
