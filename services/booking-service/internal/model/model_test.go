package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, Window{StartMinute: 540, EndMinute: 720}.Validate())
	assert.NoError(t, Window{StartMinute: 0, EndMinute: MinutesPerDay}.Validate())
	assert.Error(t, Window{StartMinute: 720, EndMinute: 720}.Validate())
	assert.Error(t, Window{StartMinute: -1, EndMinute: 60}.Validate())
	assert.Error(t, Window{StartMinute: 60, EndMinute: MinutesPerDay + 1}.Validate())
}

func TestAvailabilityRuleValidate(t *testing.T) {
	ok := AvailabilityRule{Weekday: time.Monday, Window: Window{StartMinute: 540, EndMinute: 720}}
	assert.NoError(t, ok.Validate())
	bad := AvailabilityRule{Weekday: 7, Window: Window{StartMinute: 540, EndMinute: 720}}
	assert.Error(t, bad.Validate())
}

func TestDateOverrideValidate(t *testing.T) {
	assert.NoError(t, DateOverride{Date: "2026-03-02", Closed: true}.Validate())
	assert.Error(t, DateOverride{Date: "03/02/2026", Closed: true}.Validate())
	assert.Error(t, DateOverride{Date: "2026-03-02", Closed: true, Windows: []Window{{StartMinute: 0, EndMinute: 60}}}.Validate())
}

func TestOrganizationLocation(t *testing.T) {
	loc, err := Organization{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = Organization{Slug: "x", Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}

func TestBookingOverlapsHalfOpen(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	b := Booking{Start: start, End: start.Add(15 * time.Minute)}

	assert.True(t, b.Overlaps(start, start.Add(15*time.Minute)))
	assert.False(t, b.Overlaps(start.Add(15*time.Minute), start.Add(30*time.Minute)))
	assert.False(t, b.Overlaps(start.Add(-15*time.Minute), start))
}
