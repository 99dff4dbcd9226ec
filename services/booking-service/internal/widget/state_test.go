package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var today = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return today.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func marchDays() []Day {
	return []Day{
		{Date: "2026-03-02", Slots: []Slot{
			{Start: at(9, 0), Label: "9:00 AM", Available: false},
			{Start: at(9, 15), Label: "9:15 AM", Available: true},
		}},
		{Date: "2026-03-03"},
	}
}

func loaded(t *testing.T) State {
	t.Helper()
	s, eff := Init(today)
	fetch, ok := eff.(FetchAvailability)
	require.True(t, ok)
	s, eff = Reduce(s, AvailabilityLoaded{Month: fetch.Month, Days: marchDays()})
	require.Nil(t, eff)
	return s
}

func inForm(t *testing.T) State {
	t.Helper()
	s := loaded(t)
	s, _ = Reduce(s, SelectDate{Date: "2026-03-02"})
	s, _ = Reduce(s, SelectSlot{Start: at(9, 15)})
	s, _ = Reduce(s, Continue{})
	require.Equal(t, StepForm, s.Step)
	s, _ = Reduce(s, EditContact{Contact: Contact{Name: "Ada", Email: "ada@example.com"}})
	return s
}

func TestInitFetchesGridWindow(t *testing.T) {
	s, eff := Init(today)
	assert.Equal(t, StepCalendar, s.Step)
	assert.True(t, s.Loading)

	fetch, ok := eff.(FetchAvailability)
	require.True(t, ok)
	assert.Equal(t, GridDays, fetch.Days)
	assert.True(t, fetch.Start.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSelectingSlotArmsContinue(t *testing.T) {
	s := loaded(t)
	assert.False(t, s.Loading)

	s, eff := Reduce(s, Continue{})
	assert.Nil(t, eff)
	assert.Equal(t, StepCalendar, s.Step)

	s, eff = Reduce(s, SelectDate{Date: "2026-03-02"})
	assert.Nil(t, eff)
	assert.Len(t, s.SlotsForSelectedDate(), 2)

	s, _ = Reduce(s, SelectSlot{Start: at(9, 0)})
	assert.Nil(t, s.SelectedSlot, "unavailable slot cannot be picked")
	assert.False(t, s.CanContinue())

	s, _ = Reduce(s, SelectSlot{Start: at(9, 15)})
	require.NotNil(t, s.SelectedSlot)
	assert.True(t, s.CanContinue())

	s, _ = Reduce(s, SelectDate{Date: "2026-03-03"})
	assert.Nil(t, s.SelectedSlot)
	assert.False(t, s.CanContinue())
}

func TestChangeMonthClearsSelectionAndRefetches(t *testing.T) {
	s := loaded(t)
	s, _ = Reduce(s, SelectDate{Date: "2026-03-02"})
	s, _ = Reduce(s, SelectSlot{Start: at(9, 15)})

	next, eff := Reduce(s, ChangeMonth{Delta: 1})
	assert.Empty(t, next.SelectedDate)
	assert.Nil(t, next.SelectedSlot)
	assert.True(t, next.Loading)
	assert.True(t, next.Month.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	fetch, ok := eff.(FetchAvailability)
	require.True(t, ok)
	assert.True(t, fetch.Start.Equal(time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, GridDays, fetch.Days)

	stale, _ := Reduce(next, AvailabilityLoaded{Month: s.Month, Days: marchDays()})
	assert.True(t, stale.Loading, "responses for another month are dropped")
}

func TestSubmitIsSingleFlight(t *testing.T) {
	s := inForm(t)

	s, eff := Reduce(s, Submit{Token: "tok-a"})
	submit, ok := eff.(SubmitBooking)
	require.True(t, ok)
	assert.Equal(t, "tok-a", submit.Token)
	assert.True(t, submit.Start.Equal(at(9, 15)))
	assert.Equal(t, "Ada", submit.Contact.Name)
	assert.True(t, s.Submitting)

	again, eff := Reduce(s, Submit{Token: "tok-b"})
	assert.Nil(t, eff)
	assert.Equal(t, s, again)

	back, _ := Reduce(s, Back{})
	assert.Equal(t, StepForm, back.Step, "cannot leave while submitting")
}

func TestNetworkErrorKeepsToken(t *testing.T) {
	s := inForm(t)
	s, _ = Reduce(s, Submit{Token: "tok-a"})
	s, eff := Reduce(s, SubmitFailed{Kind: KindNetwork})
	assert.Nil(t, eff)
	assert.Equal(t, StepForm, s.Step)
	assert.False(t, s.Submitting)
	assert.Equal(t, msgNetwork, s.Message)
	assert.Equal(t, "tok-a", s.Token)

	_, eff = Reduce(s, Submit{Token: "tok-b"})
	submit, ok := eff.(SubmitBooking)
	require.True(t, ok)
	assert.Equal(t, "tok-a", submit.Token)
}

func TestValidationErrorStaysInForm(t *testing.T) {
	s := inForm(t)
	s, _ = Reduce(s, Submit{Token: "tok-a"})
	s, eff := Reduce(s, SubmitFailed{Kind: KindValidation, Message: "Please enter a valid email address.", Field: "email"})
	assert.Nil(t, eff)
	assert.Equal(t, StepForm, s.Step)
	assert.Equal(t, "email", s.ErrorField)
	assert.Equal(t, "Please enter a valid email address.", s.Message)
	assert.Empty(t, s.Token)
	require.NotNil(t, s.SelectedSlot)
}

func TestConflictReturnsToCalendar(t *testing.T) {
	s := inForm(t)
	s, _ = Reduce(s, Submit{Token: "tok-a"})
	s, eff := Reduce(s, SubmitFailed{Kind: KindSlotNoLongerAvailable})

	assert.Equal(t, StepCalendar, s.Step)
	assert.Nil(t, s.SelectedSlot)
	assert.Equal(t, "2026-03-02", s.SelectedDate)
	assert.Equal(t, msgConflict, s.Message)
	assert.Empty(t, s.Token)
	_, ok := eff.(FetchAvailability)
	assert.True(t, ok)
}

func TestSuccessAndBookAnother(t *testing.T) {
	s := inForm(t)
	s, _ = Reduce(s, Submit{Token: "tok-a"})
	s, eff := Reduce(s, SubmitSucceeded{Confirmation: Confirmation{ID: "b-1", Start: at(9, 15), End: at(9, 30)}})
	assert.Nil(t, eff)
	assert.Equal(t, StepSuccess, s.Step)
	require.NotNil(t, s.Confirmation)
	assert.Equal(t, "b-1", s.Confirmation.ID)
	assert.Empty(t, s.Token)
	assert.Empty(t, s.Message)

	s, eff = Reduce(s, BookAnother{})
	assert.Equal(t, StepCalendar, s.Step)
	assert.Empty(t, s.SelectedDate)
	assert.Nil(t, s.SelectedSlot)
	assert.Nil(t, s.Confirmation)
	assert.Equal(t, Contact{}, s.Contact)
	_, ok := eff.(FetchAvailability)
	assert.True(t, ok)
}

func TestBackClearsSlot(t *testing.T) {
	s := inForm(t)
	s, _ = Reduce(s, Back{})
	assert.Equal(t, StepCalendar, s.Step)
	assert.Nil(t, s.SelectedSlot)
	assert.Equal(t, "2026-03-02", s.SelectedDate)
}

func TestLateResultsIgnored(t *testing.T) {
	s := inForm(t)
	next, eff := Reduce(s, SubmitSucceeded{Confirmation: Confirmation{ID: "b-1"}})
	assert.Nil(t, eff)
	assert.Equal(t, StepForm, next.Step)
}
