// Package widget is the booking calendar client: a pure state machine over
// calendar, form and success steps plus an HTTP client for the public API.
package widget

import (
	"time"
)

type Step string

const (
	StepCalendar Step = "calendar"
	StepForm     Step = "form"
	StepSuccess  Step = "success"
)

const (
	KindValidation            = "validation_error"
	KindSlotNoLongerAvailable = "slot_no_longer_available"
	KindOrganizationNotFound  = "organization_not_found"
	KindNetwork               = "network_error"
)

const (
	msgNetwork      = "We couldn't reach the booking service. Check your connection and try again."
	msgLoadFailed   = "We couldn't load available times. Please try again."
	msgConflict     = "That time is no longer available. Please pick another slot."
	msgUnknownError = "Something went wrong. Please try again."
)

type Slot struct {
	Start     time.Time
	Label     string
	Available bool
}

type Day struct {
	Date  string
	Slots []Slot
}

type Contact struct {
	Name    string
	Email   string
	Phone   string
	Company string
	Notes   string
}

type Confirmation struct {
	ID          string
	Start       time.Time
	End         time.Time
	MeetingLink string
}

// State is everything the widget renders. Message is the single visible
// notice; ErrorField names the form field it refers to, if any.
type State struct {
	Step  Step
	Today time.Time
	Month time.Time

	Days    map[string][]Slot
	Loading bool

	SelectedDate string
	SelectedSlot *Slot

	Contact    Contact
	Submitting bool
	Token      string

	Message    string
	ErrorField string

	Confirmation *Confirmation
}

// CanContinue reports whether the Continue action is armed.
func (s State) CanContinue() bool {
	return s.Step == StepCalendar && s.SelectedDate != "" && s.SelectedSlot != nil
}

// SlotsForSelectedDate returns the fetched slots of the selected date.
func (s State) SlotsForSelectedDate() []Slot {
	if s.SelectedDate == "" {
		return nil
	}
	return s.Days[s.SelectedDate]
}

func (s State) Grid() []Cell {
	return MonthGrid(s.Month, s.Today, s.Days)
}

// Effect is work the reducer asks its driver to perform.
type Effect interface {
	isEffect()
}

// FetchAvailability loads Days days of slots starting at Start.
type FetchAvailability struct {
	Month time.Time
	Start time.Time
	Days  int
}

type SubmitBooking struct {
	Start   time.Time
	Contact Contact
	Token   string
}

func (FetchAvailability) isEffect() {}
func (SubmitBooking) isEffect()     {}

type Action interface {
	isAction()
}

type (
	SelectDate struct{ Date string }
	SelectSlot struct{ Start time.Time }
	// ChangeMonth moves the calendar by Delta months.
	ChangeMonth        struct{ Delta int }
	AvailabilityLoaded struct {
		Month time.Time
		Days  []Day
	}
	AvailabilityFailed struct {
		Month time.Time
		Err   error
	}
	Continue    struct{}
	Back        struct{}
	EditContact struct{ Contact Contact }
	// Submit carries a fresh token, used only when the attempt has none yet.
	Submit          struct{ Token string }
	SubmitSucceeded struct{ Confirmation Confirmation }
	SubmitFailed    struct {
		Kind    string
		Message string
		Field   string
	}
	BookAnother struct{}
)

func (SelectDate) isAction()         {}
func (SelectSlot) isAction()         {}
func (ChangeMonth) isAction()        {}
func (AvailabilityLoaded) isAction() {}
func (AvailabilityFailed) isAction() {}
func (Continue) isAction()           {}
func (Back) isAction()               {}
func (EditContact) isAction()        {}
func (Submit) isAction()             {}
func (SubmitSucceeded) isAction()    {}
func (SubmitFailed) isAction()       {}
func (BookAnother) isAction()        {}

// Init returns the state for a widget opened on today and the initial fetch.
func Init(today time.Time) (State, Effect) {
	s := State{Step: StepCalendar, Today: today, Month: FirstOfMonth(today)}
	return s.refetch()
}

func (s State) refetch() (State, Effect) {
	s.Loading = true
	return s, FetchAvailability{Month: s.Month, Start: GridWindow(s.Month), Days: GridDays}
}

func (s State) clearMessage() State {
	s.Message, s.ErrorField = "", ""
	return s
}

// Reduce applies a to s. It never performs I/O; the returned effect, if not
// nil, must be executed and its outcome fed back as an action.
func Reduce(s State, a Action) (State, Effect) {
	switch a := a.(type) {
	case ChangeMonth:
		if s.Step != StepCalendar || a.Delta == 0 {
			return s, nil
		}
		s.Month = FirstOfMonth(s.Month).AddDate(0, a.Delta, 0)
		s.Days = nil
		s.SelectedDate, s.SelectedSlot = "", nil
		return s.clearMessage().refetch()

	case AvailabilityLoaded:
		if !a.Month.Equal(s.Month) {
			return s, nil
		}
		s.Loading = false
		s.Days = make(map[string][]Slot, len(a.Days))
		for _, d := range a.Days {
			s.Days[d.Date] = d.Slots
		}
		return s, nil

	case AvailabilityFailed:
		if !a.Month.Equal(s.Month) {
			return s, nil
		}
		s.Loading = false
		s.Message, s.ErrorField = msgLoadFailed, ""
		return s, nil

	case SelectDate:
		if s.Step != StepCalendar {
			return s, nil
		}
		s.SelectedDate, s.SelectedSlot = a.Date, nil
		return s, nil

	case SelectSlot:
		if s.Step != StepCalendar {
			return s, nil
		}
		for _, slot := range s.SlotsForSelectedDate() {
			if slot.Start.Equal(a.Start) && slot.Available {
				picked := slot
				s.SelectedSlot = &picked
				return s.clearMessage(), nil
			}
		}
		return s, nil

	case Continue:
		if !s.CanContinue() {
			return s, nil
		}
		s.Step = StepForm
		return s.clearMessage(), nil

	case Back:
		if s.Step != StepForm || s.Submitting {
			return s, nil
		}
		s.Step = StepCalendar
		s.SelectedSlot = nil
		return s.clearMessage(), nil

	case EditContact:
		if s.Step != StepForm || s.Submitting {
			return s, nil
		}
		s.Contact = a.Contact
		return s, nil

	case Submit:
		if s.Step != StepForm || s.Submitting || s.SelectedSlot == nil {
			return s, nil
		}
		if s.Token == "" {
			s.Token = a.Token
		}
		s.Submitting = true
		s = s.clearMessage()
		return s, SubmitBooking{Start: s.SelectedSlot.Start, Contact: s.Contact, Token: s.Token}

	case SubmitSucceeded:
		if !s.Submitting {
			return s, nil
		}
		conf := a.Confirmation
		s.Submitting = false
		s.Token = ""
		s.Step = StepSuccess
		s.Confirmation = &conf
		return s.clearMessage(), nil

	case SubmitFailed:
		if !s.Submitting {
			return s, nil
		}
		return submitFailed(s, a)

	case BookAnother:
		if s.Step != StepSuccess {
			return s, nil
		}
		next := State{Step: StepCalendar, Today: s.Today, Month: s.Month, Days: s.Days}
		return next.refetch()
	}
	return s, nil
}

func submitFailed(s State, a SubmitFailed) (State, Effect) {
	s.Submitting = false
	switch a.Kind {
	case KindNetwork:
		// The outcome is unknown; the retry must carry the same token.
		s.Message, s.ErrorField = msgNetwork, ""
		return s, nil
	case KindSlotNoLongerAvailable:
		s.Token = ""
		s.Step = StepCalendar
		s.SelectedSlot = nil
		s.Message, s.ErrorField = orDefault(a.Message, msgConflict), ""
		return s.refetch()
	case KindValidation:
		s.Token = ""
		s.Message, s.ErrorField = orDefault(a.Message, msgUnknownError), a.Field
		return s, nil
	default:
		s.Token = ""
		s.Message, s.ErrorField = orDefault(a.Message, msgUnknownError), ""
		return s, nil
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
