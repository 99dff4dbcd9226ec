package widget

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/proofline/booking/services/booking-service/internal/availability"
	"github.com/proofline/booking/services/booking-service/internal/booking"
	"github.com/proofline/booking/services/booking-service/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func demoServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := discardLogger()
	demo := booking.NewDemo(availability.FixedClock{T: today.Add(8 * time.Hour)}, time.UTC, 0)
	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		Public: handlers.NewPublicHandler(demo, logger),
		Logger: logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func firstAvailable(t *testing.T, s State, date string) Slot {
	t.Helper()
	for _, slot := range s.Days[date] {
		if slot.Available {
			return slot
		}
	}
	t.Fatalf("no available slot on %s", date)
	return Slot{}
}

func TestSessionBooksAgainstDemoServer(t *testing.T) {
	srv := demoServer(t)
	ctx := context.Background()
	sess := NewSession(ctx, NewClient(srv.URL, "demo", srv.Client()), today, discardLogger())

	s := sess.State()
	require.False(t, s.Loading)
	require.Empty(t, s.Message)
	assert.Len(t, s.Days, GridDays)
	assert.Empty(t, s.Days["2026-03-07"], "weekends are closed")

	sess.Dispatch(ctx, SelectDate{Date: "2026-03-02"})
	slot := firstAvailable(t, sess.State(), "2026-03-02")
	sess.Dispatch(ctx, SelectSlot{Start: slot.Start})
	s = sess.Dispatch(ctx, Continue{})
	require.Equal(t, StepForm, s.Step)

	sess.Dispatch(ctx, EditContact{Contact: Contact{Name: "Ada", Email: "not-an-email"}})
	s = sess.Dispatch(ctx, Submit{})
	assert.Equal(t, StepForm, s.Step)
	assert.Equal(t, "email", s.ErrorField)
	assert.NotEmpty(t, s.Message)
	assert.False(t, s.Submitting)

	sess.Dispatch(ctx, EditContact{Contact: Contact{Name: "Ada", Email: "ada@example.com"}})
	s = sess.Dispatch(ctx, Submit{})
	require.Equal(t, StepSuccess, s.Step, s.Message)
	require.NotNil(t, s.Confirmation)
	assert.NotEmpty(t, s.Confirmation.ID)
	assert.True(t, s.Confirmation.Start.Equal(slot.Start))
	assert.True(t, s.Confirmation.End.Equal(slot.Start.Add(30*time.Minute)))

	s = sess.Dispatch(ctx, BookAnother{})
	assert.Equal(t, StepCalendar, s.Step)
	assert.False(t, s.Loading)
	assert.Len(t, s.Days, GridDays)
}

func TestSessionNetworkFailureKeepsToken(t *testing.T) {
	srv := demoServer(t)
	ctx := context.Background()
	sess := NewSession(ctx, NewClient(srv.URL, "demo", srv.Client()), today, discardLogger())

	sess.Dispatch(ctx, SelectDate{Date: "2026-03-02"})
	sess.Dispatch(ctx, SelectSlot{Start: firstAvailable(t, sess.State(), "2026-03-02").Start})
	sess.Dispatch(ctx, Continue{})
	sess.Dispatch(ctx, EditContact{Contact: Contact{Name: "Ada", Email: "ada@example.com"}})

	srv.Close()
	s := sess.Dispatch(ctx, Submit{})
	assert.Equal(t, StepForm, s.Step)
	assert.Equal(t, msgNetwork, s.Message)
	assert.NotEmpty(t, s.Token)
}

type scriptedAPI struct {
	mu       sync.Mutex
	fetches  int
	submits  []SubmitBooking
	failures []error
}

func (a *scriptedAPI) Availability(context.Context, time.Time, int) ([]Day, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches++
	return marchDays(), nil
}

func (a *scriptedAPI) CreateBooking(_ context.Context, b SubmitBooking) (Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits = append(a.submits, b)
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		return Confirmation{}, err
	}
	return Confirmation{ID: "b-1", Start: b.Start, End: b.Start.Add(15 * time.Minute)}, nil
}

func TestSessionRetriesWithSameTokenThenHandlesConflict(t *testing.T) {
	api := &scriptedAPI{failures: []error{
		&RequestError{Kind: KindNetwork},
		&RequestError{Kind: KindSlotNoLongerAvailable, Message: msgConflict, Status: 409},
	}}
	ctx := context.Background()
	sess := NewSession(ctx, api, today, discardLogger())
	tokens := []string{"tok-1", "tok-2", "tok-3"}
	sess.newToken = func() string {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	sess.Dispatch(ctx, SelectDate{Date: "2026-03-02"})
	sess.Dispatch(ctx, SelectSlot{Start: at(9, 15)})
	sess.Dispatch(ctx, Continue{})
	sess.Dispatch(ctx, EditContact{Contact: Contact{Name: "Ada", Email: "ada@example.com"}})

	s := sess.Dispatch(ctx, Submit{})
	assert.Equal(t, StepForm, s.Step)
	s = sess.Dispatch(ctx, Submit{})
	assert.Equal(t, StepCalendar, s.Step)
	assert.Equal(t, msgConflict, s.Message)

	require.Len(t, api.submits, 2)
	assert.Equal(t, "tok-1", api.submits[0].Token)
	assert.Equal(t, "tok-1", api.submits[1].Token)
	assert.Equal(t, 2, api.fetches, "conflict refetches availability")

	sess.Dispatch(ctx, SelectSlot{Start: at(9, 15)})
	sess.Dispatch(ctx, Continue{})
	s = sess.Dispatch(ctx, Submit{})
	require.Equal(t, StepSuccess, s.Step)
	assert.Equal(t, "tok-3", api.submits[2].Token)
}
