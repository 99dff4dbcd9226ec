package widget

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// API is the subset of Client a Session drives.
type API interface {
	Availability(ctx context.Context, start time.Time, days int) ([]Day, error)
	CreateBooking(ctx context.Context, b SubmitBooking) (Confirmation, error)
}

// Session owns a widget State and executes the effects the reducer emits.
// The lock is released while an effect runs, so a second Submit arriving
// during a submission is seen by the reducer and dropped.
type Session struct {
	mu       sync.Mutex
	state    State
	api      API
	logger   *slog.Logger
	newToken func() string
}

// NewSession opens the widget on today and performs the initial fetch.
func NewSession(ctx context.Context, api API, today time.Time, logger *slog.Logger) *Session {
	s := &Session{api: api, logger: logger, newToken: uuid.NewString}
	state, eff := Init(today)
	s.state = state
	s.run(ctx, eff)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and runs any resulting effects to completion, returning
// the state after the last of them.
func (s *Session) Dispatch(ctx context.Context, a Action) State {
	if _, ok := a.(Submit); ok {
		a = Submit{Token: s.newToken()}
	}
	s.mu.Lock()
	next, eff := Reduce(s.state, a)
	s.state = next
	s.mu.Unlock()

	s.run(ctx, eff)
	return s.State()
}

func (s *Session) run(ctx context.Context, eff Effect) {
	for eff != nil {
		result := s.execute(ctx, eff)
		s.mu.Lock()
		s.state, eff = Reduce(s.state, result)
		s.mu.Unlock()
	}
}

func (s *Session) execute(ctx context.Context, eff Effect) Action {
	switch e := eff.(type) {
	case FetchAvailability:
		days, err := s.api.Availability(ctx, e.Start, e.Days)
		if err != nil {
			s.logger.Warn("availability fetch failed", "month", e.Month.Format("2006-01"), "err", err)
			return AvailabilityFailed{Month: e.Month, Err: err}
		}
		return AvailabilityLoaded{Month: e.Month, Days: days}

	case SubmitBooking:
		conf, err := s.api.CreateBooking(ctx, e)
		if err != nil {
			var rerr *RequestError
			if errors.As(err, &rerr) {
				return SubmitFailed{Kind: rerr.Kind, Message: rerr.Message, Field: rerr.Field}
			}
			s.logger.Warn("booking submit failed", "err", err)
			return SubmitFailed{Kind: KindNetwork}
		}
		return SubmitSucceeded{Confirmation: conf}
	}
	return nil
}
