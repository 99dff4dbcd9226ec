package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/hibiken/asynq"
	"github.com/proofline/booking/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNotification() Notification {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	return Notification{
		Kind: KindBookingConfirmed,
		Organization: model.Organization{
			Slug: "proofline", Name: "Proofline", Timezone: "America/New_York",
			OwnerEmail: "owner@proofline.example", OwnerPhone: "+15550100",
		},
		Booking: model.Booking{
			ID: "b-1", Start: start, End: start.Add(15 * time.Minute),
			CustomerName: "Ada", CustomerEmail: "ada@example.com",
			MeetingLink: "https://meet.example.com/r1",
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	calls chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	if r.calls != nil {
		r.calls <- struct{}{}
	}
	return r.err
}

func TestNotificationTextUsesOrganizationTime(t *testing.T) {
	text := sampleNotification().Text()
	assert.Contains(t, text, "Ada (ada@example.com)")
	assert.Contains(t, text, "Mon Mar 2 at 9:00 AM EST")
	assert.Contains(t, text, "https://meet.example.com/r1")
}

func TestInviteParses(t *testing.T) {
	n := sampleNotification()
	raw := Invite(n, "no-reply@proofline.local", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	cal, err := ics.ParseCalendar(strings.NewReader(raw))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "b-1@proofline", events[0].Id())
	start, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(n.Booking.Start))
	assert.Contains(t, raw, "METHOD:REQUEST")
	assert.Contains(t, raw, "mailto:ada@example.com")
}

func TestEmailNotifierSendsInvite(t *testing.T) {
	e := NewEmailNotifier("mailpit", "1025", "")
	var sentTo []string
	var sent []byte
	e.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mailpit:1025", addr)
		assert.Equal(t, "no-reply@proofline.local", from)
		sentTo, sent = to, msg
		return nil
	}

	require.NoError(t, e.Notify(context.Background(), sampleNotification()))
	assert.Equal(t, []string{"owner@proofline.example"}, sentTo)
	assert.Contains(t, string(sent), "Subject: New booking with Ada")
	assert.Contains(t, string(sent), "multipart/mixed")
	assert.Contains(t, string(sent), `filename="invite.ics"`)
	assert.Contains(t, string(sent), "BEGIN:VCALENDAR")
}

func TestEmailNotifierKeepsCustomerNameInSubject(t *testing.T) {
	e := NewEmailNotifier("mailpit", "1025", "")
	var sent []byte
	e.sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		sent = msg
		return nil
	}
	n := sampleNotification()
	n.Booking.CustomerName = "Ada\r\nBcc: victim@evil.example"

	require.NoError(t, e.Notify(context.Background(), n))
	head, _, ok := strings.Cut(string(sent), "\r\n\r\n")
	require.True(t, ok)
	for _, line := range strings.Split(head, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), "header line %q", line)
	}
	assert.Contains(t, head, "Subject: New booking with AdaBcc: victim@evil.example\r\n")
}

func TestEmailNotifierEncodesNonASCIISubject(t *testing.T) {
	e := NewEmailNotifier("mailpit", "1025", "")
	var sent []byte
	e.sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		sent = msg
		return nil
	}
	n := sampleNotification()
	n.Booking.CustomerName = "Zoë"

	require.NoError(t, e.Notify(context.Background(), n))
	assert.Contains(t, string(sent), "Subject: =?utf-8?q?New_booking_with_Zo=C3=AB?=\r\n")
}

func TestEmailNotifierSkipsWithoutOwnerEmail(t *testing.T) {
	e := NewEmailNotifier("mailpit", "1025", "")
	e.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("unexpected send")
		return nil
	}
	n := sampleNotification()
	n.Organization.OwnerEmail = ""
	assert.NoError(t, e.Notify(context.Background(), n))
}

func TestSMSWebhook(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, NewSMSWebhook(srv.URL, "tok").Notify(context.Background(), sampleNotification()))
	assert.Equal(t, "+15550100", body["to"])
	assert.Contains(t, body["body"], "New booking")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	assert.Error(t, NewSMSWebhook(failing.URL, "").Notify(context.Background(), sampleNotification()))
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("smtp down")}
	err := Multi{bad, ok}.Notify(context.Background(), sampleNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, ok.got, 1, "later channels still run")
}

func TestInlineDispatchOutlivesRequest(t *testing.T) {
	rec := &recordingNotifier{calls: make(chan struct{}, 1), err: errors.New("boom")}
	d := NewInline(rec, discardLogger(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, sampleNotification())
	cancel()

	select {
	case <-rec.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestNotifyTaskRoundTrip(t *testing.T) {
	task, err := NewNotifyTask(sampleNotification())
	require.NoError(t, err)
	assert.Equal(t, TypeBookingNotify, task.Type())

	rec := &recordingNotifier{}
	require.NoError(t, HandleNotifyTask(rec, discardLogger())(context.Background(), task))
	require.Len(t, rec.got, 1)
	assert.Equal(t, "b-1", rec.got[0].Booking.ID)
	assert.Equal(t, "owner@proofline.example", rec.got[0].Organization.OwnerEmail)
	assert.True(t, rec.got[0].Booking.Start.Equal(sampleNotification().Booking.Start))

	bad := asynq.NewTask(TypeBookingNotify, []byte("{"))
	err = HandleNotifyTask(rec, discardLogger())(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
