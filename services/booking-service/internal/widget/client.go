package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequestError is a failed call to the public API. Kind is the server's
// error kind, or KindNetwork when no definitive answer arrived.
type RequestError struct {
	Kind    string
	Message string
	Field   string
	Status  int
	Err     error
}

func (e *RequestError) Error() string {
	msg := e.Kind
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client talks to the public booking API of one organization.
type Client struct {
	baseURL string
	slug    string
	http    *http.Client
}

func NewClient(baseURL, slug string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), slug: slug, http: hc}
}

func (c *Client) orgURL(suffix string) string {
	return c.baseURL + "/api/v1/public/orgs/" + url.PathEscape(c.slug) + suffix
}

type availabilityPayload struct {
	Days []struct {
		Date  string `json:"date"`
		Slots []struct {
			Start     string `json:"start"`
			Label     string `json:"label"`
			Available bool   `json:"available"`
		} `json:"slots"`
	} `json:"days"`
}

func (c *Client) Availability(ctx context.Context, start time.Time, days int) ([]Day, error) {
	q := url.Values{}
	q.Set("start", start.Format("2006-01-02"))
	q.Set("days", strconv.Itoa(days))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.orgURL("/availability?"+q.Encode()), nil)
	if err != nil {
		return nil, err
	}

	var payload availabilityPayload
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	out := make([]Day, 0, len(payload.Days))
	for _, d := range payload.Days {
		day := Day{Date: d.Date, Slots: make([]Slot, 0, len(d.Slots))}
		for _, s := range d.Slots {
			t, err := time.Parse(time.RFC3339, s.Start)
			if err != nil {
				return nil, fmt.Errorf("slot start %q: %w", s.Start, err)
			}
			day.Slots = append(day.Slots, Slot{Start: t, Label: s.Label, Available: s.Available})
		}
		out = append(out, day)
	}
	return out, nil
}

type bookingPayload struct {
	CustomerName     string `json:"customer_name"`
	CustomerEmail    string `json:"customer_email"`
	CustomerPhone    string `json:"customer_phone,omitempty"`
	CustomerCompany  string `json:"customer_company,omitempty"`
	CustomerNotes    string `json:"customer_notes,omitempty"`
	StartTime        string `json:"start_time"`
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

type confirmationPayload struct {
	ID          string `json:"id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MeetingLink string `json:"meeting_link"`
}

func (c *Client) CreateBooking(ctx context.Context, b SubmitBooking) (Confirmation, error) {
	body, err := json.Marshal(bookingPayload{
		CustomerName:     b.Contact.Name,
		CustomerEmail:    b.Contact.Email,
		CustomerPhone:    b.Contact.Phone,
		CustomerCompany:  b.Contact.Company,
		CustomerNotes:    b.Contact.Notes,
		StartTime:        b.Start.Format(time.RFC3339),
		IdempotencyToken: b.Token,
	})
	if err != nil {
		return Confirmation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.orgURL("/bookings"), bytes.NewReader(body))
	if err != nil {
		return Confirmation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.Token != "" {
		req.Header.Set("Idempotency-Key", b.Token)
	}

	var payload confirmationPayload
	if err := c.do(req, &payload); err != nil {
		return Confirmation{}, err
	}
	start, err := time.Parse(time.RFC3339, payload.StartTime)
	if err != nil {
		return Confirmation{}, fmt.Errorf("confirmation start %q: %w", payload.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, payload.EndTime)
	if err != nil {
		return Confirmation{}, fmt.Errorf("confirmation end %q: %w", payload.EndTime, err)
	}
	return Confirmation{ID: payload.ID, Start: start, End: end, MeetingLink: payload.MeetingLink}, nil
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// do sends req and decodes a 2xx body into out. Transport failures and 5xx
// answers are reported as KindNetwork since the server may have acted.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RequestError{Kind: KindNetwork, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}

	var ep errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&ep)
	if resp.StatusCode >= 500 || ep.Kind == "" {
		return &RequestError{Kind: KindNetwork, Message: ep.Message, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return &RequestError{Kind: ep.Kind, Message: ep.Message, Field: ep.Field, Status: resp.StatusCode}
}

// KindOf returns the error kind carried by err, KindNetwork for unknown errors.
func KindOf(err error) string {
	var rerr *RequestError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindNetwork
}
