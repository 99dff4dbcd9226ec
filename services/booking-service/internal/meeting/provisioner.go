package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/proofline/booking/services/booking-service/internal/model"
)

// Provisioner creates the external meeting for a confirmed booking and returns
// its join link.
type Provisioner interface {
	Provision(ctx context.Context, b model.Booking, org model.Organization) (string, error)
	ProviderID() string
}

// RoomLink derives a stable room URL from the booking id. It suits video
// services that create rooms on first join.
type RoomLink struct {
	baseURL string
}

func NewRoomLink(baseURL string) *RoomLink {
	return &RoomLink{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (p *RoomLink) ProviderID() string {
	return "room-link"
}

func (p *RoomLink) Provision(_ context.Context, b model.Booking, org model.Organization) (string, error) {
	if p.baseURL == "" {
		return "", errors.New("meeting base url not configured")
	}
	room := uuid.NewSHA1(uuid.NameSpaceURL, []byte(org.Slug+"/"+b.ID))
	return fmt.Sprintf("%s/%s-%s", p.baseURL, org.Slug, room.String()[:13]), nil
}

// Webhook asks an external service to create the meeting. The endpoint must
// answer 2xx with {"join_url": "..."}.
type Webhook struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhook(url string, token string) *Webhook {
	return &Webhook{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *Webhook) ProviderID() string {
	return "meeting-webhook"
}

type webhookRequest struct {
	BookingID    string    `json:"booking_id"`
	Organization string    `json:"organization"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Attendee     string    `json:"attendee_email"`
}

type webhookResponse struct {
	JoinURL string `json:"join_url"`
}

func (p *Webhook) Provision(ctx context.Context, b model.Booking, org model.Organization) (string, error) {
	if p.url == "" {
		return "", errors.New("meeting webhook url not configured")
	}
	raw, err := json.Marshal(webhookRequest{
		BookingID:    b.ID,
		Organization: org.Slug,
		Title:        fmt.Sprintf("%s x %s", org.Name, b.CustomerName),
		StartTime:    b.Start.UTC(),
		EndTime:      b.End.UTC(),
		Attendee:     b.CustomerEmail,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("meeting webhook returned %d", resp.StatusCode)
	}
	var out webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode meeting webhook response: %w", err)
	}
	if out.JoinURL == "" {
		return "", errors.New("meeting webhook returned no join_url")
	}
	return out.JoinURL, nil
}

type Noop struct{}

func (Noop) ProviderID() string {
	return "meeting-noop"
}

func (Noop) Provision(context.Context, model.Booking, model.Organization) (string, error) {
	return "", nil
}
