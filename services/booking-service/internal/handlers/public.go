package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/proofline/booking/libs/httpx"
	"github.com/proofline/booking/services/booking-service/internal/availability"
	"github.com/proofline/booking/services/booking-service/internal/booking"
	"github.com/proofline/booking/services/booking-service/internal/model"
)

const (
	DefaultAvailabilityDays = 42
	MaxAvailabilityDays     = 62
	IdempotencyKeyHeader    = "Idempotency-Key"
)

type PublicHandler struct {
	engine booking.Engine
	logger *slog.Logger
}

func NewPublicHandler(engine booking.Engine, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{engine: engine, logger: logger}
}

func (h *PublicHandler) Routes(r chi.Router) {
	r.Get("/orgs/{slug}/availability", h.Availability)
	r.Post("/orgs/{slug}/bookings", h.CreateBooking)
}

type slotItem struct {
	Start     string `json:"start"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type dayItem struct {
	Date  string     `json:"date"`
	Slots []slotItem `json:"slots"`
}

type availabilityResponse struct {
	Organization    string    `json:"organization"`
	Name            string    `json:"name"`
	Timezone        string    `json:"timezone"`
	DurationMinutes int       `json:"duration_minutes"`
	Days            []dayItem `json:"days"`
}

func (h *PublicHandler) Availability(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	q := r.URL.Query()

	var start time.Time
	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		parsed, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			badRequest(w, "start", "start must be YYYY-MM-DD")
			return
		}
		start = parsed
	}
	days := DefaultAvailabilityDays
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxAvailabilityDays {
			badRequest(w, "days", "days must be between 1 and "+strconv.Itoa(MaxAvailabilityDays))
			return
		}
		days = n
	}

	avail, err := h.engine.Availability(r.Context(), slug, start, days)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

func toAvailabilityResponse(a booking.Availability) availabilityResponse {
	resp := availabilityResponse{
		Organization:    a.Organization.Slug,
		Name:            a.Organization.Name,
		Timezone:        a.Organization.Timezone,
		DurationMinutes: a.Organization.DurationMinutes,
		Days:            make([]dayItem, 0, len(a.Days)),
	}
	for _, d := range a.Days {
		item := dayItem{Date: d.Date, Slots: make([]slotItem, 0, len(d.Slots))}
		for _, s := range d.Slots {
			item.Slots = append(item.Slots, toSlotItem(s))
		}
		resp.Days = append(resp.Days, item)
	}
	return resp
}

func toSlotItem(s availability.TimeSlot) slotItem {
	return slotItem{Start: s.Start.Format(time.RFC3339), Label: s.Label, Available: s.Available}
}

type createBookingRequest struct {
	CustomerName     string `json:"customer_name"`
	CustomerEmail    string `json:"customer_email"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerCompany  string `json:"customer_company"`
	CustomerNotes    string `json:"customer_notes"`
	StartTime        string `json:"start_time"`
	IdempotencyToken string `json:"idempotency_token"`
}

type bookingResponse struct {
	ID           string `json:"id"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Organization string `json:"organization"`
	MeetingLink  string `json:"meeting_link,omitempty"`
}

func (h *PublicHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}

	var start time.Time
	if raw := strings.TrimSpace(req.StartTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusUnprocessableEntity, httpx.ErrorBody{
				Kind:    string(booking.KindValidation),
				Message: "start_time must be an RFC3339 timestamp",
				Field:   "start_time",
				Fields:  []string{"start_time"},
			})
			return
		}
		start = parsed
	}

	token := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if token == "" {
		token = req.IdempotencyToken
	}

	conf, err := h.engine.CreateBooking(r.Context(), booking.Request{
		OrganizationSlug: chi.URLParam(r, "slug"),
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
		CustomerCompany:  req.CustomerCompany,
		CustomerNotes:    req.CustomerNotes,
		StartTime:        start,
		IdempotencyToken: token,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if conf.Replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, bookingResponse{
		ID:           conf.Booking.ID,
		StartTime:    conf.Booking.Start.Format(time.RFC3339),
		EndTime:      conf.Booking.End.Format(time.RFC3339),
		Organization: conf.Organization.Slug,
		MeetingLink:  conf.Booking.MeetingLink,
	})
}
