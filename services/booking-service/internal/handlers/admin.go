package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/proofline/booking/libs/auth"
	"github.com/proofline/booking/libs/httpx"
	"github.com/proofline/booking/services/booking-service/internal/booking"
	"github.com/proofline/booking/services/booking-service/internal/model"
)

// AdminService is the part of booking.Service the admin API drives.
type AdminService interface {
	Organization(ctx context.Context, slug string) (model.Organization, error)
	UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error)
	Schedule(ctx context.Context, slug, from, to string) (booking.ScheduleView, error)
	ReplaceRules(ctx context.Context, slug string, rules []model.AvailabilityRule) error
	PutOverride(ctx context.Context, slug string, o model.DateOverride) error
	DeleteOverride(ctx context.Context, slug, date string) error
	ListBookings(ctx context.Context, slug string, limit int) ([]model.Booking, error)
	CancelBooking(ctx context.Context, slug, bookingID string) (model.Booking, error)
}

const defaultScheduleSpanDays = 90

type AdminHandler struct {
	svc    AdminService
	secret string
	logger *slog.Logger
	now    func() time.Time
}

func NewAdminHandler(svc AdminService, jwtSecret string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, secret: jwtSecret, logger: logger, now: time.Now}
}

func (h *AdminHandler) Routes(r chi.Router) {
	r.Use(auth.RequireBearer(h.secret))
	r.Route("/orgs/{slug}", func(r chi.Router) {
		r.Use(requireManager)
		r.Get("/", h.GetOrganization)
		r.Put("/", h.PutOrganization)
		r.Get("/rules", h.GetSchedule)
		r.Put("/rules", h.PutRules)
		r.Put("/overrides/{date}", h.PutOverride)
		r.Delete("/overrides/{date}", h.DeleteOverride)
		r.Get("/bookings", h.ListBookings)
		r.Post("/bookings/{id}/cancel", h.CancelBooking)
	})
}

func requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.ClaimsFromContext(r.Context()).CanManage(chi.URLParam(r, "slug")) {
			httpx.WriteError(w, http.StatusForbidden, httpx.ErrorBody{Kind: "forbidden", Message: "token does not grant access to this organization"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type organizationBody struct {
	ID              string `json:"id,omitempty"`
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Timezone        string `json:"timezone"`
	OwnerEmail      string `json:"owner_email,omitempty"`
	OwnerPhone      string `json:"owner_phone,omitempty"`
}

func toOrganizationBody(o model.Organization) organizationBody {
	return organizationBody{
		ID: o.ID, Slug: o.Slug, Name: o.Name, DurationMinutes: o.DurationMinutes,
		Timezone: o.Timezone, OwnerEmail: o.OwnerEmail, OwnerPhone: o.OwnerPhone,
	}
}

func (h *AdminHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.svc.Organization(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrganizationBody(org))
}

func (h *AdminHandler) PutOrganization(w http.ResponseWriter, r *http.Request) {
	var body organizationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	org, err := h.svc.UpsertOrganization(r.Context(), model.Organization{
		Slug:            chi.URLParam(r, "slug"),
		Name:            body.Name,
		DurationMinutes: body.DurationMinutes,
		Timezone:        body.Timezone,
		OwnerEmail:      strings.TrimSpace(body.OwnerEmail),
		OwnerPhone:      strings.TrimSpace(body.OwnerPhone),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrganizationBody(org))
}

type ruleBody struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type overrideBody struct {
	Date    string         `json:"date"`
	Closed  bool           `json:"closed"`
	Windows []model.Window `json:"windows"`
}

type scheduleBody struct {
	Rules     []ruleBody     `json:"rules"`
	Overrides []overrideBody `json:"overrides,omitempty"`
}

func (h *AdminHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	if from == "" {
		from = h.now().UTC().Format(model.DateLayout)
	}
	fromDate, err := time.Parse(model.DateLayout, from)
	if err != nil {
		badRequest(w, "from", "from must be YYYY-MM-DD")
		return
	}
	to := strings.TrimSpace(q.Get("to"))
	if to == "" {
		to = fromDate.AddDate(0, 0, defaultScheduleSpanDays).Format(model.DateLayout)
	} else if _, err := time.Parse(model.DateLayout, to); err != nil {
		badRequest(w, "to", "to must be YYYY-MM-DD")
		return
	}

	view, err := h.svc.Schedule(r.Context(), chi.URLParam(r, "slug"), from, to)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := scheduleBody{Rules: make([]ruleBody, 0, len(view.Rules))}
	for _, rule := range view.Rules {
		out.Rules = append(out.Rules, ruleBody{Weekday: int(rule.Weekday), StartMinute: rule.StartMinute, EndMinute: rule.EndMinute})
	}
	for _, o := range view.Overrides {
		out.Overrides = append(out.Overrides, overrideBody{Date: o.Date, Closed: o.Closed, Windows: o.Windows})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) PutRules(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	rules := make([]model.AvailabilityRule, 0, len(body.Rules))
	for _, rb := range body.Rules {
		rules = append(rules, model.AvailabilityRule{
			Weekday: time.Weekday(rb.Weekday),
			Window:  model.Window{StartMinute: rb.StartMinute, EndMinute: rb.EndMinute},
		})
	}
	if err := h.svc.ReplaceRules(r.Context(), chi.URLParam(r, "slug"), rules); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) PutOverride(w http.ResponseWriter, r *http.Request) {
	var body overrideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "", "invalid json body")
		return
	}
	err := h.svc.PutOverride(r.Context(), chi.URLParam(r, "slug"), model.DateOverride{
		Date:    chi.URLParam(r, "date"),
		Closed:  body.Closed,
		Windows: body.Windows,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOverride(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "date")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adminBookingItem struct {
	ID              string `json:"id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	CustomerCompany string `json:"customer_company,omitempty"`
	CustomerNotes   string `json:"customer_notes,omitempty"`
	MeetingLink     string `json:"meeting_link,omitempty"`
	CreatedAt       string `json:"created_at"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
}

func toAdminBookingItem(b model.Booking) adminBookingItem {
	item := adminBookingItem{
		ID:              b.ID,
		StartTime:       b.Start.Format(time.RFC3339),
		EndTime:         b.End.Format(time.RFC3339),
		Status:          b.Status,
		CustomerName:    b.CustomerName,
		CustomerEmail:   b.CustomerEmail,
		CustomerPhone:   b.CustomerPhone,
		CustomerCompany: b.CustomerCompany,
		CustomerNotes:   b.CustomerNotes,
		MeetingLink:     b.MeetingLink,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			badRequest(w, "limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	list, err := h.svc.ListBookings(r.Context(), chi.URLParam(r, "slug"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]adminBookingItem, 0, len(list))
	for _, b := range list {
		items = append(items, toAdminBookingItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.CancelBooking(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAdminBookingItem(b))
}
