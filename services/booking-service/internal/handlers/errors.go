package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/proofline/booking/libs/httpx"
	"github.com/proofline/booking/services/booking-service/internal/booking"
)

func statusFor(kind booking.Kind) int {
	switch kind {
	case booking.KindOrganizationNotFound, booking.KindNotFound:
		return http.StatusNotFound
	case booking.KindValidation:
		return http.StatusUnprocessableEntity
	case booking.KindSlotNoLongerAvailable:
		return http.StatusConflict
	case booking.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the JSON error envelope. Errors without a booking
// kind are logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var berr *booking.Error
	if errors.As(err, &berr) {
		httpx.WriteError(w, statusFor(berr.Kind), httpx.ErrorBody{
			Kind:    string(berr.Kind),
			Message: berr.Message,
			Field:   berr.Field,
			Fields:  berr.Fields,
		})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(w, http.StatusGatewayTimeout, httpx.ErrorBody{Kind: "timeout", Message: "request timed out"})
		return
	}
	logger.Error("request failed",
		"method", r.Method, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{Kind: "internal", Message: "something went wrong"})
}

func badRequest(w http.ResponseWriter, field, message string) {
	body := httpx.ErrorBody{Kind: string(booking.KindInvalidArgument), Message: message, Field: field}
	if field != "" {
		body.Fields = []string{field}
	}
	httpx.WriteError(w, http.StatusBadRequest, body)
}
