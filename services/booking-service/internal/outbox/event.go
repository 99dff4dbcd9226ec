package outbox

import (
	"encoding/json"
	"time"

	"github.com/proofline/booking/services/booking-service/internal/model"
)

const (
	AggregateBooking = "booking"

	EventBookingConfirmed = "booking.confirmed.v1"
	EventBookingCancelled = "booking.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (production-style: event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID      string     `json:"booking_id"`
	OrganizationID string     `json:"organization_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	Status         string     `json:"status"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

// BookingEvent builds the envelope for a booking state change.
func BookingEvent(eventType string, b model.Booking) (Event, error) {
	payload, err := json.Marshal(bookingPayload{
		BookingID:      b.ID,
		OrganizationID: b.OrganizationID,
		StartTime:      b.Start.UTC(),
		EndTime:        b.End.UTC(),
		CustomerName:   b.CustomerName,
		CustomerEmail:  b.CustomerEmail,
		Status:         b.Status,
		CancelledAt:    b.CancelledAt,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateBooking,
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
