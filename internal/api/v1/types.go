package apiv1

import (
	"time"

	"github.com/ManuelReschke/TableFox/app/models"
	"github.com/ManuelReschke/TableFox/internal/pkg/allocation"
)

type Pong struct {
	Ping string `json:"ping"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type LockResponse struct {
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expires_at"`
	HeartbeatSeconds int       `json:"heartbeat_seconds"`
}

type BookingResponse struct {
	Booking         *models.Booking       `json:"booking"`
	Allocation      allocation.Suggestion `json:"allocation"`
	PaymentRequired bool                  `json:"payment_required"`
	Payment         *PaymentInstructions  `json:"payment,omitempty"`
}

// PaymentInstructions are what the client needs to complete checkout.
type PaymentInstructions struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

type StatusChangeRequest struct {
	Status models.BookingStatus `json:"status"`
	Reason string               `json:"reason"`
}

type RefundRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	Reason        string `json:"reason"`
	CancelBooking bool   `json:"cancel_booking"`
}

type OccupancyResponse struct {
	VenueID uint                   `json:"venue_id"`
	Date    string                 `json:"date"`
	Tables  []allocation.Occupancy `json:"tables"`
}
