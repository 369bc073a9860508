/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/casaclean/booking-engine/engine"
)

// =============================================================================
// GENERIC RESPONSES
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AckResponse acknowledges events the server chose not to act on.
type AckResponse struct {
	Success bool `json:"success"`
}

// =============================================================================
// BATCH GENERATION
// =============================================================================

// GenerateResponse reports a materializer run.
type GenerateResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Generated int      `json:"generated"`
	Errors    []string `json:"errors"`
}

// SyncResponse reports a schedule sync run.
type SyncResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

// =============================================================================
// PAYMENT WEBHOOK
// =============================================================================

// WebhookResponse answers the payment provider. Reference carries the
// booking/voucher reference on success; Message carries a generic reason
// on rejection, never internal error detail.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// =============================================================================
// QUOTES
// =============================================================================

// QuoteRequest is the booking form payload priced by POST /api/quote.
type QuoteRequest struct {
	Service           string   `json:"service"`
	Frequency         string   `json:"frequency"`
	Bedrooms          int      `json:"bedrooms"`
	Bathrooms         int      `json:"bathrooms"`
	OfficeSize        string   `json:"officeSize"`
	FittedRoomsCount  int      `json:"fittedRoomsCount"`
	LooseCarpetsCount int      `json:"looseCarpetsCount"`
	RoomsFurnished    bool     `json:"roomsFurnished"`
	Extras            []string `json:"extras"`
	Tip               float64  `json:"tip"`
}

// QuoteResponse is the full price breakdown.
type QuoteResponse struct {
	BasePrice            decimal.Decimal `json:"basePrice"`
	RoomPrice            decimal.Decimal `json:"roomPrice"`
	ExtrasPrice          decimal.Decimal `json:"extrasPrice"`
	FurnitureFee         decimal.Decimal `json:"furnitureFee"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	FrequencyDiscount    decimal.Decimal `json:"frequencyDiscount"`
	DiscountCodeDiscount decimal.Decimal `json:"discountCodeDiscount"`
	ServiceFee           decimal.Decimal `json:"serviceFee"`
	Tip                  decimal.Decimal `json:"tip"`
	Total                decimal.Decimal `json:"total"`
}

func toQuoteResponse(b engine.PriceBreakdown) QuoteResponse {
	return QuoteResponse{
		BasePrice:            b.BasePrice,
		RoomPrice:            b.RoomPrice,
		ExtrasPrice:          b.ExtrasPrice,
		FurnitureFee:         b.FurnitureFee,
		Subtotal:             b.Subtotal,
		FrequencyDiscount:    b.FrequencyDiscount,
		DiscountCodeDiscount: b.DiscountCodeDiscount,
		ServiceFee:           b.ServiceFee,
		Tip:                  b.Tip,
		Total:                b.Total,
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

// BookingDTO is the public view of a booking.
type BookingDTO struct {
	Reference         string          `json:"reference"`
	Service           string          `json:"service"`
	Frequency         string          `json:"frequency"`
	ScheduledDate     string          `json:"scheduledDate"`
	ScheduledTime     string          `json:"scheduledTime,omitempty"`
	Status            string          `json:"status"`
	PaymentStatus     string          `json:"paymentStatus"`
	Total             decimal.Decimal `json:"total"`
	IsRecurring       bool            `json:"isRecurring"`
	RecurringGroupID  string          `json:"recurringGroupId,omitempty"`
	RecurringSequence *int            `json:"recurringSequence,omitempty"`
}

func toBookingDTO(b *engine.Booking) BookingDTO {
	return BookingDTO{
		Reference:         b.Reference,
		Service:           string(b.Service),
		Frequency:         string(b.Frequency),
		ScheduledDate:     b.ScheduledDate.String(),
		ScheduledTime:     b.ScheduledTime,
		Status:            string(b.Status),
		PaymentStatus:     string(b.PaymentStatus),
		Total:             b.Price.Total,
		IsRecurring:       b.IsRecurring,
		RecurringGroupID:  b.RecurringGroupID,
		RecurringSequence: b.RecurringSequence,
	}
}

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseRequest initiates a voucher or credit purchase.
type PurchaseRequest struct {
	Email  string  `json:"email"`
	Amount float64 `json:"amount"`
}

// PurchaseResponse returns the payment reference the client completes
// the gateway checkout with.
type PurchaseResponse struct {
	Success          bool   `json:"success"`
	PaymentReference string `json:"paymentReference"`
}
