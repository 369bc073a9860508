/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the materializer, reconciler, and price engine via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Batch:
    POST /recurring/generate-monthly  Run the schedule materializer
    GET  /recurring/generate-monthly  Same, for manual testing
    POST /api/recurring/sync          Build schedules from recurring bookings

  Payments:
    POST /payment/callback            Paystack webhook

  Bookings:
    GET  /api/bookings/{reference}    Booking lookup
    POST /api/quote                   Price a booking form payload

  Purchases:
    POST /api/vouchers/purchase       Initiate a voucher purchase
    POST /api/credits/purchase        Initiate a credit top-up

ERROR HANDLING:
  The webhook maps the reconciler's error taxonomy onto status codes:
  401 bad signature, 400 verification/classification failure, 5xx
  persistence failure (so the provider redelivers), 200 with an ack for
  events the engine chose to ignore.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/casaclean/booking-engine/engine"
	"github.com/casaclean/booking-engine/payment"
	"github.com/casaclean/booking-engine/recurring"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        engine.Store
	Materializer *recurring.Materializer
	Syncer       *recurring.Syncer
	Reconciler   *payment.Reconciler

	// CronToken guards the batch trigger when non-empty.
	CronToken string
}

// NewHandler wires a handler around the store and the engine services.
func NewHandler(store engine.Store, materializer *recurring.Materializer, syncer *recurring.Syncer, reconciler *payment.Reconciler, cronToken string) *Handler {
	return &Handler{
		Store:        store,
		Materializer: materializer,
		Syncer:       syncer,
		Reconciler:   reconciler,
		CronToken:    cronToken,
	}
}

// =============================================================================
// BATCH GENERATION
// =============================================================================

// GenerateMonthly runs the materializer for the current period.
// POST|GET /recurring/generate-monthly
func (h *Handler) GenerateMonthly(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCron(r) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "unauthorized"})
		return
	}

	report := h.Materializer.MaterializeNextPeriod(r.Context(), time.Now())

	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:   report.Success(),
		Message:   report.Message(),
		Generated: report.Generated,
		Errors:    errs,
	})
}

// SyncSchedules builds schedules from existing recurring bookings.
// POST /api/recurring/sync
func (h *Handler) SyncSchedules(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCron(r) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "unauthorized"})
		return
	}

	report := h.Syncer.Sync(r.Context())

	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}
	message := "Sync complete"
	if !report.Success() {
		message = "Sync completed with errors"
	}
	writeJSON(w, http.StatusOK, SyncResponse{
		Success: report.Success(),
		Message: message,
		Created: report.Created,
		Errors:  errs,
	})
}

func (h *Handler) authorizeCron(r *http.Request) bool {
	if h.CronToken == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+h.CronToken
}

// =============================================================================
// PAYMENT WEBHOOK
// =============================================================================

// PaymentCallback consumes Paystack webhook deliveries.
// POST /payment/callback
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "unreadable body"})
		return
	}

	outcome, err := h.Reconciler.Process(r.Context(), body, r.Header.Get(payment.SignatureHeader))

	switch {
	case err == nil:
		switch outcome.Status {
		case payment.OutcomeIgnored:
			writeJSON(w, http.StatusOK, AckResponse{Success: true})
		case payment.OutcomeAlreadyProcessed:
			writeJSON(w, http.StatusOK, WebhookResponse{
				Success:   true,
				Message:   "already processed",
				Reference: outcome.Reference,
			})
		default:
			writeJSON(w, http.StatusOK, WebhookResponse{
				Success:   true,
				Message:   outcome.Kind + " confirmed",
				Reference: outcome.Reference,
			})
		}
	case errors.Is(err, engine.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "invalid signature"})
	case engine.IsRetryable(err):
		// 5xx so the provider redelivers; idempotency makes that safe.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "temporary failure"})
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: outcome.Reason})
	}
}

// =============================================================================
// BOOKINGS / QUOTES
// =============================================================================

// GetBooking looks a booking up by its public reference.
// GET /api/bookings/{reference}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	booking, err := h.Store.GetBookingByReference(r.Context(), reference)
	if engine.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "booking not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, toBookingDTO(booking))
}

// Quote prices a booking form payload without persisting anything.
// POST /api/quote
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	service := engine.ServiceType(req.Service)
	if service == "" {
		service = engine.ServiceStandard
	}
	frequency := engine.Frequency(req.Frequency)
	if frequency == "" {
		frequency = engine.FreqOneTime
	}

	var detail engine.ServiceDetail
	switch service {
	case engine.ServiceCarpet:
		detail = engine.CarpetDetail{
			FittedRooms:  req.FittedRoomsCount,
			LooseCarpets: req.LooseCarpetsCount,
			Furnished:    req.RoomsFurnished,
		}
	case engine.ServiceOffice:
		detail = engine.OfficeDetail{Size: engine.OfficeSize(req.OfficeSize), Bathrooms: req.Bathrooms}
	default:
		detail = engine.RoomDetail{Bedrooms: req.Bedrooms, Bathrooms: req.Bathrooms}
	}

	cfg, err := h.Store.PricingConfig(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "pricing unavailable"})
		return
	}

	breakdown := engine.CalculatePrice(engine.PriceRequest{
		Service:   service,
		Detail:    detail,
		Extras:    req.Extras,
		Frequency: frequency,
		Tip:       decimal.NewFromFloat(req.Tip),
	}, cfg)

	writeJSON(w, http.StatusOK, toQuoteResponse(breakdown))
}

// =============================================================================
// PURCHASE INITIATION
// =============================================================================

// PurchaseVoucher creates a pending voucher purchase and hands back the
// payment reference the client completes checkout with.
// POST /api/vouchers/purchase
func (h *Handler) PurchaseVoucher(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "amount must be positive"})
		return
	}

	customer, err := h.Store.GetCustomerByEmail(r.Context(), req.Email)
	if engine.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "customer not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "lookup failed"})
		return
	}

	purchase := engine.PendingPurchase{
		PaymentReference: engine.NewVoucherReference(),
		CustomerID:       customer.ID,
		VoucherAmount:    decimal.NewFromFloat(req.Amount),
		Status:           engine.PurchasePending,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.Store.CreatePendingPurchase(r.Context(), &purchase); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "could not create purchase"})
		return
	}

	writeJSON(w, http.StatusOK, PurchaseResponse{Success: true, PaymentReference: purchase.PaymentReference})
}

// Credit top-up amounts, major units.
const (
	minCreditAmount = 20
	maxCreditAmount = 5000
)

// PurchaseCredits validates the top-up amount and hands back a credit
// payment reference. The actual crediting happens when the webhook for
// the reference arrives.
// POST /api/credits/purchase
func (h *Handler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}
	if req.Amount < minCreditAmount || req.Amount > maxCreditAmount {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "amount out of range"})
		return
	}

	if _, err := h.Store.GetCustomerByEmail(r.Context(), req.Email); err != nil {
		if engine.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "customer not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, PurchaseResponse{Success: true, PaymentReference: engine.NewCreditReference()})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
