/*
reconciler.go - Payment webhook reconciliation state machine

PURPOSE:
  Consumes Paystack webhook events and applies exactly one state
  transition per payment reference, whatever the delivery pattern:
  duplicates, retries, or a race with a client-side confirmation poll.

THE PIPELINE:
  1. Verify   - HMAC signature over the raw body (constant-time)
  2. Filter   - only charge.success events with status=success + reference
  3. Re-verify - independent provider lookup before trusting the payload
  4. Classify - voucher purchase / credit top-up / rebooking / new booking
  5. Apply    - one atomic conditional write; duplicates short-circuit
                to an already-processed outcome

CLASSIFICATION PRIORITY:
  a. "voucher-" reference prefix  -> complete the pending purchase
  b. metadata purpose=credit_topup -> credit the customer's balance
  c. metadata booking_reference    -> mark that booking paid (rebooking)
  d. metadata booking_data         -> create the booking, reference as key

  Everything else that passed the filter is rejected; events that fail
  the filter are acknowledged without side effects, per gateway contract.
*/
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/casaclean/booking-engine/engine"
)

// Store is the persistence surface the reconciler needs.
type Store interface {
	engine.BookingStore
	engine.CustomerStore
	engine.PurchaseStore
	engine.CreditStore
	engine.SettingsStore
}

// =============================================================================
// EVENT ENVELOPE
// =============================================================================

// Event is the provider's webhook envelope.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

type EventData struct {
	Reference string        `json:"reference"`
	Status    string        `json:"status"`
	Amount    int64         `json:"amount"` // minor units
	Metadata  EventMetadata `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

type EventMetadata struct {
	Purpose          string        `json:"purpose"`
	BookingReference string        `json:"booking_reference"`
	BookingData      *BookingDraft `json:"booking_data"`
}

// BookingDraft is the booking-form payload carried in metadata when the
// payment is for a brand new booking.
type BookingDraft struct {
	Service             string   `json:"service"`
	Frequency           string   `json:"frequency"`
	ScheduledDate       string   `json:"scheduledDate"`
	ScheduledTime       string   `json:"scheduledTime"`
	Bedrooms            int      `json:"bedrooms"`
	Bathrooms           int      `json:"bathrooms"`
	OfficeSize          string   `json:"officeSize"`
	FittedRoomsCount    int      `json:"fittedRoomsCount"`
	LooseCarpetsCount   int      `json:"looseCarpetsCount"`
	RoomsFurnished      bool     `json:"roomsFurnished"`
	Extras              []string `json:"extras"`
	StreetAddress       string   `json:"streetAddress"`
	Suburb              string   `json:"suburb"`
	City                string   `json:"city"`
	FirstName           string   `json:"firstName"`
	LastName            string   `json:"lastName"`
	Email               string   `json:"email"`
	Phone               string   `json:"phone"`
	CleanerPreference   string   `json:"cleanerPreference"`
	Tip                 float64  `json:"tip"`
	SpecialInstructions string   `json:"specialInstructions"`
}

// =============================================================================
// OUTCOME
// =============================================================================

type OutcomeStatus string

const (
	OutcomeConfirmed        OutcomeStatus = "confirmed"
	OutcomeAlreadyProcessed OutcomeStatus = "already-processed"
	OutcomeRejected         OutcomeStatus = "rejected"
	OutcomeIgnored          OutcomeStatus = "ignored"
)

// Outcome is the structured result of one reconciliation. Reference is
// the booking/voucher reference the provider is told about on success;
// Reason is the generic rejection reason (never internal error detail).
type Outcome struct {
	Status    OutcomeStatus
	Kind      string // booking, rebooking, voucher, credit
	Reference string
	Reason    string
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	store    Store
	verifier Verifier

	secretKey string
	// allowUnsigned tolerates missing signatures for non-production use.
	// A present-but-wrong signature is always rejected.
	allowUnsigned bool
}

func NewReconciler(store Store, verifier Verifier, secretKey string, allowUnsigned bool) *Reconciler {
	return &Reconciler{
		store:         store,
		verifier:      verifier,
		secretKey:     secretKey,
		allowUnsigned: allowUnsigned,
	}
}

// Process runs one webhook delivery through the pipeline. The returned
// error classifies the failure for HTTP mapping (signature, client,
// retryable); the Outcome is always usable for the response body.
func (r *Reconciler) Process(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	// Step 1: authenticate the delivery before touching anything else.
	if signature == "" {
		if !r.allowUnsigned {
			return Outcome{Status: OutcomeRejected, Reason: "missing signature"}, engine.ErrInvalidSignature
		}
	} else if err := VerifySignature(r.secretKey, rawBody, signature); err != nil {
		return Outcome{Status: OutcomeRejected, Reason: "invalid signature"}, err
	}

	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return Outcome{Status: OutcomeRejected, Reason: "malformed event"},
			fmt.Errorf("%w: decode event: %v", engine.ErrValidation, err)
	}

	// Step 2: acknowledge anything we don't act on.
	if event.Event != "charge.success" || event.Data.Status != "success" || event.Data.Reference == "" {
		log.Printf("[Reconciler] ignoring event=%q status=%q", event.Event, event.Data.Status)
		return Outcome{Status: OutcomeIgnored}, nil
	}

	reference := event.Data.Reference

	// Step 3: never trust the payload alone.
	tx, err := r.verifier.VerifyTransaction(ctx, reference)
	if err != nil {
		return Outcome{Status: OutcomeRejected, Reason: "verification failed"}, err
	}
	if tx.Status != "success" {
		return Outcome{Status: OutcomeRejected, Reason: "verification failed"},
			&engine.VerificationMismatchError{
				Reference:      reference,
				WebhookStatus:  event.Data.Status,
				ProviderStatus: tx.Status,
			}
	}

	// Step 4+5: classify and apply.
	outcome, err := r.apply(ctx, &event, tx)
	log.Printf("[Reconciler] reference=%s kind=%s outcome=%s", reference, outcome.Kind, outcome.Status)
	return outcome, err
}

func (r *Reconciler) apply(ctx context.Context, event *Event, tx *Transaction) (Outcome, error) {
	reference := event.Data.Reference
	meta := event.Data.Metadata

	switch {
	case strings.HasPrefix(reference, "voucher-"):
		return r.applyVoucher(ctx, reference)
	case meta.Purpose == "credit_topup" || strings.HasPrefix(reference, "credit-"):
		return r.applyCredit(ctx, event, tx)
	case meta.BookingReference != "":
		return r.applyRebooking(ctx, meta.BookingReference, reference)
	case meta.BookingData != nil:
		return r.applyNewBooking(ctx, meta.BookingData, reference)
	default:
		return Outcome{Status: OutcomeRejected, Reason: "unrecognized payment"},
			&engine.ValidationError{Field: "metadata", Message: "no recognizable payment intent"}
	}
}

// applyVoucher completes a pending voucher purchase. A missing pending
// record means the purchase was already completed (or never initiated
// here); either way there is nothing to redo.
func (r *Reconciler) applyVoucher(ctx context.Context, reference string) (Outcome, error) {
	purchase, err := r.store.CompletePendingPurchase(ctx, reference)
	if engine.IsNotFound(err) {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "voucher", Reference: reference}, nil
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "voucher", Reason: "processing failed"}, err
	}
	return Outcome{Status: OutcomeConfirmed, Kind: "voucher", Reference: purchase.PaymentReference}, nil
}

// applyCredit credits a customer's stored balance with the verified
// amount. The paying user is resolved by the provider-confirmed email.
func (r *Reconciler) applyCredit(ctx context.Context, event *Event, tx *Transaction) (Outcome, error) {
	email := tx.CustomerEmail
	if email == "" {
		email = event.Data.Customer.Email
	}
	customer, err := r.store.GetCustomerByEmail(ctx, email)
	if engine.IsNotFound(err) {
		return Outcome{Status: OutcomeRejected, Kind: "credit", Reason: "user not found"},
			&engine.ValidationError{Field: "customer", Message: "no customer for payment email"}
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "credit", Reason: "processing failed"}, err
	}

	amount := engine.MoneyFromMinorUnits(tx.AmountMinor)
	if !amount.IsPositive() {
		return Outcome{Status: OutcomeRejected, Kind: "credit", Reason: "invalid amount"},
			&engine.ValidationError{Field: "amount", Message: "verified amount is not positive"}
	}

	err = r.store.CreditOnce(ctx, &engine.CreditTransaction{
		CustomerID:       customer.ID,
		Amount:           amount,
		Type:             engine.CreditPurchase,
		PaymentReference: event.Data.Reference,
		CreatedAt:        time.Now().UTC(),
	})
	if engine.IsDuplicate(err) {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "credit", Reference: event.Data.Reference}, nil
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "credit", Reason: "processing failed"}, err
	}
	return Outcome{Status: OutcomeConfirmed, Kind: "credit", Reference: event.Data.Reference}, nil
}

// applyRebooking marks an existing booking paid instead of creating a
// new one.
func (r *Reconciler) applyRebooking(ctx context.Context, bookingRef, paymentRef string) (Outcome, error) {
	booking, err := r.store.GetBookingByReference(ctx, bookingRef)
	if engine.IsNotFound(err) {
		return Outcome{Status: OutcomeRejected, Kind: "rebooking", Reason: "booking not found"},
			&engine.ValidationError{Field: "booking_reference", Message: "no booking for reference"}
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "rebooking", Reason: "processing failed"}, err
	}

	if booking.PaymentStatus == engine.PaymentCompleted {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "rebooking", Reference: booking.Reference}, nil
	}

	err = r.store.UpdatePayment(ctx, booking.ID, engine.PaymentCompleted, paymentRef)
	if engine.IsDuplicate(err) {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "rebooking", Reference: booking.Reference}, nil
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "rebooking", Reason: "processing failed"}, err
	}
	return Outcome{Status: OutcomeConfirmed, Kind: "rebooking", Reference: booking.Reference}, nil
}

// applyNewBooking submits the booking carried in metadata, using the
// payment reference as the idempotency key. The insert-if-absent write
// closes the race with duplicate deliveries and confirmation polls.
func (r *Reconciler) applyNewBooking(ctx context.Context, draft *BookingDraft, paymentRef string) (Outcome, error) {
	// Early exit for the common duplicate case; the conditional insert
	// below remains the real guard.
	if existing, err := r.store.GetBookingByPaymentReference(ctx, paymentRef); err == nil {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "booking", Reference: existing.Reference}, nil
	}

	booking, err := r.buildBooking(ctx, draft, paymentRef)
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "booking", Reason: "invalid booking data"}, err
	}

	created, err := r.store.CreateBookingIfAbsent(ctx, booking)
	if engine.IsDuplicate(err) {
		return Outcome{Status: OutcomeAlreadyProcessed, Kind: "booking", Reference: created.Reference}, nil
	}
	if err != nil {
		return Outcome{Status: OutcomeRejected, Kind: "booking", Reason: "processing failed"}, err
	}
	return Outcome{Status: OutcomeConfirmed, Kind: "booking", Reference: created.Reference}, nil
}

func (r *Reconciler) buildBooking(ctx context.Context, draft *BookingDraft, paymentRef string) (*engine.Booking, error) {
	if draft.Email == "" {
		return nil, &engine.ValidationError{Field: "email", Message: "booking data missing contact email"}
	}
	date, err := engine.ParseDate(draft.ScheduledDate)
	if err != nil {
		return nil, &engine.ValidationError{Field: "scheduledDate", Message: "invalid scheduled date"}
	}

	service := engine.ServiceType(draft.Service)
	if service == "" {
		service = engine.ServiceStandard
	}
	frequency := engine.Frequency(draft.Frequency)
	if frequency == "" {
		frequency = engine.FreqOneTime
	}

	var detail engine.ServiceDetail
	switch service {
	case engine.ServiceCarpet:
		detail = engine.CarpetDetail{
			FittedRooms:  draft.FittedRoomsCount,
			LooseCarpets: draft.LooseCarpetsCount,
			Furnished:    draft.RoomsFurnished,
		}
	case engine.ServiceOffice:
		detail = engine.OfficeDetail{Size: engine.OfficeSize(draft.OfficeSize), Bathrooms: draft.Bathrooms}
	default:
		detail = engine.RoomDetail{Bedrooms: draft.Bedrooms, Bathrooms: draft.Bathrooms}
	}

	cfg, err := r.store.PricingConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pricing config: %v", engine.ErrConfiguration, err)
	}
	price := engine.CalculatePrice(engine.PriceRequest{
		Service:   service,
		Detail:    detail,
		Extras:    draft.Extras,
		Frequency: frequency,
		Tip:       decimal.NewFromFloat(draft.Tip),
	}, cfg)

	return &engine.Booking{
		Service:             service,
		Frequency:           frequency,
		Detail:              detail,
		Extras:              draft.Extras,
		ScheduledDate:       date,
		ScheduledTime:       draft.ScheduledTime,
		Address:             engine.Address{Street: draft.StreetAddress, Suburb: draft.Suburb, City: draft.City},
		FirstName:           draft.FirstName,
		LastName:            draft.LastName,
		Email:               draft.Email,
		Phone:               draft.Phone,
		CleanerPreference:   draft.CleanerPreference,
		Status:              engine.BookingConfirmed,
		PaymentStatus:       engine.PaymentCompleted,
		PaymentReference:    paymentRef,
		Price:               price,
		IsRecurring:         frequency.IsRecurring(),
		SpecialInstructions: draft.SpecialInstructions,
		CreatedAt:           time.Now().UTC(),
	}, nil
}
