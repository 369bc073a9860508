/*
store.go - Repository ports for the booking engine

PURPOSE:
  Persistence interfaces the materializer, reconciler, and API depend
  on. Implementations: engine/store (in-memory, tests and dev) and
  store/sqlite (production).

IDEMPOTENCY CONTRACT:
  The write methods that guard exactly-once semantics are atomic
  conditional writes, not read-then-write:
    - CreateBookingIfAbsent: insert-if-no-payment-reference-match
    - CompletePendingPurchase: pending -> completed exactly once
    - CreditOnce: at most one credit row per payment reference
  Application-level pre-checks are early exits only; the store is the
  safety mechanism under concurrent duplicate delivery.

SEE ALSO:
  - store/memory.go: In-memory fake (mutex-guarded conditional writes)
  - ../store/sqlite/sqlite.go: SQLite (UNIQUE constraints)
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULES
// =============================================================================

type ScheduleStore interface {
	// ActiveSchedules returns every schedule with the active flag set.
	ActiveSchedules(ctx context.Context) ([]*RecurringSchedule, error)

	GetSchedule(ctx context.Context, id ScheduleID) (*RecurringSchedule, error)

	CreateSchedule(ctx context.Context, s *RecurringSchedule) error

	// MarkGenerated advances the schedule's last-generated marker. The
	// marker never moves backwards; implementations ignore a period at
	// or before the stored one.
	MarkGenerated(ctx context.Context, id ScheduleID, p Period) error
}

// =============================================================================
// BOOKINGS
// =============================================================================

// LatestRecurringQuery identifies the prior bookings a materialized
// schedule inherits its cleaner preference from.
type LatestRecurringQuery struct {
	Email     string
	Street    string
	Frequency Frequency
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b *Booking) error

	// CreateBookingIfAbsent inserts the booking unless another booking
	// already holds its payment reference. Returns ErrDuplicateApplication
	// and the existing booking when one does. Atomic.
	CreateBookingIfAbsent(ctx context.Context, b *Booking) (*Booking, error)

	GetBooking(ctx context.Context, id BookingID) (*Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*Booking, error)
	GetBookingByPaymentReference(ctx context.Context, paymentRef string) (*Booking, error)

	// LatestRecurringBooking returns the most recently created recurring
	// booking matching the query, or ErrNotFound.
	LatestRecurringBooking(ctx context.Context, q LatestRecurringQuery) (*Booking, error)

	// RecurringGroupTemplates returns the first booking (lowest sequence)
	// of every recurring group. Feeds the schedule sync operation.
	RecurringGroupTemplates(ctx context.Context) ([]*Booking, error)

	// UpdatePayment sets payment status and reference on an existing
	// booking, confirming it when payment completed.
	UpdatePayment(ctx context.Context, id BookingID, status PaymentStatus, paymentRef string) error
}

// =============================================================================
// CUSTOMERS / CLEANERS
// =============================================================================

type CustomerStore interface {
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error
}

type CleanerStore interface {
	GetCleaner(ctx context.Context, id CleanerID) (*Cleaner, error)
}

// =============================================================================
// PAYMENT INTENTS
// =============================================================================

type PurchaseStore interface {
	CreatePendingPurchase(ctx context.Context, p *PendingPurchase) error

	// CompletePendingPurchase transitions the purchase for the reference
	// from pending to completed. Returns ErrNotFound when no pending
	// purchase exists for the reference (already completed or never
	// created). Atomic: at most one caller wins.
	CompletePendingPurchase(ctx context.Context, paymentRef string) (*PendingPurchase, error)
}

type CreditStore interface {
	// CreditOnce appends a purchase transaction and increases the
	// customer's balance, unless a transaction for the payment reference
	// already exists, in which case it returns ErrDuplicateApplication.
	// Atomic.
	CreditOnce(ctx context.Context, tx *CreditTransaction) error

	CreditBalance(ctx context.Context, id CustomerID) (decimal.Decimal, error)
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsStore serves configuration snapshots with compiled-in fallbacks.
// Implementations return the defaults, never an error, when nothing is
// stored.
type SettingsStore interface {
	PricingConfig(ctx context.Context) (PricingConfig, error)
	EarningsConfig(ctx context.Context) (EarningsConfig, error)
}

// =============================================================================
// COMPOSITE
// =============================================================================

// Store is the full persistence surface the server wires together.
type Store interface {
	ScheduleStore
	BookingStore
	CustomerStore
	CleanerStore
	PurchaseStore
	CreditStore
	SettingsStore

	Close() error
}
