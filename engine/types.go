/*
Package engine provides the core booking computation engine.

PURPOSE:
  This package contains the pure domain types and algorithms behind the
  booking platform: recurring date expansion, deterministic pricing,
  cleaner earnings, and the repository ports everything persists through.
  Nothing here performs I/O; the materializer and reconciler packages
  drive these types against a store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal-based currency amounts (no floats in prices)
  - ServiceDetail: tagged service attributes (rooms vs office vs carpet)
  - RecurringSchedule: a standing instruction to produce bookings
  - Booking: one dated service occurrence with a price snapshot
  - PendingPurchase / CreditTransaction: payment-reference-keyed intents

DESIGN PRINCIPLES:
  1. Determinism: identical inputs always price identically
  2. Precision: decimal.Decimal for all currency amounts
  3. Type safety: typed IDs, tagged service details, a real Period type
  4. Idempotency: payment references are the uniqueness keys throughout

SEE ALSO:
  - pricing.go: Price engine
  - earnings.go: Cleaner payout calculation
  - expand.go: Recurring date expansion
  - store.go: Repository ports
*/
package engine

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal currency amounts (single currency, major units)
// =============================================================================

// NewMoney builds an amount from a float. Use only for configuration and
// test literals; computed values stay in decimal space.
func NewMoney(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// MoneyFromMinorUnits converts gateway minor units (cents) to major units.
func MoneyFromMinorUnits(units int64) decimal.Decimal { return decimal.New(units, -2) }

// MinorUnits converts a major-unit amount to gateway minor units.
func MinorUnits(d decimal.Decimal) int64 { return d.Mul(decimal.New(100, 0)).Round(0).IntPart() }

// RoundMoney rounds to 2 decimal places. Applied once, at final totals.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type CleanerID string
type ScheduleID string
type BookingID string

// NewBookingReference generates a human-readable booking reference.
func NewBookingReference() string {
	return "BOK-" + timestamp36() + "-" + randToken(4)
}

// NewBookingID generates a booking identity distinct from the reference.
func NewBookingID() BookingID {
	return BookingID("booking-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strings.ToLower(randToken(6)))
}

// NewRecurringGroupID generates the shared id linking a materialized series.
func NewRecurringGroupID() string {
	return "REC-" + timestamp36() + "-" + randToken(6)
}

// NewVoucherReference generates a payment reference for a voucher purchase.
// The "voucher-" prefix is how the reconciler classifies the payment.
func NewVoucherReference() string {
	return fmt.Sprintf("voucher-%d-%s", time.Now().UnixMilli(), strings.ToLower(randToken(7)))
}

// NewCreditReference generates a payment reference for a credit top-up.
func NewCreditReference() string {
	return fmt.Sprintf("credit-%d-%s", time.Now().UnixMilli(), strings.ToLower(randToken(7)))
}

func timestamp36() string {
	return strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[rand.Intn(len(tokenAlphabet))]
	}
	return strings.ToUpper(string(b))
}

// =============================================================================
// SERVICE ATTRIBUTES - Tagged detail types per service kind
// =============================================================================

type ServiceType string

const (
	ServiceStandard  ServiceType = "standard"
	ServiceDeep      ServiceType = "deep"
	ServiceMoveInOut ServiceType = "move-in-out"
	ServiceAirbnb    ServiceType = "airbnb"
	ServiceOffice    ServiceType = "office"
	ServiceHoliday   ServiceType = "holiday"
	ServiceCarpet    ServiceType = "carpet-cleaning"
)

type Frequency string

const (
	FreqOneTime  Frequency = "one-time"
	FreqWeekly   Frequency = "weekly"
	FreqBiWeekly Frequency = "bi-weekly"
	FreqMonthly  Frequency = "monthly"
)

// IsRecurring reports whether the frequency produces more than one occurrence.
func (f Frequency) IsRecurring() bool { return f != FreqOneTime && f != "" }

type OfficeSize string

const (
	OfficeSmall  OfficeSize = "small"
	OfficeMedium OfficeSize = "medium"
	OfficeLarge  OfficeSize = "large"
)

// ServiceDetail is the tagged attribute set for a service. The price engine
// switches on the concrete type, so a missing branch is a compile-time
// visible gap instead of a silently defaulted field.
type ServiceDetail interface {
	serviceDetail()
}

// RoomDetail covers the room-counted services (standard, deep, move-in-out,
// airbnb, holiday).
type RoomDetail struct {
	Bedrooms  int
	Bathrooms int
}

// OfficeDetail prices offices by size tier rather than bedroom count.
type OfficeDetail struct {
	Size      OfficeSize
	Bathrooms int
}

// CarpetDetail covers carpet cleaning: fitted rooms and loose carpets,
// with a flat surcharge when the rooms are furnished.
type CarpetDetail struct {
	FittedRooms  int
	LooseCarpets int
	Furnished    bool
}

func (RoomDetail) serviceDetail()   {}
func (OfficeDetail) serviceDetail() {}
func (CarpetDetail) serviceDetail() {}

// =============================================================================
// ADDRESS / CONTACTS
// =============================================================================

type Address struct {
	Street string
	Suburb string
	City   string
}

type Customer struct {
	ID        CustomerID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Cleaner struct {
	ID        CleanerID
	Name      string
	TotalJobs int
}

// =============================================================================
// RECURRING SCHEDULE - Standing instruction to produce bookings
// =============================================================================

// RecurringSchedule describes how to generate future bookings for a customer.
// Exactly one of DayOfWeek/DayOfMonth is meaningful: weekly and bi-weekly
// schedules anchor to a weekday, monthly schedules to a day of month.
// Schedules are never deleted, only deactivated.
type RecurringSchedule struct {
	ID         ScheduleID
	CustomerID CustomerID
	Service    ServiceType
	Frequency  Frequency
	DayOfWeek  *time.Weekday
	DayOfMonth *int
	Preferred  string // preferred time of day, "HH:MM"
	Bedrooms   int
	Bathrooms  int
	Extras     []string
	Address    Address
	CleanerID  *CleanerID
	Notes      string
	Active     bool

	// LastGenerated marks the most recent period the materializer ran this
	// schedule in. Monotonically non-decreasing.
	LastGenerated *Period

	// Operator overrides carried from the booking the schedule was synced
	// from: a fixed total and fixed cleaner payout, in minor units.
	TotalAmountMinor     *int64
	CleanerEarningsMinor *int64

	CreatedAt time.Time
}

// Anchor returns the schedule's anchor rule, validating the XOR invariant.
func (s *RecurringSchedule) Anchor() (weekday *time.Weekday, dayOfMonth *int, err error) {
	switch s.Frequency {
	case FreqWeekly, FreqBiWeekly:
		if s.DayOfWeek == nil {
			return nil, nil, &ValidationError{Field: "day_of_week", Message: "weekly schedule missing weekday anchor"}
		}
		return s.DayOfWeek, nil, nil
	case FreqMonthly:
		if s.DayOfMonth == nil {
			return nil, nil, &ValidationError{Field: "day_of_month", Message: "monthly schedule missing day-of-month anchor"}
		}
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return nil, nil, &ValidationError{Field: "day_of_month", Message: fmt.Sprintf("day of month %d out of range", *s.DayOfMonth)}
		}
		return nil, s.DayOfMonth, nil
	default:
		return nil, nil, &ValidationError{Field: "frequency", Message: fmt.Sprintf("schedule frequency %q is not recurring", s.Frequency)}
	}
}

// =============================================================================
// BOOKING - One dated service occurrence
// =============================================================================

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Booking is a single dated occurrence. The price breakdown fields are a
// snapshot of the computation at creation time; the engine recomputes on
// demand for edits and rebooks.
type Booking struct {
	ID        BookingID
	Reference string

	Service   ServiceType
	Frequency Frequency
	Detail    ServiceDetail
	Extras    []string

	ScheduledDate Date
	ScheduledTime string
	Address       Address

	FirstName string
	LastName  string
	Email     string
	Phone     string

	CleanerPreference string
	CleanerID         *CleanerID

	Status        BookingStatus
	PaymentStatus PaymentStatus

	// PaymentReference is unique across bookings when set; it is the
	// idempotency key the reconciler guards duplicate deliveries with.
	PaymentReference string

	Price              PriceBreakdown
	CleanerEarnings    *decimal.Decimal
	CleanerEarningsPct *decimal.Decimal

	// Recurring-group linkage, set only by the materializer.
	IsRecurring       bool
	RecurringGroupID  string
	RecurringSequence *int

	SpecialInstructions string
	CreatedAt           time.Time
}

// =============================================================================
// PAYMENT INTENTS - Voucher purchases and credit top-ups
// =============================================================================

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
)

// PendingPurchase links a gateway payment reference to a voucher purchase
// awaiting confirmation. At most one completion per reference.
type PendingPurchase struct {
	PaymentReference string
	CustomerID       CustomerID
	VoucherAmount    decimal.Decimal
	Status           PurchaseStatus
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

type CreditTransactionType string

const (
	CreditPurchase CreditTransactionType = "purchase"
	CreditUsage    CreditTransactionType = "usage"
)

// CreditTransaction is one entry in a customer's stored-credit ledger.
// Purchase entries are keyed by payment reference (unique) so a replayed
// webhook can never double-credit.
type CreditTransaction struct {
	ID               string
	CustomerID       CustomerID
	Amount           decimal.Decimal
	Type             CreditTransactionType
	PaymentReference string
	CreatedAt        time.Time
}
