/*
sqlite_test.go - Persistence and idempotency tests

Exercises the SQLite store against an in-memory database: round-trips
for schedules and bookings, the conditional writes behind exactly-once
payment application, and the monotonic generation marker.
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaclean/booking-engine/engine"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCustomer(t *testing.T, store *Store) *engine.Customer {
	t.Helper()
	c := &engine.Customer{FirstName: "Thandi", LastName: "Nkosi", Email: "thandi@example.com", Phone: "0821234567"}
	require.NoError(t, store.CreateCustomer(context.Background(), c))
	return c
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestScheduleRoundTrip(t *testing.T) {
	store := newStore(t)
	customer := seedCustomer(t, store)

	wed := time.Wednesday
	total := int64(38250)
	sched := &engine.RecurringSchedule{
		CustomerID:       customer.ID,
		Service:          engine.ServiceStandard,
		Frequency:        engine.FreqWeekly,
		DayOfWeek:        &wed,
		Preferred:        "09:00",
		Bedrooms:         2,
		Bathrooms:        1,
		Extras:           []string{"inside-oven", "laundry"},
		Address:          engine.Address{Street: "12 Protea Rd", Suburb: "Claremont", City: "Cape Town"},
		Notes:            "gate code 4321",
		Active:           true,
		TotalAmountMinor: &total,
	}
	require.NoError(t, store.CreateSchedule(context.Background(), sched))
	require.NotEmpty(t, sched.ID)

	got, err := store.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, sched.CustomerID, got.CustomerID)
	assert.Equal(t, engine.FreqWeekly, got.Frequency)
	require.NotNil(t, got.DayOfWeek)
	assert.Equal(t, time.Wednesday, *got.DayOfWeek)
	assert.Nil(t, got.DayOfMonth)
	assert.Equal(t, []string{"inside-oven", "laundry"}, got.Extras)
	assert.Equal(t, sched.Address, got.Address)
	assert.Equal(t, "gate code 4321", got.Notes)
	assert.Nil(t, got.LastGenerated)
	require.NotNil(t, got.TotalAmountMinor)
	assert.Equal(t, int64(38250), *got.TotalAmountMinor)

	active, err := store.ActiveSchedules(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMarkGeneratedIsMonotonic(t *testing.T) {
	store := newStore(t)
	customer := seedCustomer(t, store)

	wed := time.Wednesday
	sched := &engine.RecurringSchedule{
		CustomerID: customer.ID,
		Service:    engine.ServiceStandard,
		Frequency:  engine.FreqWeekly,
		DayOfWeek:  &wed,
		Active:     true,
	}
	require.NoError(t, store.CreateSchedule(context.Background(), sched))

	nov := engine.Period{Year: 2025, Month: time.November}
	require.NoError(t, store.MarkGenerated(context.Background(), sched.ID, nov))

	got, err := store.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastGenerated)
	assert.Equal(t, nov, *got.LastGenerated)

	// A stale writer cannot move the marker backwards.
	require.NoError(t, store.MarkGenerated(context.Background(), sched.ID, nov.Previous()))
	got, err = store.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, nov, *got.LastGenerated)

	// The next period moves it forward, across the year boundary too.
	dec := nov.Next()
	jan := dec.Next()
	require.NoError(t, store.MarkGenerated(context.Background(), sched.ID, dec))
	require.NoError(t, store.MarkGenerated(context.Background(), sched.ID, jan))
	got, err = store.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, jan, *got.LastGenerated)
}

// =============================================================================
// BOOKINGS
// =============================================================================

func sampleBooking() *engine.Booking {
	seq := 0
	return &engine.Booking{
		Service:       engine.ServiceDeep,
		Frequency:     engine.FreqBiWeekly,
		Detail:        engine.RoomDetail{Bedrooms: 3, Bathrooms: 2},
		Extras:        []string{"interior-windows"},
		ScheduledDate: engine.NewDate(2025, time.November, 12),
		ScheduledTime: "10:00",
		Address:       engine.Address{Street: "4 Long St", Suburb: "Gardens", City: "Cape Town"},
		FirstName:     "Lerato",
		LastName:      "Dlamini",
		Email:         "lerato@example.com",
		Status:        engine.BookingPending,
		PaymentStatus: engine.PaymentPending,
		Price: engine.PriceBreakdown{
			BasePrice: engine.NewMoney(400),
			RoomPrice: engine.NewMoney(1040),
			Subtotal:  engine.NewMoney(1540),
			Total:     engine.NewMoney(1524.60),
		},
		IsRecurring:       true,
		RecurringGroupID:  "REC-1",
		RecurringSequence: &seq,
	}
}

func TestBookingRoundTrip(t *testing.T) {
	store := newStore(t)
	b := sampleBooking()
	require.NoError(t, store.CreateBooking(context.Background(), b))
	require.NotEmpty(t, b.Reference)

	got, err := store.GetBookingByReference(context.Background(), b.Reference)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, engine.RoomDetail{Bedrooms: 3, Bathrooms: 2}, got.Detail)
	assert.Equal(t, []string{"interior-windows"}, got.Extras)
	assert.Equal(t, "2025-11-12", got.ScheduledDate.String())
	assert.True(t, got.Price.Total.Equal(engine.NewMoney(1524.60)), "total = %s", got.Price.Total)
	require.NotNil(t, got.RecurringSequence)
	assert.Equal(t, 0, *got.RecurringSequence)

	_, err = store.GetBookingByReference(context.Background(), "BOK-NOPE")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestBookingDetailVariants(t *testing.T) {
	store := newStore(t)

	office := sampleBooking()
	office.Service = engine.ServiceOffice
	office.Detail = engine.OfficeDetail{Size: engine.OfficeMedium, Bathrooms: 3}
	office.RecurringGroupID = "REC-OFFICE"
	require.NoError(t, store.CreateBooking(context.Background(), office))

	carpet := sampleBooking()
	carpet.Service = engine.ServiceCarpet
	carpet.Detail = engine.CarpetDetail{FittedRooms: 4, LooseCarpets: 2, Furnished: true}
	carpet.RecurringGroupID = "REC-CARPET"
	require.NoError(t, store.CreateBooking(context.Background(), carpet))

	gotOffice, err := store.GetBooking(context.Background(), office.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.OfficeDetail{Size: engine.OfficeMedium, Bathrooms: 3}, gotOffice.Detail)

	gotCarpet, err := store.GetBooking(context.Background(), carpet.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.CarpetDetail{FittedRooms: 4, LooseCarpets: 2, Furnished: true}, gotCarpet.Detail)
}

func TestCreateBookingIfAbsentEnforcesPaymentReference(t *testing.T) {
	// GIVEN a booking already applied for a payment reference
	store := newStore(t)
	first := sampleBooking()
	first.PaymentReference = "pay-ref-1"
	created, err := store.CreateBookingIfAbsent(context.Background(), first)
	require.NoError(t, err)

	// WHEN a duplicate delivery tries the same reference
	dup := sampleBooking()
	dup.PaymentReference = "pay-ref-1"
	existing, err := store.CreateBookingIfAbsent(context.Background(), dup)

	// THEN the constraint rejects it and the original comes back
	assert.ErrorIs(t, err, engine.ErrDuplicateApplication)
	require.NotNil(t, existing)
	assert.Equal(t, created.Reference, existing.Reference)

	// AND only one booking holds the reference
	got, err := store.GetBookingByPaymentReference(context.Background(), "pay-ref-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestUpdatePayment(t *testing.T) {
	store := newStore(t)
	b := sampleBooking()
	require.NoError(t, store.CreateBooking(context.Background(), b))

	require.NoError(t, store.UpdatePayment(context.Background(), b.ID, engine.PaymentCompleted, "pay-ref-2"))

	got, err := store.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, engine.BookingConfirmed, got.Status)
	assert.Equal(t, "pay-ref-2", got.PaymentReference)

	err = store.UpdatePayment(context.Background(), "booking-missing", engine.PaymentCompleted, "")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecurringGroupTemplates(t *testing.T) {
	// GIVEN two groups with their bookings inserted out of order
	store := newStore(t)
	for _, spec := range []struct {
		group string
		seq   int
	}{
		{"REC-A", 1}, {"REC-A", 0}, {"REC-A", 2},
		{"REC-B", 0}, {"REC-B", 1},
	} {
		b := sampleBooking()
		b.RecurringGroupID = spec.group
		seq := spec.seq
		b.RecurringSequence = &seq
		require.NoError(t, store.CreateBooking(context.Background(), b))
	}

	// WHEN the templates are listed
	templates, err := store.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)

	// THEN each group is represented once, by its lowest sequence
	require.Len(t, templates, 2)
	assert.Equal(t, "REC-A", templates[0].RecurringGroupID)
	assert.Equal(t, 0, *templates[0].RecurringSequence)
	assert.Equal(t, "REC-B", templates[1].RecurringGroupID)
	assert.Equal(t, 0, *templates[1].RecurringSequence)
}

func TestLatestRecurringBooking(t *testing.T) {
	store := newStore(t)

	older := sampleBooking()
	older.CleanerPreference = "cleaner-old"
	older.CreatedAt = time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateBooking(context.Background(), older))

	newer := sampleBooking()
	newer.RecurringGroupID = "REC-2"
	newer.CleanerPreference = "cleaner-new"
	newer.CreatedAt = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateBooking(context.Background(), newer))

	got, err := store.LatestRecurringBooking(context.Background(), engine.LatestRecurringQuery{
		Email:     "LERATO@example.com", // lookups are case-insensitive
		Street:    "4 Long St",
		Frequency: engine.FreqBiWeekly,
	})
	require.NoError(t, err)
	assert.Equal(t, "cleaner-new", got.CleanerPreference)
}

// =============================================================================
// PAYMENT INTENTS
// =============================================================================

func TestCompletePendingPurchaseOnce(t *testing.T) {
	store := newStore(t)
	customer := seedCustomer(t, store)

	ref := "voucher-1730000000-abcdefg"
	require.NoError(t, store.CreatePendingPurchase(context.Background(), &engine.PendingPurchase{
		PaymentReference: ref,
		CustomerID:       customer.ID,
		VoucherAmount:    engine.NewMoney(500),
		Status:           engine.PurchasePending,
	}))

	// First completion transitions the purchase.
	p, err := store.CompletePendingPurchase(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, engine.PurchaseCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.VoucherAmount.Equal(engine.NewMoney(500)))

	// A second completion finds nothing pending.
	_, err = store.CompletePendingPurchase(context.Background(), ref)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestCreditOnce(t *testing.T) {
	store := newStore(t)
	customer := seedCustomer(t, store)

	credit := func(ref string, amount float64) error {
		return store.CreditOnce(context.Background(), &engine.CreditTransaction{
			CustomerID:       customer.ID,
			Amount:           engine.NewMoney(amount),
			Type:             engine.CreditPurchase,
			PaymentReference: ref,
		})
	}

	require.NoError(t, credit("credit-1", 500))
	assert.ErrorIs(t, credit("credit-1", 500), engine.ErrDuplicateApplication)
	require.NoError(t, credit("credit-2", 200))

	// Usage entries subtract.
	require.NoError(t, store.CreditOnce(context.Background(), &engine.CreditTransaction{
		CustomerID:       customer.ID,
		Amount:           engine.NewMoney(150),
		Type:             engine.CreditUsage,
		PaymentReference: "usage-1",
	}))

	balance, err := store.CreditBalance(context.Background(), customer.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.NewMoney(550)), "balance = %s", balance)
}

// =============================================================================
// CUSTOMERS / SETTINGS
// =============================================================================

func TestCustomerEmailUniqueAndCaseInsensitive(t *testing.T) {
	store := newStore(t)
	seedCustomer(t, store)

	got, err := store.GetCustomerByEmail(context.Background(), "THANDI@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, "Thandi", got.FirstName)

	err = store.CreateCustomer(context.Background(), &engine.Customer{
		FirstName: "Other", LastName: "Person", Email: "Thandi@Example.com",
	})
	assert.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newStore(t)

	// Nothing stored: the compiled-in defaults are served.
	cfg, err := store.PricingConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.BasePrices[engine.ServiceStandard].Equal(engine.NewMoney(250)))

	// A stored snapshot overrides them.
	custom := engine.DefaultPricingConfig()
	custom.BasePrices[engine.ServiceStandard] = engine.NewMoney(275)
	require.NoError(t, store.SavePricingConfig(context.Background(), custom))

	cfg, err = store.PricingConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.BasePrices[engine.ServiceStandard].Equal(engine.NewMoney(275)),
		"standard base = %s", cfg.BasePrices[engine.ServiceStandard])

	earnings, err := store.EarningsConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, earnings.JobThreshold)

	custom2 := engine.DefaultEarningsConfig()
	custom2.JobThreshold = 40
	require.NoError(t, store.SaveEarningsConfig(context.Background(), custom2))

	earnings, err = store.EarningsConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, earnings.JobThreshold)
}

func TestSaveCleanerUpsert(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.SaveCleaner(context.Background(), &engine.Cleaner{ID: "cleaner-1", Name: "Nomsa", TotalJobs: 10}))
	require.NoError(t, store.SaveCleaner(context.Background(), &engine.Cleaner{ID: "cleaner-1", Name: "Nomsa", TotalJobs: 51}))

	got, err := store.GetCleaner(context.Background(), "cleaner-1")
	require.NoError(t, err)
	assert.Equal(t, 51, got.TotalJobs)

	_, err = store.GetCleaner(context.Background(), "cleaner-missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
