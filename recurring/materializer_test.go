package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaclean/booking-engine/engine"
	memstore "github.com/casaclean/booking-engine/engine/store"
)

// runAt is a fixed mid-October instant: marker period 2025-10, bookings
// land in 2025-11 (which starts on a Saturday).
var runAt = time.Date(2025, time.October, 15, 9, 0, 0, 0, time.UTC)

func newCustomer(t *testing.T, m *memstore.Memory) *engine.Customer {
	t.Helper()
	c := &engine.Customer{
		FirstName: "Thandi",
		LastName:  "Nkosi",
		Email:     "thandi@example.com",
		Phone:     "0821234567",
	}
	require.NoError(t, m.CreateCustomer(context.Background(), c))
	return c
}

func weeklySchedule(customerID engine.CustomerID) *engine.RecurringSchedule {
	wed := time.Wednesday
	return &engine.RecurringSchedule{
		CustomerID: customerID,
		Service:    engine.ServiceStandard,
		Frequency:  engine.FreqWeekly,
		DayOfWeek:  &wed,
		Preferred:  "09:00",
		Bedrooms:   2,
		Bathrooms:  1,
		Address:    engine.Address{Street: "12 Protea Rd", Suburb: "Claremont", City: "Cape Town"},
		Active:     true,
	}
}

func TestMaterializeGeneratesNextPeriod(t *testing.T) {
	// GIVEN an active weekly schedule anchored on Wednesdays
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	sched := weeklySchedule(customer.ID)
	require.NoError(t, m.CreateSchedule(context.Background(), sched))

	// WHEN the batch runs in October
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)

	// THEN November has four Wednesday bookings as one recurring group
	require.True(t, report.Success(), "errors: %v", report.Errors)
	assert.Equal(t, 4, report.Generated)

	templates, err := m.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)

	first := templates[0]
	assert.Equal(t, engine.NewDate(2025, time.November, 5), first.ScheduledDate)
	assert.Equal(t, "09:00", first.ScheduledTime)
	assert.Equal(t, customer.Email, first.Email)
	assert.Equal(t, engine.BookingPending, first.Status)
	assert.Equal(t, engine.PaymentPending, first.PaymentStatus)
	assert.True(t, first.IsRecurring)
	require.NotNil(t, first.RecurringSequence)
	assert.Equal(t, 0, *first.RecurringSequence)
	assert.NotEmpty(t, first.RecurringGroupID)

	// AND the schedule is marked for the run period
	stored, err := m.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGenerated)
	assert.Equal(t, "2025-10", stored.LastGenerated.String())
}

func TestMaterializeIdempotentWithinPeriod(t *testing.T) {
	// GIVEN a schedule already materialized this period
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	require.NoError(t, m.CreateSchedule(context.Background(), weeklySchedule(customer.ID)))

	mat := NewMaterializer(m)
	first := mat.MaterializeNextPeriod(context.Background(), runAt)
	require.Equal(t, 4, first.Generated)

	// WHEN the batch reruns later the same month
	second := mat.MaterializeNextPeriod(context.Background(), runAt.Add(72*time.Hour))

	// THEN nothing new is generated
	assert.True(t, second.Success())
	assert.Equal(t, 0, second.Generated)
}

func TestMaterializeNextMonthGeneratesAgain(t *testing.T) {
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	require.NoError(t, m.CreateSchedule(context.Background(), weeklySchedule(customer.ID)))

	mat := NewMaterializer(m)
	require.Equal(t, 4, mat.MaterializeNextPeriod(context.Background(), runAt).Generated)

	// A November run targets December (5 Wednesdays in Dec 2025, but the
	// 30-day window yields 4 occurrences starting at the anchor).
	report := mat.MaterializeNextPeriod(context.Background(), runAt.AddDate(0, 1, 0))
	assert.True(t, report.Success(), "errors: %v", report.Errors)
	assert.Equal(t, 4, report.Generated)
}

func TestMaterializeScheduleErrorBoundary(t *testing.T) {
	// GIVEN one healthy schedule and one pointing at a missing customer
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	require.NoError(t, m.CreateSchedule(context.Background(), weeklySchedule(customer.ID)))

	orphan := weeklySchedule("cust-gone")
	require.NoError(t, m.CreateSchedule(context.Background(), orphan))

	// WHEN the batch runs
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)

	// THEN the healthy schedule still generated and the failure is reported
	assert.Equal(t, 4, report.Generated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], string(orphan.ID))

	// AND the failing schedule's marker was not advanced, so a later run
	// retries it
	stored, err := m.GetSchedule(context.Background(), orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastGenerated)
}

func TestMaterializeRetriesFailedScheduleAfterFix(t *testing.T) {
	m := memstore.NewMemory()
	orphan := weeklySchedule("cust-late")
	require.NoError(t, m.CreateSchedule(context.Background(), orphan))

	mat := NewMaterializer(m)
	first := mat.MaterializeNextPeriod(context.Background(), runAt)
	require.Len(t, first.Errors, 1)
	require.Equal(t, 0, first.Generated)

	// The customer appears before the next run.
	late := &engine.Customer{ID: "cust-late", FirstName: "Sipho", Email: "sipho@example.com"}
	require.NoError(t, m.CreateCustomer(context.Background(), late))

	second := mat.MaterializeNextPeriod(context.Background(), runAt.Add(time.Hour))
	assert.True(t, second.Success(), "errors: %v", second.Errors)
	assert.Equal(t, 4, second.Generated)
}

func TestMaterializeReusesCleanerPreference(t *testing.T) {
	// GIVEN a prior recurring booking with a preferred cleaner at the
	// same address and frequency
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	sched := weeklySchedule(customer.ID)
	require.NoError(t, m.CreateSchedule(context.Background(), sched))

	prior := &engine.Booking{
		Service:           engine.ServiceStandard,
		Frequency:         engine.FreqWeekly,
		Detail:            engine.RoomDetail{Bedrooms: 2, Bathrooms: 1},
		ScheduledDate:     engine.NewDate(2025, time.October, 1),
		Address:           sched.Address,
		Email:             customer.Email,
		CleanerPreference: "cleaner-42",
		IsRecurring:       true,
		CreatedAt:         runAt.AddDate(0, -1, 0),
	}
	require.NoError(t, m.CreateBooking(context.Background(), prior))

	// WHEN the batch runs
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)
	require.True(t, report.Success(), "errors: %v", report.Errors)

	// THEN the generated group carries the preference forward (the prior
	// booking has no group id, so the templates are all freshly generated)
	templates, err := m.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "cleaner-42", templates[0].CleanerPreference)
}

func TestMaterializeAssignedCleanerEarnings(t *testing.T) {
	// GIVEN a schedule pinned to an experienced cleaner
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	cleanerID := engine.CleanerID("cleaner-7")
	m.PutCleaner(&engine.Cleaner{ID: cleanerID, Name: "Nomsa", TotalJobs: 80})

	sched := weeklySchedule(customer.ID)
	sched.CleanerID = &cleanerID
	require.NoError(t, m.CreateSchedule(context.Background(), sched))

	// WHEN the batch runs
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)
	require.True(t, report.Success(), "errors: %v", report.Errors)

	// THEN the bookings carry the 70% payout snapshot
	templates, err := m.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)

	b := templates[0]
	require.NotNil(t, b.CleanerID)
	assert.Equal(t, cleanerID, *b.CleanerID)
	require.NotNil(t, b.CleanerEarningsPct)
	assert.True(t, b.CleanerEarningsPct.Equal(engine.NewMoney(0.70)),
		"pct = %s", b.CleanerEarningsPct)
	require.NotNil(t, b.CleanerEarnings)
	assert.True(t, b.CleanerEarnings.IsPositive())
}

func TestMaterializeOperatorOverrides(t *testing.T) {
	// GIVEN a schedule synced from a paid booking with fixed amounts
	m := memstore.NewMemory()
	customer := newCustomer(t, m)
	sched := weeklySchedule(customer.ID)
	total := int64(42500)    // R425.00
	earnings := int64(26000) // R260.00
	sched.TotalAmountMinor = &total
	sched.CleanerEarningsMinor = &earnings
	require.NoError(t, m.CreateSchedule(context.Background(), sched))

	// WHEN the batch runs
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)
	require.True(t, report.Success(), "errors: %v", report.Errors)

	// THEN the stored amounts override the computed ones
	templates, err := m.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)

	b := templates[0]
	assert.True(t, b.Price.Total.Equal(engine.NewMoney(425)), "total = %s", b.Price.Total)
	require.NotNil(t, b.CleanerEarnings)
	assert.True(t, b.CleanerEarnings.Equal(engine.NewMoney(260)), "earnings = %s", b.CleanerEarnings)
}

func TestMaterializeNoActiveSchedules(t *testing.T) {
	m := memstore.NewMemory()
	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)
	assert.True(t, report.Success())
	assert.Equal(t, 0, report.Generated)
	assert.Equal(t, "Generated 0 bookings", report.Message())
}
