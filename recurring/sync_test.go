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

func recurringGroup(t *testing.T, m *memstore.Memory, groupID, email string, freq engine.Frequency) *engine.Booking {
	t.Helper()
	seq := 0
	total := engine.NewMoney(382.50)
	b := &engine.Booking{
		Service:           engine.ServiceStandard,
		Frequency:         freq,
		Detail:            engine.RoomDetail{Bedrooms: 3, Bathrooms: 2},
		Extras:            []string{"inside-oven"},
		ScheduledDate:     engine.NewDate(2025, time.October, 8), // a Wednesday
		ScheduledTime:     "10:00",
		Address:           engine.Address{Street: "4 Long St", Suburb: "Gardens", City: "Cape Town"},
		FirstName:         "Lerato",
		LastName:          "Dlamini",
		Email:             email,
		Phone:             "0837654321",
		Status:            engine.BookingConfirmed,
		PaymentStatus:     engine.PaymentCompleted,
		Price:             engine.PriceBreakdown{Total: total},
		IsRecurring:       true,
		RecurringGroupID:  groupID,
		RecurringSequence: &seq,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, m.CreateBooking(context.Background(), b))
	return b
}

func TestSyncCreatesScheduleFromGroup(t *testing.T) {
	// GIVEN a recurring booking group with no schedule behind it
	m := memstore.NewMemory()
	template := recurringGroup(t, m, "REC-1", "lerato@example.com", engine.FreqWeekly)

	// WHEN sync runs
	report := NewSyncer(m).Sync(context.Background())

	// THEN one schedule exists, anchored to the template's date
	require.True(t, report.Success(), "errors: %v", report.Errors)
	assert.Equal(t, 1, report.Created)

	schedules, err := m.ActiveSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, schedules, 1)

	sched := schedules[0]
	assert.Equal(t, engine.FreqWeekly, sched.Frequency)
	require.NotNil(t, sched.DayOfWeek)
	assert.Equal(t, time.Wednesday, *sched.DayOfWeek)
	require.NotNil(t, sched.DayOfMonth)
	assert.Equal(t, 8, *sched.DayOfMonth)
	assert.Equal(t, 3, sched.Bedrooms)
	assert.Equal(t, 2, sched.Bathrooms)
	assert.Equal(t, "10:00", sched.Preferred)
	assert.Equal(t, template.Address, sched.Address)

	// AND the paid total travels along as a fixed override
	require.NotNil(t, sched.TotalAmountMinor)
	assert.Equal(t, int64(38250), *sched.TotalAmountMinor)

	// AND the unknown customer was created from the booking contact
	customer, err := m.GetCustomerByEmail(context.Background(), template.Email)
	require.NoError(t, err)
	assert.Equal(t, "Lerato", customer.FirstName)
	assert.Equal(t, customer.ID, sched.CustomerID)
}

func TestSyncSkipsGroupsWithExistingSchedule(t *testing.T) {
	// GIVEN a group already covered by a schedule
	m := memstore.NewMemory()
	recurringGroup(t, m, "REC-1", "lerato@example.com", engine.FreqWeekly)

	syncer := NewSyncer(m)
	first := syncer.Sync(context.Background())
	require.Equal(t, 1, first.Created)

	// WHEN sync runs again
	second := syncer.Sync(context.Background())

	// THEN the duplicate is skipped silently
	assert.True(t, second.Success(), "errors: %v", second.Errors)
	assert.Equal(t, 0, second.Created)

	schedules, err := m.ActiveSchedules(context.Background())
	require.NoError(t, err)
	assert.Len(t, schedules, 1)
}

func TestSyncSeparateFrequenciesGetSeparateSchedules(t *testing.T) {
	// Same customer, weekly and monthly groups: both deserve a schedule.
	m := memstore.NewMemory()
	recurringGroup(t, m, "REC-1", "lerato@example.com", engine.FreqWeekly)
	recurringGroup(t, m, "REC-2", "lerato@example.com", engine.FreqMonthly)

	report := NewSyncer(m).Sync(context.Background())
	require.True(t, report.Success(), "errors: %v", report.Errors)
	assert.Equal(t, 2, report.Created)
}

func TestSyncCarriesCleanerEarningsOverride(t *testing.T) {
	// GIVEN a template booking with a fixed cleaner payout
	m := memstore.NewMemory()
	seq := 0
	earnings := engine.NewMoney(229.50)
	require.NoError(t, m.CreateBooking(context.Background(), &engine.Booking{
		Service:           engine.ServiceStandard,
		Frequency:         engine.FreqBiWeekly,
		Detail:            engine.RoomDetail{Bedrooms: 2, Bathrooms: 1},
		ScheduledDate:     engine.NewDate(2025, time.October, 10),
		Email:             "sipho@example.com",
		Price:             engine.PriceBreakdown{Total: engine.NewMoney(420)},
		CleanerEarnings:   &earnings,
		IsRecurring:       true,
		RecurringGroupID:  "REC-9",
		RecurringSequence: &seq,
	}))

	report := NewSyncer(m).Sync(context.Background())
	require.True(t, report.Success(), "errors: %v", report.Errors)

	schedules, err := m.ActiveSchedules(context.Background())
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	require.NotNil(t, schedules[0].CleanerEarningsMinor)
	assert.Equal(t, int64(22950), *schedules[0].CleanerEarningsMinor)
}

func TestSyncNothingToDo(t *testing.T) {
	m := memstore.NewMemory()
	report := NewSyncer(m).Sync(context.Background())
	assert.True(t, report.Success())
	assert.Equal(t, 0, report.Created)
}

func TestSyncedScheduleMaterializes(t *testing.T) {
	// The full loop: a sold recurring series syncs into a schedule, and
	// the next batch run extends it with the fixed total intact.
	m := memstore.NewMemory()
	recurringGroup(t, m, "REC-1", "lerato@example.com", engine.FreqWeekly)

	require.Equal(t, 1, NewSyncer(m).Sync(context.Background()).Created)

	report := NewMaterializer(m).MaterializeNextPeriod(context.Background(), runAt)
	require.True(t, report.Success(), "errors: %v", report.Errors)
	assert.Equal(t, 4, report.Generated)

	templates, err := m.RecurringGroupTemplates(context.Background())
	require.NoError(t, err)
	// Original group plus the freshly generated one.
	require.Len(t, templates, 2)
	for _, b := range templates {
		assert.True(t, b.Price.Total.Equal(engine.NewMoney(382.50)),
			"group %s total = %s", b.RecurringGroupID, b.Price.Total)
	}
}
