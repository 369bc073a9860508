/*
Package recurring turns standing schedules into concrete bookings.

PURPOSE:
  The Materializer is the batch half of the engine: once per generation
  period it walks every active schedule, expands the next period's
  occurrence dates, prices each occurrence, and persists the bookings
  as a linked recurring group.

IDEMPOTENCY:
  Each schedule carries a last-generated Period marker. A run targets
  the period containing "now"; schedules already marked for it are
  skipped, so re-running the batch (cron overlap, manual retrigger) is
  safe. The marker is only advanced after every booking of the schedule
  persisted.

FAILURE POLICY:
  Schedules are processed sequentially, each inside its own error
  boundary. A missing customer, pricing failure, or persistence error
  is recorded against that schedule and the loop continues - the batch
  never aborts early.

SEE ALSO:
  - engine/expand.go: Date expansion and period anchoring
  - sync.go: Builds schedules from existing recurring bookings
*/
package recurring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/casaclean/booking-engine/engine"
)

// Store is the persistence surface the materializer needs.
type Store interface {
	engine.ScheduleStore
	engine.BookingStore
	engine.CustomerStore
	engine.CleanerStore
	engine.SettingsStore
}

// Report is the outcome of one materialization run. The batch always
// completes; Errors carries the per-schedule failures.
type Report struct {
	Generated int
	Errors    []string
}

// Success reports whether the run completed without per-schedule errors.
func (r Report) Success() bool { return len(r.Errors) == 0 }

// Message renders the human-readable summary the batch endpoint returns.
func (r Report) Message() string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("Generated %d bookings", r.Generated)
	}
	return fmt.Sprintf("Generated %d bookings, %d errors occurred", r.Generated, len(r.Errors))
}

type Materializer struct {
	store Store
}

func NewMaterializer(store Store) *Materializer {
	return &Materializer{store: store}
}

// MaterializeNextPeriod generates next month's bookings for every active
// schedule not yet generated in the current period. The marker period is
// the one containing now; the bookings land in the following month.
func (m *Materializer) MaterializeNextPeriod(ctx context.Context, now time.Time) Report {
	var report Report

	markerPeriod := engine.PeriodOf(now)
	targetPeriod := markerPeriod.Next()

	schedules, err := m.store.ActiveSchedules(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to fetch schedules: %v", err))
		return report
	}
	if len(schedules) == 0 {
		log.Printf("[Materializer] no active schedules")
		return report
	}

	pricingCfg, err := m.store.PricingConfig(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to load pricing config: %v", err))
		return report
	}
	earningsCfg, err := m.store.EarningsConfig(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to load earnings config: %v", err))
		return report
	}

	for _, sched := range schedules {
		// Already generated for this period.
		if sched.LastGenerated != nil && !sched.LastGenerated.Before(markerPeriod) {
			continue
		}

		generated, err := m.materializeSchedule(ctx, sched, targetPeriod, pricingCfg, earningsCfg)
		report.Generated += generated
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}

		if err := m.store.MarkGenerated(ctx, sched.ID, markerPeriod); err != nil {
			report.Errors = append(report.Errors, (&engine.ScheduleError{ScheduleID: sched.ID, Err: err}).Error())
		}
	}

	log.Printf("[Materializer] period %s: generated=%d errors=%d",
		markerPeriod, report.Generated, len(report.Errors))
	return report
}

// materializeSchedule generates one schedule's bookings for the target
// period. Returns how many bookings persisted; a non-nil error means the
// schedule should be retried next run (its marker is not advanced).
func (m *Materializer) materializeSchedule(ctx context.Context, sched *engine.RecurringSchedule, target engine.Period, pricingCfg engine.PricingConfig, earningsCfg engine.EarningsConfig) (int, error) {
	fail := func(err error) (int, error) {
		return 0, &engine.ScheduleError{ScheduleID: sched.ID, Err: err}
	}

	customer, err := m.store.GetCustomer(ctx, sched.CustomerID)
	if err != nil {
		return fail(fmt.Errorf("customer %s: %w", sched.CustomerID, err))
	}

	dates, err := engine.OccurrencesInPeriod(sched, target)
	if err != nil {
		return fail(err)
	}
	if len(dates) == 0 {
		return 0, nil
	}

	// Reuse the cleaner preference from the customer's most recent
	// recurring booking at this address, unless the schedule pins one.
	cleanerPreference := "no-preference"
	if prior, err := m.store.LatestRecurringBooking(ctx, engine.LatestRecurringQuery{
		Email:     customer.Email,
		Street:    sched.Address.Street,
		Frequency: sched.Frequency,
	}); err == nil && prior.CleanerPreference != "" {
		cleanerPreference = prior.CleanerPreference
	}

	detail := engine.RoomDetail{Bedrooms: sched.Bedrooms, Bathrooms: sched.Bathrooms}
	price := engine.CalculatePrice(engine.PriceRequest{
		Service:   sched.Service,
		Detail:    detail,
		Extras:    sched.Extras,
		Frequency: sched.Frequency,
	}, pricingCfg)

	booking := engine.Booking{
		Service:             sched.Service,
		Frequency:           sched.Frequency,
		Detail:              detail,
		Extras:              sched.Extras,
		ScheduledTime:       sched.Preferred,
		Address:             sched.Address,
		FirstName:           customer.FirstName,
		LastName:            customer.LastName,
		Email:               customer.Email,
		Phone:               customer.Phone,
		CleanerPreference:   cleanerPreference,
		Status:              engine.BookingPending,
		PaymentStatus:       engine.PaymentPending,
		Price:               price,
		IsRecurring:         true,
		SpecialInstructions: sched.Notes,
		CreatedAt:           time.Now().UTC(),
	}

	if sched.CleanerID != nil {
		cleaner, err := m.store.GetCleaner(ctx, *sched.CleanerID)
		if err != nil {
			return fail(fmt.Errorf("cleaner %s: %w", *sched.CleanerID, err))
		}
		earnings := engine.CalculateEarnings(price, cleaner.TotalJobs, earningsCfg)
		booking.CleanerID = sched.CleanerID
		booking.CleanerPreference = string(cleaner.ID)
		booking.CleanerEarnings = &earnings.Amount
		booking.CleanerEarningsPct = &earnings.Percentage
	} else if sched.CleanerEarningsMinor != nil {
		stored := engine.MoneyFromMinorUnits(*sched.CleanerEarningsMinor)
		booking.CleanerEarnings = &stored
	}

	// Operator-fixed total takes precedence over the computed one.
	if sched.TotalAmountMinor != nil {
		booking.Price.Total = engine.MoneyFromMinorUnits(*sched.TotalAmountMinor)
	}

	groupID := engine.NewRecurringGroupID()
	generated := 0
	for i, date := range dates {
		b := booking
		b.ID = ""
		b.Reference = ""
		b.ScheduledDate = date
		b.RecurringGroupID = groupID
		seq := i
		b.RecurringSequence = &seq

		if err := m.store.CreateBooking(ctx, &b); err != nil {
			return generated, &engine.ScheduleError{
				ScheduleID: sched.ID,
				Err:        fmt.Errorf("save booking for %s: %w", date, err),
			}
		}
		generated++
	}

	return generated, nil
}
