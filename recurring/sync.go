/*
sync.go - Build schedules from existing recurring bookings

PURPOSE:
  Operators sometimes sell a recurring service before a schedule exists
  for it: the booking flow creates the whole first series up front, and
  only the schedule keeps it going afterwards. Sync walks the first
  booking of every recurring group and creates the missing schedule,
  deriving the anchor from that booking's date and carrying the paid
  total and cleaner payout along as fixed overrides.
*/
package recurring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/casaclean/booking-engine/engine"
)

// SyncReport is the outcome of one sync run.
type SyncReport struct {
	Created int
	Errors  []string
}

func (r SyncReport) Success() bool { return len(r.Errors) == 0 }

type Syncer struct {
	store Store
}

func NewSyncer(store Store) *Syncer {
	return &Syncer{store: store}
}

// Sync creates a schedule for every recurring booking group that lacks
// one. Groups whose customer already has a schedule for the same service
// and frequency are skipped. Per-group error boundary, same as the
// materializer.
func (s *Syncer) Sync(ctx context.Context) SyncReport {
	var report SyncReport

	templates, err := s.store.RecurringGroupTemplates(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to fetch recurring bookings: %v", err))
		return report
	}
	if len(templates) == 0 {
		log.Printf("[Sync] no recurring bookings to sync")
		return report
	}

	existing, err := s.store.ActiveSchedules(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to fetch schedules: %v", err))
		return report
	}

	for _, template := range templates {
		err := s.syncGroup(ctx, template, existing)
		if engine.IsDuplicate(err) {
			continue // schedule already covers this group
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("group %s: %v", template.RecurringGroupID, err))
			continue
		}
		report.Created++
	}

	log.Printf("[Sync] created=%d errors=%d", report.Created, len(report.Errors))
	return report
}

func (s *Syncer) syncGroup(ctx context.Context, template *engine.Booking, existing []*engine.RecurringSchedule) error {
	customer, err := s.store.GetCustomerByEmail(ctx, template.Email)
	if engine.IsNotFound(err) {
		customer = &engine.Customer{
			FirstName: orDefault(template.FirstName, "Unknown"),
			LastName:  orDefault(template.LastName, "Customer"),
			Email:     template.Email,
			Phone:     template.Phone,
		}
		if err := s.store.CreateCustomer(ctx, customer); err != nil {
			return fmt.Errorf("create customer: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("lookup customer: %w", err)
	}

	for _, sched := range existing {
		if sched.CustomerID == customer.ID && sched.Service == template.Service && sched.Frequency == template.Frequency {
			return fmt.Errorf("schedule already exists: %w", engine.ErrDuplicateApplication)
		}
	}

	weekday := template.ScheduledDate.Weekday()
	dayOfMonth := template.ScheduledDate.Day()

	bedrooms, bathrooms := 0, 1
	if d, ok := template.Detail.(engine.RoomDetail); ok {
		bedrooms, bathrooms = d.Bedrooms, d.Bathrooms
	}

	totalMinor := engine.MinorUnits(template.Price.Total)
	sched := engine.RecurringSchedule{
		CustomerID:       customer.ID,
		Service:          template.Service,
		Frequency:        template.Frequency,
		DayOfWeek:        &weekday,
		DayOfMonth:       &dayOfMonth,
		Preferred:        template.ScheduledTime,
		Bedrooms:         bedrooms,
		Bathrooms:        bathrooms,
		Extras:           template.Extras,
		Address:          template.Address,
		CleanerID:        template.CleanerID,
		Notes:            template.SpecialInstructions,
		Active:           true,
		TotalAmountMinor: &totalMinor,
		CreatedAt:        time.Now().UTC(),
	}
	if template.CleanerEarnings != nil {
		earningsMinor := engine.MinorUnits(*template.CleanerEarnings)
		sched.CleanerEarningsMinor = &earningsMinor
	}

	if err := s.store.CreateSchedule(ctx, &sched); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
