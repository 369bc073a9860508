/*
period.go - Generation period value type

PURPOSE:
  A Period is one calendar month: the unit of recurring booking generation.
  Every recurring schedule carries a "last generated" Period marker, and a
  materializer run for a period is idempotent - re-running for the same
  period generates nothing new.

WHY A TYPE AND NOT A STRING:
  The marker could be (and in older data was) a "YYYY-MM" string. A string
  key invites format drift between the code that writes it and the code
  that compares it. Period has a single canonical encoding and a defined
  ordering, so the monotonicity invariant on the marker is checkable.

SEE ALSO:
  - expand.go: Expands occurrence dates within a period
  - recurring/materializer.go: Uses Period as its idempotency marker
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - One calendar month of booking generation
// =============================================================================

type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// PeriodOfDate returns the period containing the given date.
func PeriodOfDate(d Date) Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// ParsePeriod parses the canonical YYYY-MM encoding.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// String returns the canonical YYYY-MM encoding.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) IsZero() bool { return p.Year == 0 }

// Next returns the following month, handling year rollover.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Previous returns the preceding month.
func (p Period) Previous() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Comparison. Periods are totally ordered by (year, month).
func (p Period) Equal(other Period) bool { return p == other }

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) After(other Period) bool { return other.Before(p) }

// Start returns the first day of the period.
func (p Period) Start() Date { return StartOfMonth(p.Year, p.Month) }

// End returns the last day of the period.
func (p Period) End() Date { return EndOfMonth(p.Year, p.Month) }

// Contains returns true if the date falls inside the period.
func (p Period) Contains(d Date) bool {
	return PeriodOfDate(d) == p
}

// Days returns the number of days in the period.
func (p Period) Days() int { return DaysInMonth(p.Year, p.Month) }
