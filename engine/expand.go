/*
expand.go - Recurring date expansion

PURPOSE:
  Pure calendar arithmetic for recurring schedules: expands a frequency
  and a start date into the ordered occurrence dates of a span, and
  computes the anchor date a schedule resolves to inside a target
  period.

OCCURRENCE COUNTS:
  A span of N months is approximated as N*30 days. Weekly yields
  floor(days/7) occurrences stepping 7 days, bi-weekly floor(days/14)
  stepping 14, monthly exactly N anchored to the start's day of month.
  Monthly days past the end of a shorter month clamp to its last day
  (day 31 in February lands on the 28th or 29th).

SEE ALSO:
  - period.go: The Period value type anchors resolve against
  - recurring/materializer.go: Expands one period per run
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// SERIES EXPANSION
// =============================================================================

// ExpandDates returns the ordered occurrence dates for a recurring
// frequency starting at start and spanning the given number of months.
// The result is strictly increasing with no duplicates. A zero span
// yields an empty result; a non-recurring or unknown frequency is a
// caller contract violation and fails fast.
func ExpandDates(frequency Frequency, start Date, months int) ([]Date, error) {
	if months < 0 {
		return nil, &ValidationError{Field: "months", Message: fmt.Sprintf("negative span %d", months)}
	}

	days := months * 30

	switch frequency {
	case FreqWeekly:
		return stepDates(start, 7, days/7), nil
	case FreqBiWeekly:
		return stepDates(start, 14, days/14), nil
	case FreqMonthly:
		dates := make([]Date, 0, months)
		period := Period{Year: start.Year(), Month: start.Month()}
		for i := 0; i < months; i++ {
			dates = append(dates, AnchorDayOfMonth(period, start.Day()))
			period = period.Next()
		}
		return dates, nil
	default:
		return nil, &ValidationError{Field: "frequency", Message: fmt.Sprintf("cannot expand frequency %q", frequency)}
	}
}

func stepDates(start Date, step, count int) []Date {
	dates := make([]Date, 0, count)
	for i := 0; i < count; i++ {
		dates = append(dates, start.AddDays(i*step))
	}
	return dates
}

// =============================================================================
// PERIOD ANCHORING
// =============================================================================

// AnchorDayOfWeek returns the first occurrence of the target weekday on or
// after the first day of the period.
func AnchorDayOfWeek(p Period, target time.Weekday) Date {
	first := p.Start()
	offset := (int(target) - int(first.Weekday()) + 7) % 7
	return first.AddDays(offset)
}

// AnchorDayOfMonth returns the given day of month inside the period,
// clamped to the period's last day when the month is shorter.
func AnchorDayOfMonth(p Period, day int) Date {
	if last := p.Days(); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return NewDate(p.Year, p.Month, day)
}

// AnchorForSchedule resolves a schedule's anchor rule to its first
// occurrence date inside the target period.
func AnchorForSchedule(s *RecurringSchedule, p Period) (Date, error) {
	weekday, dayOfMonth, err := s.Anchor()
	if err != nil {
		return Date{}, err
	}
	if weekday != nil {
		return AnchorDayOfWeek(p, *weekday), nil
	}
	return AnchorDayOfMonth(p, *dayOfMonth), nil
}

// OccurrencesInPeriod expands a schedule's occurrence dates inside a single
// period: the anchor date plus the frequency's steps, truncated to dates
// that still fall inside the period.
func OccurrencesInPeriod(s *RecurringSchedule, p Period) ([]Date, error) {
	anchor, err := AnchorForSchedule(s, p)
	if err != nil {
		return nil, err
	}
	expanded, err := ExpandDates(s.Frequency, anchor, 1)
	if err != nil {
		return nil, err
	}
	dates := make([]Date, 0, len(expanded))
	for _, d := range expanded {
		if p.Contains(d) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}
