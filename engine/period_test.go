package engine

import (
	"testing"
	"time"
)

func TestPeriodRoundTrip(t *testing.T) {
	p := Period{Year: 2025, Month: time.March}
	if p.String() != "2025-03" {
		t.Errorf("String = %q, want 2025-03", p.String())
	}

	parsed, err := ParsePeriod("2025-03")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if parsed != p {
		t.Errorf("parsed = %v, want %v", parsed, p)
	}

	if _, err := ParsePeriod("March 2025"); err == nil {
		t.Error("ParsePeriod accepted a non-canonical encoding")
	}
}

func TestPeriodYearRollover(t *testing.T) {
	dec := Period{Year: 2025, Month: time.December}
	jan := dec.Next()
	if jan != (Period{Year: 2026, Month: time.January}) {
		t.Errorf("Next = %v, want 2026-01", jan)
	}
	if jan.Previous() != dec {
		t.Errorf("Previous(Next(p)) != p")
	}
}

func TestPeriodOrdering(t *testing.T) {
	a := Period{Year: 2025, Month: time.December}
	b := Period{Year: 2026, Month: time.January}

	if !a.Before(b) || b.Before(a) {
		t.Error("year boundary ordering wrong")
	}
	if !b.After(a) {
		t.Error("After disagrees with Before")
	}
	if a.Before(a) || a.After(a) {
		t.Error("a period compares against itself")
	}
}

func TestPeriodContains(t *testing.T) {
	p := Period{Year: 2025, Month: time.February}

	if !p.Contains(p.Start()) || !p.Contains(p.End()) {
		t.Error("period excludes its own boundary days")
	}
	if p.Contains(NewDate(2025, time.March, 1)) {
		t.Error("period includes the next month's first day")
	}
	if p.Days() != 28 {
		t.Errorf("Days = %d, want 28", p.Days())
	}
}

func TestDaysInMonthDecember(t *testing.T) {
	// The month+1 arithmetic must survive the year boundary.
	if got := DaysInMonth(2025, time.December); got != 31 {
		t.Errorf("DaysInMonth(December) = %d, want 31", got)
	}
	if got := DaysInMonth(2024, time.February); got != 29 {
		t.Errorf("DaysInMonth(leap February) = %d, want 29", got)
	}
}
