package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - One calendar month (UTC)
// =============================================================================

// Period is a calendar month. Deposits and earnings are bucketed per period,
// and a position's period index i is the month createdMonth+i.
//
// Examples:
//   - Stake on 2025-01-15: period 0 is 2025-01, period 2 is 2025-03
//   - ClaimTimestamp(n) is the first instant of period n
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Year: u.Year(), Month: u.Month()}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

func (p Period) ordinal() int { return p.Year*12 + int(p.Month) - 1 }

func periodFromOrdinal(n int) Period {
	return Period{Year: n / 12, Month: time.Month(n%12 + 1)}
}

// Add returns the period n months later (n may be negative).
func (p Period) Add(n int) Period     { return periodFromOrdinal(p.ordinal() + n) }
func (p Period) Next() Period         { return p.Add(1) }
func (p Period) IsZero() bool         { return p.Year == 0 && p.Month == 0 }
func (p Period) Before(o Period) bool { return p.ordinal() < o.ordinal() }
func (p Period) After(o Period) bool  { return p.ordinal() > o.ordinal() }
func (p Period) Equal(o Period) bool  { return p.ordinal() == o.ordinal() }

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following period.
func (p Period) End() time.Time { return p.Next().Start() }

// Days returns the number of days in the month.
func (p Period) Days() int { return DaysInMonth(p.Year, p.Month) }

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MonthsBetween returns the number of period boundaries crossed from a to b.
func MonthsBetween(a, b Period) int {
	return b.ordinal() - a.ordinal()
}
