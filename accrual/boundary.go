/*
Package accrual holds the pure reward math shared by the staking strategies.

PURPOSE:
  Given a position's principal, its creation time and a period index, the
  functions here decide how much principal is "effective" in that period,
  what it earns, and what a sale returns. Nothing in this package reads a
  clock or a store: callers pass time, pools and counters explicitly, which
  keeps every result reproducible in tests.

BOUNDARY ALLOCATION:
  A position created mid-month earns for a partial first period and, to
  stay whole over the lock, for a matching partial last period. The
  remainder R is the share of the principal assigned to that last period:

    R = floor(P * (d - 1) / D)     d = day of month, D = days in month

  The first period then runs on P - R. A stake on the 1st has R = 0.

SEE ALSO:
  - schedule.go: Per-period branch table
  - depreciation.go: Sale value and fixed-term reward
*/
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/staking-engine/generic"
)

// Remainder computes the final-partial-period share of principal for a
// position created at createdAt.
func Remainder(principal generic.Amount, createdAt time.Time) (generic.Amount, error) {
	t := createdAt.UTC()
	days := generic.DaysInMonth(t.Year(), t.Month())
	return principal.MulDiv(decimal.NewFromInt(int64(t.Day()-1)), decimal.NewFromInt(int64(days)))
}
