package accrual

import (
	"github.com/shopspring/decimal"
	"github.com/warp/staking-engine/generic"
)

const monthsPerYear = 12

// DepreciationMonths is the number of months charged on a sale after
// claimed settled periods. The first (partial) period is free.
func DepreciationMonths(claimed int) int {
	if claimed < 1 {
		return 0
	}
	return claimed - 1
}

// Depreciate returns principal - floor(principal * yearRate * months / 12 / 10000).
func Depreciate(principal generic.Amount, yearRate generic.BasisPoints, months int) (generic.Amount, error) {
	cut, err := principal.MulDiv(
		decimal.NewFromInt(int64(yearRate)*int64(months)),
		decimal.NewFromInt(monthsPerYear*generic.BasisPointsDenominator),
	)
	if err != nil {
		return generic.Amount{}, err
	}
	return principal.Sub(cut)
}

// FixedReward returns floor(principal * rate * lockYears / 10000).
func FixedReward(principal generic.Amount, rate generic.BasisPoints, lockYears int) (generic.Amount, error) {
	return principal.MulDiv(
		decimal.NewFromInt(int64(rate)*int64(lockYears)),
		decimal.NewFromInt(generic.BasisPointsDenominator),
	)
}
