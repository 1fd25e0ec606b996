package flex

import (
	"fmt"

	"github.com/warp/staking-engine/accrual"
	"github.com/warp/staking-engine/generic"
)

// Config is the immutable configuration of a flexible strategy.
type Config struct {
	ID                  generic.StrategyID
	Name                string
	InitialMonths       int
	InitialRewardsRate  generic.BasisPoints
	MinMonths           int
	MaxMonths           int
	YearDeprecationRate generic.BasisPoints
}

func (c Config) Schedule() accrual.Schedule {
	return accrual.Schedule{
		InitialMonths: c.InitialMonths,
		InitialRate:   c.InitialRewardsRate,
		MinMonths:     c.MinMonths,
		MaxMonths:     c.MaxMonths,
	}
}

// Validate checks the timeline is well formed: the overlap period sits
// strictly before the last period and a full-term sale never depreciates
// below zero.
func (c Config) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing id", generic.ErrInvalidConfig)
	case c.InitialMonths < 1:
		return fmt.Errorf("%w: initial_months must be at least 1", generic.ErrInvalidConfig)
	case c.InitialMonths+1 >= c.MaxMonths:
		return fmt.Errorf("%w: initial_months must be below max_months-1", generic.ErrInvalidConfig)
	case c.MinMonths < 1 || c.MinMonths > c.MaxMonths:
		return fmt.Errorf("%w: min_months must be within [1, max_months]", generic.ErrInvalidConfig)
	case c.InitialRewardsRate < 0 || c.YearDeprecationRate < 0:
		return fmt.Errorf("%w: rates must not be negative", generic.ErrInvalidConfig)
	case int64(c.YearDeprecationRate)*int64(c.MaxMonths) > 12*generic.BasisPointsDenominator:
		return fmt.Errorf("%w: depreciation exceeds principal within max_months", generic.ErrInvalidConfig)
	}
	return nil
}
