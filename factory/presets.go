package factory

import "fmt"

// =============================================================================
// PRESETS - Strategies as deployed
// =============================================================================

// FixedStrategyJSON returns a fixed-term strategy definition.
func FixedStrategyJSON(id, name string, lockYears int, rewardsRateBp int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"kind": "fixed",
		"rewards_rate_bp": %d,
		"lock_years": %d
	}`, id, name, rewardsRateBp, lockYears)
}

// FlexibleStrategyJSON returns a flexible strategy definition.
func FlexibleStrategyJSON(id, name string, initialMonths int, initialRateBp int64,
	minMonths, maxMonths int, yearDeprecationBp int64) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"kind": "flexible",
		"initial_months": %d,
		"initial_rewards_rate_bp": %d,
		"min_months": %d,
		"max_months": %d,
		"year_deprecation_rate_bp": %d
	}`, id, name, initialMonths, initialRateBp, minMonths, maxMonths, yearDeprecationBp)
}

// FiveYearsFixedJSON locks for five years at 15% per year, paid at unlock.
func FiveYearsFixedJSON(id, name string) string {
	return FixedStrategyJSON(id, name, 5, 1500)
}

// FiveYearsFlexibleJSON bootstraps two months at 1%, then follows the pool
// for up to five years. Sellable after a year, depreciating 10% per year.
func FiveYearsFlexibleJSON(id, name string) string {
	return FlexibleStrategyJSON(id, name, 2, 100, 12, 60, 1000)
}
