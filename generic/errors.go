/*
errors.go - Centralized error types for the staking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Strategy packages return these (or structured errors wrapping them)
  so callers can match with errors.Is regardless of the strategy.

ERROR CATEGORIES:
  1. Eligibility errors - Time gates (lock, claim schedule)
  2. Accounting errors - Ledger ordering, empty pools, arithmetic
  3. Position errors - Unknown, sold or foreign positions
  4. Collaborator errors - Treasury, configuration

USAGE:
  receipt, err := strategy.Claim(ctx, req)
  if errors.Is(err, generic.ErrNotYetEligible) {
      // RewardsNotReady or CannotSellYet
  }

SEE ALSO:
  - ledger.go: Ledger ordering errors
  - api/handlers.go: Maps codes to HTTP statuses
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotYetEligible is the parent of every time-gate failure.
	ErrNotYetEligible = errors.New("not yet eligible")

	// ErrRewardsNotReady is returned when a fixed-term claim precedes lock expiry.
	ErrRewardsNotReady = fmt.Errorf("rewards not ready: %w", ErrNotYetEligible)

	// ErrCannotSellYet is returned when a sale precedes the lock minimum or
	// elapsed periods are still unclaimed.
	ErrCannotSellYet = fmt.Errorf("cannot sell yet: %w", ErrNotYetEligible)

	// ErrAlreadyClaimed is returned on a second fixed-term claim.
	ErrAlreadyClaimed = errors.New("rewards already claimed")

	// ErrNoRewardsYet is returned when no period became claimable since the last claim.
	ErrNoRewardsYet = errors.New("no rewards yet")

	// ErrNoDeposits is returned when a pool share is computed over zero deposits.
	ErrNoDeposits = errors.New("no deposits in period")

	// ErrSlippageExceeded is returned when the converted payout is below the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrInvalidPosition is returned for unknown or sold positions.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrPeriodNotClosed is returned when earnings are set for a period the
	// ledger pointer has not moved past.
	ErrPeriodNotClosed = errors.New("period not closed")

	// ErrPeriodAlreadySettled is returned when a frozen period would change.
	ErrPeriodAlreadySettled = errors.New("period already settled")

	// ErrArithmeticFault is returned on overflow, underflow or division by zero.
	ErrArithmeticFault = errors.New("arithmetic fault")

	ErrUnauthorized         = errors.New("caller is not an operator")
	ErrNotOwner             = errors.New("caller does not own position")
	ErrPositionExists       = errors.New("position already staked")
	ErrStrategyNotFound     = errors.New("strategy not found")
	ErrItemNotFound         = errors.New("item not found")
	ErrTokenNotSupported    = errors.New("token not supported")
	ErrInsufficientReserves = errors.New("insufficient treasury reserves")
	ErrInvalidConfig        = errors.New("invalid strategy config")
	ErrConfigChanged        = errors.New("strategy config is immutable")

	// ErrCommitFailed is returned when a transaction callback succeeded but
	// the commit did not. Side effects of the callback, such as a treasury
	// transfer, may already have happened.
	ErrCommitFailed = errors.New("transaction commit failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EligibilityError reports a time gate and when it opens.
type EligibilityError struct {
	Key        PositionKey
	Reason     error // ErrRewardsNotReady or ErrCannotSellYet
	EligibleAt time.Time
	Detail     string
}

func (e *EligibilityError) Error() string {
	msg := fmt.Sprintf("%v for %s", e.Reason, e.Key)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if !e.EligibleAt.IsZero() {
		msg += " (eligible at " + e.EligibleAt.Format(time.RFC3339) + ")"
	}
	return msg
}

func (e *EligibilityError) Unwrap() error { return e.Reason }

// SlippageError reports the converted amount against the caller's floor.
type SlippageError struct {
	Token  TokenID
	MinOut Amount
	Got    Amount
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage exceeded: %s %s below minimum %s", e.Got.Value, e.Token, e.MinOut.Value)
}

func (e *SlippageError) Unwrap() error { return ErrSlippageExceeded }

// NoDepositsError names the empty period.
type NoDepositsError struct {
	Period Period
}

func (e *NoDepositsError) Error() string {
	return fmt.Sprintf("no deposits in period %s", e.Period)
}

func (e *NoDepositsError) Unwrap() error { return ErrNoDeposits }

// PeriodError reports a ledger ordering violation.
type PeriodError struct {
	Period  Period
	Current Period
	Err     error // ErrPeriodNotClosed or ErrPeriodAlreadySettled
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("%v: period %s (current %s)", e.Err, e.Period, e.Current)
}

func (e *PeriodError) Unwrap() error { return e.Err }

// ArithmeticError reports a checked-arithmetic failure.
type ArithmeticError struct {
	Op     string
	Detail string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic fault in %s: %s", e.Op, e.Detail)
}

func (e *ArithmeticError) Unwrap() error { return ErrArithmeticFault }

// InvalidPositionError names the position and the reason it cannot be used.
type InvalidPositionError struct {
	Key    PositionKey
	Reason string
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %s: %s", e.Key, e.Reason)
}

func (e *InvalidPositionError) Unwrap() error { return ErrInvalidPosition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotYetEligible) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrNoRewardsYet) ||
		errors.Is(err, ErrSlippageExceeded) ||
		errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrPeriodNotClosed) ||
		errors.Is(err, ErrPeriodAlreadySettled) ||
		errors.Is(err, ErrPositionExists) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTokenNotSupported)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStrategyNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true if the error is a state conflict the caller may
// resolve by waiting or acting in a different order.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNotYetEligible) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrNoRewardsYet) ||
		errors.Is(err, ErrPeriodNotClosed) ||
		errors.Is(err, ErrPeriodAlreadySettled) ||
		errors.Is(err, ErrPositionExists) ||
		errors.Is(err, ErrNoDeposits)
}

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRewardsNotReady):
		return "rewards_not_ready"
	case errors.Is(err, ErrCannotSellYet):
		return "cannot_sell_yet"
	case errors.Is(err, ErrNotYetEligible):
		return "not_yet_eligible"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNoRewardsYet):
		return "no_rewards_yet"
	case errors.Is(err, ErrNoDeposits):
		return "no_deposits"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, ErrPeriodNotClosed):
		return "period_not_closed"
	case errors.Is(err, ErrPeriodAlreadySettled):
		return "period_already_settled"
	case errors.Is(err, ErrArithmeticFault):
		return "arithmetic_fault"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrPositionExists):
		return "position_exists"
	case errors.Is(err, ErrStrategyNotFound):
		return "strategy_not_found"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrTokenNotSupported):
		return "token_not_supported"
	case errors.Is(err, ErrInsufficientReserves):
		return "insufficient_reserves"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrConfigChanged):
		return "config_changed"
	case errors.Is(err, ErrCommitFailed):
		return "commit_failed"
	default:
		return "internal"
	}
}
