/*
ledger.go - Per-period deposits and earnings

PURPOSE:
  The PeriodLedger tracks, for every calendar period of a strategy, the
  total principal participating in the pool (deposits) and the earnings the
  operator reported for it. A position's pool-phase reward for a period is
  its share of that period's earnings, proportional to its contribution to
  that period's deposits.

CRITICAL INVARIANTS:
  1. ORDERED: periods close in calendar order as the pointer advances
  2. FROZEN DEPOSITS: deposits of a closed period never change
  3. EARNINGS AFTER CLOSE: earnings are only set for closed periods
  4. READ-ONCE EARNINGS: once a claim has read a period's pool, its
     earnings can no longer be rewritten

OPERATOR FLOW (monthly):
  1. UpdateDeposits -> AdvanceTo(now): closes the finished period
  2. SetEarnings(previous period, amount)
  3. Holders claim; claims read deposits and earnings and mark the
     period settled

EXAMPLE:
  Period 2025-03, deposits 3000 USD, earnings 60 USD.
  A position contributing 1000 USD receives floor(1000*60/3000) = 20 USD.

SEE ALSO:
  - store.go: PeriodRecord persistence
  - accrual/schedule.go: Which principal a position contributes per period
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// POOL - Deposits and earnings of one period
// =============================================================================

// Pool is the read-side view of a period used for proportional rewards.
type Pool struct {
	Period   Period
	Deposits Amount
	Earnings Amount
}

// Share returns floor(principal * earnings / deposits).
// Zero earnings yield zero; zero deposits fail with NoDeposits.
func (p Pool) Share(principal Amount) (Amount, error) {
	if principal.IsZero() {
		return principal.Zero(), nil
	}
	if p.Deposits.IsZero() {
		return Amount{}, &NoDepositsError{Period: p.Period}
	}
	if p.Earnings.IsZero() {
		return principal.Zero(), nil
	}
	return principal.MulDiv(p.Earnings.Value, p.Deposits.Value)
}

// =============================================================================
// PERIOD LEDGER
// =============================================================================

// PeriodLedger is the ledger of one strategy over a Store. Construct one per
// transaction with the Store handed to WithTx.
type PeriodLedger struct {
	store    Store
	strategy StrategyID
}

func NewPeriodLedger(store Store, strategy StrategyID) *PeriodLedger {
	return &PeriodLedger{store: store, strategy: strategy}
}

// Current returns the ledger pointer; ok is false before the first advance.
func (l *PeriodLedger) Current(ctx context.Context) (Period, bool, error) {
	return l.store.GetCursor(ctx, l.strategy)
}

// AdvanceTo moves the pointer to the period containing now and closes every
// period it passes. Moving backwards is a no-op.
func (l *PeriodLedger) AdvanceTo(ctx context.Context, now time.Time) (Period, error) {
	target := PeriodOf(now)
	cur, ok, err := l.store.GetCursor(ctx, l.strategy)
	if err != nil {
		return Period{}, err
	}
	if ok && !target.After(cur) {
		return cur, nil
	}
	if ok {
		for p := cur; p.Before(target); p = p.Next() {
			rec, err := l.load(ctx, p)
			if err != nil {
				return Period{}, err
			}
			if rec.Closed {
				continue
			}
			rec.Closed = true
			if err := l.store.SavePeriod(ctx, rec); err != nil {
				return Period{}, err
			}
		}
	}
	if err := l.store.SaveCursor(ctx, l.strategy, target); err != nil {
		return Period{}, err
	}
	return target, nil
}

// RecordDeposit adds delta (possibly negative) to the deposits of p.
func (l *PeriodLedger) RecordDeposit(ctx context.Context, p Period, delta Amount) error {
	cur, ok, err := l.store.GetCursor(ctx, l.strategy)
	if err != nil {
		return err
	}
	if ok && p.Before(cur) {
		return &PeriodError{Period: p, Current: cur, Err: ErrPeriodAlreadySettled}
	}
	rec, err := l.load(ctx, p)
	if err != nil {
		return err
	}
	total, err := rec.Deposits.Add(delta)
	if err != nil {
		return err
	}
	if total.IsNegative() {
		return &ArithmeticError{Op: "deposits", Detail: "period " + p.String() + " would go negative"}
	}
	rec.Deposits = total
	return l.store.SavePeriod(ctx, rec)
}

// SetEarnings records the earnings of a closed period.
// Rewriting a period a claim has already read fails, unless the value is unchanged.
func (l *PeriodLedger) SetEarnings(ctx context.Context, p Period, amount Amount) error {
	cur, ok, err := l.store.GetCursor(ctx, l.strategy)
	if err != nil {
		return err
	}
	if !ok || !p.Before(cur) {
		return &PeriodError{Period: p, Current: cur, Err: ErrPeriodNotClosed}
	}
	if amount.IsNegative() {
		return &ArithmeticError{Op: "earnings", Detail: "negative amount"}
	}
	rec, err := l.load(ctx, p)
	if err != nil {
		return err
	}
	if rec.Settled {
		if rec.EarningsSet && rec.Earnings.Equal(amount) {
			return nil
		}
		return &PeriodError{Period: p, Current: cur, Err: ErrPeriodAlreadySettled}
	}
	rec.Earnings = Amount{Value: amount.Value, Unit: UnitUSD}
	rec.EarningsSet = true
	rec.Closed = true
	return l.store.SavePeriod(ctx, rec)
}

// DepositsFor returns the deposits of p (zero if never touched).
func (l *PeriodLedger) DepositsFor(ctx context.Context, p Period) (Amount, error) {
	rec, err := l.load(ctx, p)
	if err != nil {
		return Amount{}, err
	}
	return rec.Deposits, nil
}

// EarningsFor returns the earnings of p (zero if not set).
func (l *PeriodLedger) EarningsFor(ctx context.Context, p Period) (Amount, error) {
	rec, err := l.load(ctx, p)
	if err != nil {
		return Amount{}, err
	}
	return rec.Earnings, nil
}

// PoolFor returns deposits and earnings of p.
func (l *PeriodLedger) PoolFor(ctx context.Context, p Period) (Pool, error) {
	rec, err := l.load(ctx, p)
	if err != nil {
		return Pool{}, err
	}
	return Pool{Period: p, Deposits: rec.Deposits, Earnings: rec.Earnings}, nil
}

// State returns the full record of p.
func (l *PeriodLedger) State(ctx context.Context, p Period) (PeriodRecord, error) {
	return l.load(ctx, p)
}

// MarkSettled records that a claim consumed the published pool of p. A
// period whose earnings are unset stays open for SetEarnings.
func (l *PeriodLedger) MarkSettled(ctx context.Context, p Period) error {
	rec, err := l.load(ctx, p)
	if err != nil {
		return err
	}
	if rec.Settled || !rec.EarningsSet {
		return nil
	}
	rec.Settled = true
	return l.store.SavePeriod(ctx, rec)
}

func (l *PeriodLedger) load(ctx context.Context, p Period) (PeriodRecord, error) {
	rec, err := l.store.GetPeriod(ctx, l.strategy, p)
	if err != nil {
		return PeriodRecord{}, err
	}
	if rec == nil {
		return NewPeriodRecord(l.strategy, p), nil
	}
	return *rec, nil
}
