package generic

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// POSITION - A staked, time-locked principal
// =============================================================================

// Position is the per-strategy record of a staked item.
//
// INVARIANTS:
//   - Principal and CreatedAt never change after staking.
//   - ClaimedPeriods and TotalWithdrawn only grow.
//   - Sold is terminal: a sold position is never mutated again.
//   - TotalWithdrawn equals the sum of every settled period reward.
type Position struct {
	Strategy  StrategyID
	Key       PositionKey
	Owner     common.Address // owner at stake time; live ownership comes from PositionSource
	Principal Amount
	CreatedAt time.Time

	// Remainder is the share of Principal that belongs to the final partial
	// period. Zero for fixed-term positions and for stakes on the 1st.
	Remainder Amount

	ClaimedPeriods int
	TotalWithdrawn Amount
	Sold           bool
	SoldAt         time.Time
}

// StartPeriod is period index 0.
func (p *Position) StartPeriod() Period { return PeriodOf(p.CreatedAt) }

// PeriodAt returns the calendar period of index i.
func (p *Position) PeriodAt(i int) Period { return p.StartPeriod().Add(i) }

// ElapsedPeriods returns how many periods have fully closed at now.
func (p *Position) ElapsedPeriods(now time.Time) int {
	n := MonthsBetween(p.StartPeriod(), PeriodOf(now))
	if n < 0 {
		return 0
	}
	return n
}

// ClaimTimestamp is the instant n periods have elapsed, i.e. the start of
// period n. Period n-1 becomes claimable at that moment.
func (p *Position) ClaimTimestamp(n int) time.Time {
	return p.PeriodAt(n).Start()
}

// CheckActive fails with InvalidPosition once the position is sold.
func (p *Position) CheckActive() error {
	if p.Sold {
		return &InvalidPositionError{Key: p.Key, Reason: "already sold"}
	}
	return nil
}

// LoadPosition reads a staked position; an unknown key is InvalidPosition.
func LoadPosition(ctx context.Context, st Store, strategy StrategyID, key PositionKey) (*Position, error) {
	pos, err := st.GetPosition(ctx, strategy, key)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, &InvalidPositionError{Key: key, Reason: "not staked"}
	}
	return pos, nil
}

// LoadActivePosition is LoadPosition that also rejects sold positions.
func LoadActivePosition(ctx context.Context, st Store, strategy StrategyID, key PositionKey) (*Position, error) {
	pos, err := LoadPosition(ctx, st, strategy, key)
	if err != nil {
		return nil, err
	}
	if err := pos.CheckActive(); err != nil {
		return nil, err
	}
	return pos, nil
}
