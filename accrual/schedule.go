package accrual

import (
	"github.com/warp/staking-engine/generic"
)

// =============================================================================
// SCHEDULE - Per-period reward branch table
// =============================================================================

// Schedule is the flexible strategy's reward timeline.
//
// Period index i of a position covers calendar month createdMonth+i.
//
//	i:          0      1 .. k-1    k          k+1 .. M-2    M-1    >= M
//	initial:    P-R    P           R          -             -      -
//	pool:       -      -           P-R        P             R      -
//
// k = InitialMonths, M = MaxMonths. Index k belongs to both phases: the
// fixed rate pays on R while the pool pays on P-R.
type Schedule struct {
	InitialMonths int
	InitialRate   generic.BasisPoints
	MinMonths     int
	MaxMonths     int
}

// Reward is the breakdown of one period's reward.
type Reward struct {
	Index        int
	Initial      generic.Amount
	Proportional generic.Amount
	Total        generic.Amount
	UsesPool     bool
}

// InitialPrincipal returns the principal earning the fixed initial rate in
// period i, and whether i is in the initial phase at all.
func (s Schedule) InitialPrincipal(i int, principal, remainder generic.Amount) (generic.Amount, bool, error) {
	switch {
	case i < 0 || i > s.InitialMonths:
		return principal.Zero(), false, nil
	case i == 0:
		eff, err := principal.Sub(remainder)
		return eff, true, err
	case i == s.InitialMonths:
		return remainder, true, nil
	default:
		return principal, true, nil
	}
}

// Contribution returns the principal position adds to the deposits of
// period i, which is also the principal earning a pool share in it.
func (s Schedule) Contribution(i int, principal, remainder generic.Amount) (generic.Amount, bool, error) {
	switch {
	case i < s.InitialMonths || i >= s.MaxMonths:
		return principal.Zero(), false, nil
	case i == s.InitialMonths:
		eff, err := principal.Sub(remainder)
		return eff, true, err
	case i == s.MaxMonths-1:
		return remainder, true, nil
	default:
		return principal, true, nil
	}
}

// RewardForPeriod computes the reward of period i. pool is only consulted
// when the position has a non-zero contribution in period i.
func (s Schedule) RewardForPeriod(i int, principal, remainder generic.Amount, pool generic.Pool) (Reward, error) {
	r := Reward{Index: i, Initial: principal.Zero(), Proportional: principal.Zero(), Total: principal.Zero()}
	if i < 0 || i >= s.MaxMonths {
		return r, nil
	}

	eff, ok, err := s.InitialPrincipal(i, principal, remainder)
	if err != nil {
		return Reward{}, err
	}
	if ok {
		if r.Initial, err = eff.Bps(s.InitialRate); err != nil {
			return Reward{}, err
		}
	}

	eff, ok, err = s.Contribution(i, principal, remainder)
	if err != nil {
		return Reward{}, err
	}
	if ok && !eff.IsZero() {
		r.UsesPool = true
		if r.Proportional, err = pool.Share(eff); err != nil {
			return Reward{}, err
		}
	}

	if r.Total, err = r.Initial.Add(r.Proportional); err != nil {
		return Reward{}, err
	}
	return r, nil
}

// UsesPool reports whether period i reads the period ledger for a position.
func (s Schedule) UsesPool(i int, principal, remainder generic.Amount) bool {
	eff, ok, err := s.Contribution(i, principal, remainder)
	return err == nil && ok && !eff.IsZero()
}

// Claimable returns the half-open index range [from, to) that a claim made
// after elapsed closed periods settles. Indices at or past MaxMonths are
// never claimable.
func (s Schedule) Claimable(claimed, elapsed int) (from, to int) {
	to = elapsed
	if to > s.MaxMonths {
		to = s.MaxMonths
	}
	if to < claimed {
		to = claimed
	}
	return claimed, to
}
