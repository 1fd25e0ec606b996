/*
Package flex implements the flexible staking strategy.

PURPOSE:
  A flexible position accrues monthly. For the first InitialMonths periods
  it earns a fixed rate on its principal; from period InitialMonths on it
  earns a share of the earnings the operator reports for each period,
  proportional to its share of that period's deposits. The holder may sell
  after MinMonths settled periods; the sale returns the principal minus a
  linear yearly depreciation.

LIFECYCLE:
  Stake -> Claim (any number of times) -> Sell (terminal)

  Stake   computes the remainder and schedules the position's deposits
          into every pool period it will participate in.
  Claim   settles all periods closed since the last claim, capped at
          MaxMonths, and pays the USD total in the requested token.
  Sell    requires MinMonths settled periods and no unclaimed closed
          period; it withdraws the position's future deposits.

OPERATOR FLOW:
  UpdateDeposits at the start of each month closes the previous period;
  SetEarnings then publishes its earnings. Claims reading a period before
  its earnings are set see zero earnings and freeze the period.

CONCURRENCY:
  Mutating calls are serialized by the strategy mutex and each runs in one
  store transaction. Collaborator reads happen before the transaction.

SEE ALSO:
  - accrual/schedule.go: Branch table per period index
  - generic/ledger.go: Deposits and earnings per period
*/
package flex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/warp/staking-engine/accrual"
	"github.com/warp/staking-engine/generic"
)

// Strategy is a flexible staking strategy. It implements generic.Strategy
// and generic.PeriodOperator.
type Strategy struct {
	cfg      Config
	schedule accrual.Schedule
	deps     generic.Deps
	log      zerolog.Logger

	mu sync.Mutex
}

var (
	_ generic.Strategy       = (*Strategy)(nil)
	_ generic.PeriodOperator = (*Strategy)(nil)
)

func New(cfg Config, deps generic.Deps) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Positions == nil || deps.Treasury == nil {
		return nil, errors.New("flex: store, positions and treasury are required")
	}
	deps = deps.WithDefaults()
	return &Strategy{
		cfg:      cfg,
		schedule: cfg.Schedule(),
		deps:     deps,
		log:      deps.Logger.With().Str("strategy", string(cfg.ID)).Logger(),
	}, nil
}

func (s *Strategy) ID() generic.StrategyID     { return s.cfg.ID }
func (s *Strategy) Kind() generic.StrategyKind { return generic.KindFlexible }
func (s *Strategy) Name() string               { return s.cfg.Name }
func (s *Strategy) Config() Config             { return s.cfg }

// =============================================================================
// HOLDER OPERATIONS
// =============================================================================

// Stake registers a minted position.
func (s *Strategy) Stake(ctx context.Context, key generic.PositionKey) (*generic.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Clock.Now()
	principal, owner, err := generic.LookupItem(ctx, s.deps.Positions, key)
	if err != nil {
		return nil, s.fail("stake", key, err)
	}
	remainder, err := accrual.Remainder(principal, now)
	if err != nil {
		return nil, s.fail("stake", key, err)
	}

	pos := generic.Position{
		Strategy:       s.cfg.ID,
		Key:            key,
		Owner:          owner,
		Principal:      principal,
		CreatedAt:      now,
		Remainder:      remainder,
		TotalWithdrawn: generic.ZeroUSD(),
	}

	err = s.deps.Store.WithTx(ctx, func(tx generic.Store) error {
		existing, err := tx.GetPosition(ctx, s.cfg.ID, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", generic.ErrPositionExists, key)
		}
		if err := tx.BindItem(ctx, key, s.cfg.ID); err != nil {
			return err
		}

		ledger := generic.NewPeriodLedger(tx, s.cfg.ID)
		if _, err := ledger.AdvanceTo(ctx, now); err != nil {
			return err
		}
		for i := s.cfg.InitialMonths; i < s.cfg.MaxMonths; i++ {
			c, ok, err := s.schedule.Contribution(i, principal, remainder)
			if err != nil {
				return err
			}
			if !ok || c.IsZero() {
				continue
			}
			if err := ledger.RecordDeposit(ctx, pos.PeriodAt(i), c); err != nil {
				return err
			}
		}
		return tx.SavePosition(ctx, pos)
	})
	if err != nil {
		return nil, s.fail("stake", key, err)
	}

	s.deps.Recorder.RecordStake(s.cfg.ID)
	s.log.Info().
		Str("position", key.String()).
		Str("principal_usd", principal.Dollars().String()).
		Str("remainder_usd", remainder.Dollars().String()).
		Msg("position staked")
	return &pos, nil
}

// Claim settles every period closed since the last claim.
func (s *Strategy) Claim(ctx context.Context, req generic.PayoutRequest) (*generic.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Clock.Now()
	if err := generic.AuthorizeHolder(ctx, s.deps.Positions, req.Key, req.Caller); err != nil {
		return nil, s.fail("claim", req.Key, err)
	}

	var receipt *generic.Receipt
	err := s.deps.Store.WithTx(ctx, func(tx generic.Store) error {
		pos, err := generic.LoadActivePosition(ctx, tx, s.cfg.ID, req.Key)
		if err != nil {
			return err
		}
		ledger := generic.NewPeriodLedger(tx, s.cfg.ID)
		if _, err := ledger.AdvanceTo(ctx, now); err != nil {
			return err
		}

		from, to := s.schedule.Claimable(pos.ClaimedPeriods, pos.ElapsedPeriods(now))
		if from == to {
			if pos.ClaimedPeriods >= s.cfg.MaxMonths {
				return fmt.Errorf("%w: all %d periods claimed", generic.ErrNoRewardsYet, s.cfg.MaxMonths)
			}
			return fmt.Errorf("%w: next claim at %s", generic.ErrNoRewardsYet,
				pos.ClaimTimestamp(pos.ClaimedPeriods+1).Format(time.RFC3339))
		}

		total, _, err := s.settle(ctx, ledger, pos, from, to, true)
		if err != nil {
			return err
		}
		if total.IsZero() {
			// Rolls back the settle marks so the operator can still publish.
			return fmt.Errorf("%w: nothing accrued in periods %d-%d", generic.ErrNoRewardsYet, from+1, to)
		}
		withdrawn, err := pos.TotalWithdrawn.Add(total)
		if err != nil {
			return err
		}
		pos.ClaimedPeriods = to
		pos.TotalWithdrawn = withdrawn

		receipt, err = generic.PayOut(ctx, tx, s.deps.Treasury, pos, req, generic.PayoutClaim, total, from, to, now)
		return err
	})
	if err != nil {
		generic.LogUncommitted(s.log, receipt, err)
		return nil, s.fail("claim", req.Key, err)
	}

	s.deps.Recorder.RecordPayout(s.cfg.ID, generic.PayoutClaim, receipt.USD)
	s.log.Info().
		Str("position", req.Key.String()).
		Int("from_period", receipt.FromPeriod).
		Int("to_period", receipt.ToPeriod).
		Str("usd", receipt.USD.Dollars().String()).
		Str("token", string(receipt.Token)).
		Str("token_amount", receipt.TokenAmount.String()).
		Msg("rewards claimed")
	return receipt, nil
}

// Sell exits the position, paying the depreciated principal.
func (s *Strategy) Sell(ctx context.Context, req generic.PayoutRequest) (*generic.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Clock.Now()
	if err := generic.AuthorizeHolder(ctx, s.deps.Positions, req.Key, req.Caller); err != nil {
		return nil, s.fail("sell", req.Key, err)
	}

	var receipt *generic.Receipt
	err := s.deps.Store.WithTx(ctx, func(tx generic.Store) error {
		pos, err := generic.LoadActivePosition(ctx, tx, s.cfg.ID, req.Key)
		if err != nil {
			return err
		}
		ledger := generic.NewPeriodLedger(tx, s.cfg.ID)
		if _, err := ledger.AdvanceTo(ctx, now); err != nil {
			return err
		}

		elapsed := pos.ElapsedPeriods(now)
		if err := s.checkSellable(pos, elapsed); err != nil {
			return err
		}

		value, err := accrual.Depreciate(pos.Principal, s.cfg.YearDeprecationRate,
			accrual.DepreciationMonths(pos.ClaimedPeriods))
		if err != nil {
			return err
		}

		for i := elapsed; i < s.cfg.MaxMonths; i++ {
			c, ok, err := s.schedule.Contribution(i, pos.Principal, pos.Remainder)
			if err != nil {
				return err
			}
			if !ok || c.IsZero() {
				continue
			}
			if err := ledger.RecordDeposit(ctx, pos.PeriodAt(i), c.Neg()); err != nil {
				return err
			}
		}

		pos.Sold = true
		pos.SoldAt = now
		if err := tx.BurnItem(ctx, pos.Key); err != nil {
			return err
		}
		receipt, err = generic.PayOut(ctx, tx, s.deps.Treasury, pos, req, generic.PayoutSell, value,
			pos.ClaimedPeriods, pos.ClaimedPeriods, now)
		return err
	})
	if err != nil {
		generic.LogUncommitted(s.log, receipt, err)
		return nil, s.fail("sell", req.Key, err)
	}

	s.deps.Recorder.RecordPayout(s.cfg.ID, generic.PayoutSell, receipt.USD)
	s.log.Info().
		Str("position", req.Key.String()).
		Int("claimed_periods", receipt.Position.ClaimedPeriods).
		Str("usd", receipt.USD.Dollars().String()).
		Str("token", string(receipt.Token)).
		Msg("position sold")
	return receipt, nil
}

func (s *Strategy) checkSellable(pos *generic.Position, elapsed int) error {
	if pos.ClaimedPeriods < s.cfg.MinMonths {
		return &generic.EligibilityError{
			Key:        pos.Key,
			Reason:     generic.ErrCannotSellYet,
			EligibleAt: pos.ClaimTimestamp(s.cfg.MinMonths),
			Detail:     fmt.Sprintf("%d of %d required periods claimed", pos.ClaimedPeriods, s.cfg.MinMonths),
		}
	}
	if _, due := s.schedule.Claimable(0, elapsed); pos.ClaimedPeriods < due {
		return &generic.EligibilityError{
			Key:    pos.Key,
			Reason: generic.ErrCannotSellYet,
			Detail: fmt.Sprintf("%d closed periods unclaimed", due-pos.ClaimedPeriods),
		}
	}
	return nil
}

// settle computes the reward of periods [from, to). With mark set, every
// period whose pool was read is frozen against earnings rewrites.
func (s *Strategy) settle(ctx context.Context, ledger *generic.PeriodLedger, pos *generic.Position,
	from, to int, mark bool) (generic.Amount, []accrual.Reward, error) {

	total := generic.ZeroUSD()
	rewards := make([]accrual.Reward, 0, to-from)
	for i := from; i < to; i++ {
		p := pos.PeriodAt(i)
		var pool generic.Pool
		if s.schedule.UsesPool(i, pos.Principal, pos.Remainder) {
			var err error
			if pool, err = ledger.PoolFor(ctx, p); err != nil {
				return generic.Amount{}, nil, err
			}
		}
		r, err := s.schedule.RewardForPeriod(i, pos.Principal, pos.Remainder, pool)
		if err != nil {
			return generic.Amount{}, nil, err
		}
		if r.UsesPool && mark {
			if err := ledger.MarkSettled(ctx, p); err != nil {
				return generic.Amount{}, nil, err
			}
		}
		if total, err = total.Add(r.Total); err != nil {
			return generic.Amount{}, nil, err
		}
		rewards = append(rewards, r)
	}
	return total, rewards, nil
}

// =============================================================================
// OPERATOR OPERATIONS
// =============================================================================

// UpdateDeposits advances the period ledger to the current period.
func (s *Strategy) UpdateDeposits(ctx context.Context, caller common.Address) (generic.Period, error) {
	if !s.deps.Operators.IsOperator(caller) {
		return generic.Period{}, s.fail("update_deposits", generic.PositionKey{}, generic.ErrUnauthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur generic.Period
	err := s.deps.Store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		cur, err = generic.NewPeriodLedger(tx, s.cfg.ID).AdvanceTo(ctx, s.deps.Clock.Now())
		return err
	})
	if err != nil {
		return generic.Period{}, s.fail("update_deposits", generic.PositionKey{}, err)
	}
	s.deps.Recorder.RecordLedger(s.cfg.ID, "update_deposits")
	s.log.Info().Str("period", cur.String()).Msg("deposits updated")
	return cur, nil
}

// SetEarnings publishes the earnings of a closed period.
func (s *Strategy) SetEarnings(ctx context.Context, caller common.Address, p generic.Period, amount generic.Amount) error {
	if !s.deps.Operators.IsOperator(caller) {
		return s.fail("set_earnings", generic.PositionKey{}, generic.ErrUnauthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.deps.Store.WithTx(ctx, func(tx generic.Store) error {
		return generic.NewPeriodLedger(tx, s.cfg.ID).SetEarnings(ctx, p, amount)
	})
	if err != nil {
		return s.fail("set_earnings", generic.PositionKey{}, err)
	}
	s.deps.Recorder.RecordLedger(s.cfg.ID, "set_earnings")
	s.log.Info().
		Str("period", p.String()).
		Str("earnings_usd", amount.Dollars().String()).
		Msg("earnings set")
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Strategy) CurrentPeriod(ctx context.Context) (generic.Period, bool, error) {
	return generic.NewPeriodLedger(s.deps.Store, s.cfg.ID).Current(ctx)
}

func (s *Strategy) PeriodState(ctx context.Context, p generic.Period) (generic.PeriodRecord, error) {
	return generic.NewPeriodLedger(s.deps.Store, s.cfg.ID).State(ctx, p)
}

func (s *Strategy) Position(ctx context.Context, key generic.PositionKey) (*generic.Position, error) {
	return generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
}

func (s *Strategy) Payouts(ctx context.Context, key generic.PositionKey) ([]generic.Payout, error) {
	return s.deps.Store.ListPayouts(ctx, s.cfg.ID, key)
}

// ClaimTimestamp returns the instant n periods of the position have elapsed.
func (s *Strategy) ClaimTimestamp(ctx context.Context, key generic.PositionKey, n int) (time.Time, error) {
	pos, err := generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
	if err != nil {
		return time.Time{}, err
	}
	return pos.ClaimTimestamp(n), nil
}

// NextClaimAt returns when the next period becomes claimable, or the zero
// time once every period has been claimed.
func (s *Strategy) NextClaimAt(ctx context.Context, key generic.PositionKey) (time.Time, error) {
	pos, err := generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
	if err != nil {
		return time.Time{}, err
	}
	if err := pos.CheckActive(); err != nil {
		return time.Time{}, err
	}
	if pos.ClaimedPeriods >= s.cfg.MaxMonths {
		return time.Time{}, nil
	}
	return pos.ClaimTimestamp(pos.ClaimedPeriods + 1), nil
}

// Preview is the would-be result of a claim made now.
type Preview struct {
	FromPeriod int
	ToPeriod   int
	USD        generic.Amount
	Periods    []accrual.Reward
}

// Pending computes what a claim made now would settle, without writing.
// Pool periods whose earnings are not yet published count as zero.
func (s *Strategy) Pending(ctx context.Context, key generic.PositionKey) (*Preview, error) {
	pos, err := generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
	if err != nil {
		return nil, err
	}
	if err := pos.CheckActive(); err != nil {
		return nil, err
	}
	from, to := s.schedule.Claimable(pos.ClaimedPeriods, pos.ElapsedPeriods(s.deps.Clock.Now()))
	ledger := generic.NewPeriodLedger(s.deps.Store, s.cfg.ID)
	total, rewards, err := s.settle(ctx, ledger, pos, from, to, false)
	if err != nil {
		return nil, err
	}
	return &Preview{FromPeriod: from, ToPeriod: to, USD: total, Periods: rewards}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Strategy) fail(op string, key generic.PositionKey, err error) error {
	s.deps.Recorder.RecordFailure(s.cfg.ID, op, err)
	ev := s.log.Warn()
	if !generic.IsClientError(err) && !generic.IsConflict(err) {
		ev = s.log.Error()
	}
	ev.Err(err).Str("op", op).Str("code", generic.ErrorCode(err))
	if key != (generic.PositionKey{}) {
		ev.Str("position", key.String())
	}
	ev.Msg("operation rejected")
	return err
}
