/*
Package fixed implements the fixed-term staking strategy.

PURPOSE:
  A fixed-term position is locked for LockYears. Once the lock expires the
  holder may claim a single lump-sum reward of RewardsRate per year on the
  principal, and may sell to get the principal back undiscounted. There is
  no period ledger: the reward does not depend on pool earnings.

  5-year lock, 1500 bp, 1000 USD principal -> 750 USD reward.

SEE ALSO:
  - accrual/depreciation.go: FixedReward
  - flex/: The monthly strategy
*/
package fixed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/staking-engine/accrual"
	"github.com/warp/staking-engine/generic"
)

// Config is the immutable configuration of a fixed-term strategy.
type Config struct {
	ID          generic.StrategyID
	Name        string
	RewardsRate generic.BasisPoints // per year of lock
	LockYears   int
}

func (c Config) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing id", generic.ErrInvalidConfig)
	case c.LockYears < 1:
		return fmt.Errorf("%w: lock_years must be at least 1", generic.ErrInvalidConfig)
	case c.RewardsRate < 0:
		return fmt.Errorf("%w: rewards rate must not be negative", generic.ErrInvalidConfig)
	}
	return nil
}

// Strategy is a fixed-term staking strategy.
type Strategy struct {
	cfg  Config
	deps generic.Deps
	log  zerolog.Logger

	mu sync.Mutex
}

var _ generic.Strategy = (*Strategy)(nil)

func New(cfg Config, deps generic.Deps) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Positions == nil || deps.Treasury == nil {
		return nil, errors.New("fixed: store, positions and treasury are required")
	}
	deps = deps.WithDefaults()
	return &Strategy{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With().Str("strategy", string(cfg.ID)).Logger(),
	}, nil
}

func (s *Strategy) ID() generic.StrategyID     { return s.cfg.ID }
func (s *Strategy) Kind() generic.StrategyKind { return generic.KindFixed }
func (s *Strategy) Name() string               { return s.cfg.Name }
func (s *Strategy) Config() Config             { return s.cfg }

// UnlockAt returns when the lock of pos expires.
func (s *Strategy) UnlockAt(pos *generic.Position) time.Time {
	return pos.CreatedAt.AddDate(0, 12*s.cfg.LockYears, 0)
}

func (s *Strategy) lockMonths() int { return 12 * s.cfg.LockYears }

// Stake registers a minted position.
func (s *Strategy) Stake(ctx context.Context, key generic.PositionKey) (*generic.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	principal, owner, err := generic.LookupItem(ctx, s.deps.Positions, key)
	if err != nil {
		return nil, s.fail("stake", key, err)
	}
	pos := generic.Position{
		Strategy:       s.cfg.ID,
		Key:            key,
		Owner:          owner,
		Principal:      principal,
		CreatedAt:      s.deps.Clock.Now(),
		Remainder:      generic.ZeroUSD(),
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
		return tx.SavePosition(ctx, pos)
	})
	if err != nil {
		return nil, s.fail("stake", key, err)
	}

	s.deps.Recorder.RecordStake(s.cfg.ID)
	s.log.Info().
		Str("position", key.String()).
		Str("principal_usd", principal.Dollars().String()).
		Time("unlock_at", s.UnlockAt(&pos)).
		Msg("position staked")
	return &pos, nil
}

// Claim pays the lump-sum reward once the lock has expired.
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
		if unlock := s.UnlockAt(pos); now.Before(unlock) {
			return &generic.EligibilityError{Key: pos.Key, Reason: generic.ErrRewardsNotReady, EligibleAt: unlock}
		}
		if pos.ClaimedPeriods > 0 {
			return fmt.Errorf("%w: %s", generic.ErrAlreadyClaimed, pos.Key)
		}

		reward, err := accrual.FixedReward(pos.Principal, s.cfg.RewardsRate, s.cfg.LockYears)
		if err != nil {
			return err
		}
		pos.ClaimedPeriods = s.lockMonths()
		pos.TotalWithdrawn = reward

		receipt, err = generic.PayOut(ctx, tx, s.deps.Treasury, pos, req, generic.PayoutClaim, reward, 0, s.lockMonths(), now)
		return err
	})
	if err != nil {
		generic.LogUncommitted(s.log, receipt, err)
		return nil, s.fail("claim", req.Key, err)
	}

	s.deps.Recorder.RecordPayout(s.cfg.ID, generic.PayoutClaim, receipt.USD)
	s.log.Info().
		Str("position", req.Key.String()).
		Str("usd", receipt.USD.Dollars().String()).
		Str("token", string(receipt.Token)).
		Msg("rewards claimed")
	return receipt, nil
}

// Sell returns the principal after the lock has expired.
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
		if unlock := s.UnlockAt(pos); now.Before(unlock) {
			return &generic.EligibilityError{Key: pos.Key, Reason: generic.ErrCannotSellYet, EligibleAt: unlock}
		}
		pos.Sold = true
		pos.SoldAt = now
		if err := tx.BurnItem(ctx, pos.Key); err != nil {
			return err
		}
		receipt, err = generic.PayOut(ctx, tx, s.deps.Treasury, pos, req, generic.PayoutSell, pos.Principal,
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
		Str("usd", receipt.USD.Dollars().String()).
		Msg("position sold")
	return receipt, nil
}

func (s *Strategy) Position(ctx context.Context, key generic.PositionKey) (*generic.Position, error) {
	return generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
}

func (s *Strategy) Payouts(ctx context.Context, key generic.PositionKey) ([]generic.Payout, error) {
	return s.deps.Store.ListPayouts(ctx, s.cfg.ID, key)
}

// NextClaimAt returns the unlock time, or the zero time once claimed.
func (s *Strategy) NextClaimAt(ctx context.Context, key generic.PositionKey) (time.Time, error) {
	pos, err := generic.LoadPosition(ctx, s.deps.Store, s.cfg.ID, key)
	if err != nil {
		return time.Time{}, err
	}
	if err := pos.CheckActive(); err != nil {
		return time.Time{}, err
	}
	if pos.ClaimedPeriods > 0 {
		return time.Time{}, nil
	}
	return s.UnlockAt(pos), nil
}

func (s *Strategy) fail(op string, key generic.PositionKey, err error) error {
	s.deps.Recorder.RecordFailure(s.cfg.ID, op, err)
	s.log.Warn().Err(err).
		Str("op", op).
		Str("code", generic.ErrorCode(err)).
		Str("position", key.String()).
		Msg("operation rejected")
	return err
}
