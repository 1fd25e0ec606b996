package generic

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// =============================================================================
// STRATEGY - Common surface of fixed and flexible staking
// =============================================================================

type StrategyKind string

const (
	KindFixed    StrategyKind = "fixed"
	KindFlexible StrategyKind = "flexible"
)

// PayoutRequest is the input of Claim and Sell.
type PayoutRequest struct {
	Key    PositionKey
	Caller common.Address
	Token  TokenID
	// MinOut is the minimum acceptable token amount. Zero disables the check.
	MinOut Amount
}

// Receipt describes a completed claim or sale.
type Receipt struct {
	PayoutID    string
	Strategy    StrategyID
	Key         PositionKey
	Kind        PayoutKind
	Recipient   common.Address
	USD         Amount
	Token       TokenID
	TokenAmount Amount
	FromPeriod  int
	ToPeriod    int
	Position    Position
	At          time.Time
}

// Strategy is implemented by fixed.Strategy and flex.Strategy.
type Strategy interface {
	ID() StrategyID
	Kind() StrategyKind
	Name() string

	// Stake registers a minted position with the strategy.
	Stake(ctx context.Context, key PositionKey) (*Position, error)
	Claim(ctx context.Context, req PayoutRequest) (*Receipt, error)
	Sell(ctx context.Context, req PayoutRequest) (*Receipt, error)

	Position(ctx context.Context, key PositionKey) (*Position, error)
	Payouts(ctx context.Context, key PositionKey) ([]Payout, error)
	// NextClaimAt returns when the next claim becomes possible.
	NextClaimAt(ctx context.Context, key PositionKey) (time.Time, error)
}

// PeriodOperator is implemented by strategies that keep a period ledger.
type PeriodOperator interface {
	UpdateDeposits(ctx context.Context, caller common.Address) (Period, error)
	SetEarnings(ctx context.Context, caller common.Address, p Period, amount Amount) error
	CurrentPeriod(ctx context.Context) (Period, bool, error)
	PeriodState(ctx context.Context, p Period) (PeriodRecord, error)
}

// Deps bundles the collaborators every strategy needs.
type Deps struct {
	Store     TxStore
	Positions PositionSource
	Treasury  Treasury
	Operators Operators
	Clock     Clock
	Logger    zerolog.Logger
	Recorder  Recorder
}

// WithDefaults fills optional collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Recorder == nil {
		d.Recorder = NopRecorder{}
	}
	if d.Operators == nil {
		d.Operators = OperatorSet{}
	}
	return d
}
