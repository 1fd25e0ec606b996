/*
store.go - Persistence interface for positions, periods and payouts

PURPOSE:
  Defines the interface between the strategies and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:       Positions, period records, ledger pointer, payout log
  TxStore:     Transactional operations (all-or-nothing claim/sell)
  ConfigStore: Immutable strategy configuration

APPEND-ONLY PAYOUTS:
  Payouts are an audit log:
  - AppendPayout(): single write, rejected on duplicate ID
  - NO update or delete of payouts

ATOMICITY:
  A claim touches the position, one or more period records and the payout
  log, then calls the treasury. All of it runs inside WithTx; an error from
  any step (including the treasury) rolls every write back.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: PeriodLedger on top of Store
*/
package generic

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// RECORDS
// =============================================================================

// PeriodRecord is the ledger state of one strategy period.
type PeriodRecord struct {
	Strategy    StrategyID
	Period      Period
	Deposits    Amount
	Earnings    Amount
	EarningsSet bool
	Settled     bool // a claim has read this period's pool
	Closed      bool // the ledger pointer moved past this period
}

// NewPeriodRecord returns an empty record for p.
func NewPeriodRecord(strategy StrategyID, p Period) PeriodRecord {
	return PeriodRecord{Strategy: strategy, Period: p, Deposits: ZeroUSD(), Earnings: ZeroUSD()}
}

type PayoutKind string

const (
	PayoutClaim PayoutKind = "claim"
	PayoutSell  PayoutKind = "sell"
)

// Payout is an immutable record of a settled claim or sale.
type Payout struct {
	ID          string
	Strategy    StrategyID
	Key         PositionKey
	Recipient   common.Address
	Kind        PayoutKind
	USD         Amount
	Token       TokenID
	TokenAmount Amount
	FromPeriod  int // first settled period index (claims)
	ToPeriod    int // one past the last settled period index
	At          time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store persists strategy state. Lookups of absent records return (nil, nil).
type Store interface {
	SavePosition(ctx context.Context, p Position) error
	GetPosition(ctx context.Context, strategy StrategyID, key PositionKey) (*Position, error)
	ListPositions(ctx context.Context, strategy StrategyID) ([]Position, error)

	SavePeriod(ctx context.Context, r PeriodRecord) error
	GetPeriod(ctx context.Context, strategy StrategyID, p Period) (*PeriodRecord, error)
	ListPeriods(ctx context.Context, strategy StrategyID) ([]PeriodRecord, error)

	// GetCursor returns the ledger pointer; ok is false before the first advance.
	GetCursor(ctx context.Context, strategy StrategyID) (p Period, ok bool, err error)
	SaveCursor(ctx context.Context, strategy StrategyID, p Period) error

	// AppendPayout records a payout. Append-only.
	AppendPayout(ctx context.Context, p Payout) error
	ListPayouts(ctx context.Context, strategy StrategyID, key PositionKey) ([]Payout, error)

	// BindItem records the strategy an item is staked in. It fails with
	// ErrPositionExists when the item is already bound, even after a sale.
	BindItem(ctx context.Context, key PositionKey, strategy StrategyID) error
	// BurnItem retires a sold item.
	BurnItem(ctx context.Context, key PositionKey) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// fn must only use the Store it receives.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// STRATEGY CONFIG - Immutable after first boot
// =============================================================================

// StrategyRecord is a persisted strategy configuration.
type StrategyRecord struct {
	ID         StrategyID
	Kind       StrategyKind
	ConfigJSON string
	CreatedAt  time.Time
}

// ConfigStore persists strategy configurations.
type ConfigStore interface {
	// RegisterStrategy stores rec on first use. A later call with a different
	// ConfigJSON fails with ErrConfigChanged.
	RegisterStrategy(ctx context.Context, rec StrategyRecord) error
	ListStrategies(ctx context.Context) ([]StrategyRecord, error)
}
