package generic

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================
// COLLABORATORS - Components the strategies consult but do not own
// =============================================================================

// Treasury converts USD to payout tokens and transfers them.
type Treasury interface {
	// USDAmountToToken converts USD base units to token base units at the
	// treasury's current price.
	USDAmountToToken(ctx context.Context, usd Amount, token TokenID) (Amount, error)

	// Payout transfers amount of token to recipient. Any error aborts the
	// surrounding claim or sale.
	Payout(ctx context.Context, recipient common.Address, token TokenID, amount Amount) error
}

// PositionSource is the minting/ownership component.
// OwnerOf and PrincipalUSD fail with BurnedItemError once an item is sold,
// and Exists reports false.
type PositionSource interface {
	PrincipalUSD(ctx context.Context, key PositionKey) (Amount, error)
	OwnerOf(ctx context.Context, key PositionKey) (common.Address, error)
	Exists(ctx context.Context, key PositionKey) (bool, error)
}

// Item is a minted position as the minting component sees it.
// Strategy is empty until the item is staked; a bound item never rebinds.
// A burned item was sold and no longer has a holder.
type Item struct {
	Key       PositionKey
	Owner     common.Address
	Principal Amount
	Strategy  StrategyID
	Burned    bool
}

// BurnedItemError is returned by lookups on a sold item.
func BurnedItemError(key PositionKey) error {
	return &InvalidPositionError{Key: key, Reason: "burned"}
}

// Minter extends PositionSource with minting and transfers.
type Minter interface {
	PositionSource
	Mint(ctx context.Context, collection, owner common.Address, principal Amount) (PositionKey, error)
	Transfer(ctx context.Context, key PositionKey, from, to common.Address) error
	GetItem(ctx context.Context, key PositionKey) (*Item, error)
}

// LookupItem reads the principal and owner of a minted position.
// Burned items fail with the OwnerOf error.
func LookupItem(ctx context.Context, positions PositionSource, key PositionKey) (Amount, common.Address, error) {
	owner, err := positions.OwnerOf(ctx, key)
	if errors.Is(err, ErrItemNotFound) {
		return Amount{}, common.Address{}, &InvalidPositionError{Key: key, Reason: "not minted"}
	}
	if err != nil {
		return Amount{}, common.Address{}, err
	}
	principal, err := positions.PrincipalUSD(ctx, key)
	if err != nil {
		return Amount{}, common.Address{}, err
	}
	if !principal.IsPositive() {
		return Amount{}, common.Address{}, &InvalidPositionError{Key: key, Reason: "zero principal"}
	}
	return principal, owner, nil
}

// AuthorizeHolder checks caller currently owns the position.
func AuthorizeHolder(ctx context.Context, positions PositionSource, key PositionKey, caller common.Address) error {
	owner, err := positions.OwnerOf(ctx, key)
	if errors.Is(err, ErrItemNotFound) {
		return &InvalidPositionError{Key: key, Reason: "not minted"}
	}
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: %s", ErrNotOwner, key)
	}
	return nil
}

// Operators answers governance checks.
type Operators interface {
	IsOperator(account common.Address) bool
}

// OperatorSet is a static set of operator accounts.
type OperatorSet map[common.Address]struct{}

func NewOperatorSet(accounts ...common.Address) OperatorSet {
	s := make(OperatorSet, len(accounts))
	for _, a := range accounts {
		s[a] = struct{}{}
	}
	return s
}

func (s OperatorSet) IsOperator(account common.Address) bool {
	_, ok := s[account]
	return ok
}

// Recorder receives strategy events for metrics.
type Recorder interface {
	RecordStake(strategy StrategyID)
	RecordPayout(strategy StrategyID, kind PayoutKind, usd Amount)
	RecordFailure(strategy StrategyID, op string, err error)
	RecordLedger(strategy StrategyID, op string)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) RecordStake(StrategyID)                      {}
func (NopRecorder) RecordPayout(StrategyID, PayoutKind, Amount) {}
func (NopRecorder) RecordFailure(StrategyID, string, error)     {}
func (NopRecorder) RecordLedger(StrategyID, string)             {}
