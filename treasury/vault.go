/*
Package treasury provides an in-process Treasury: a set of payout tokens
with USD prices and reserves.

PURPOSE:
  The strategies only need two things from a treasury: convert USD base
  units into token base units, and transfer tokens to a holder. Vault does
  both against in-memory reserves, which is what the HTTP server and the
  tests run on. Price updates are an operator action.

CONVERSION:
  tokens = floor(usd * 10^decimals / (price * 10^18))

  With price 1.00 and 18 decimals, 1 USD converts to 10^18 token units.
  With price 2.00 and 6 decimals, 10 USD converts to 5 * 10^6.

SEE ALSO:
  - generic/collaborators.go: Treasury interface
*/
package treasury

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/staking-engine/generic"
)

// Token describes a payout token.
type Token struct {
	ID       generic.TokenID
	Decimals int32
	PriceUSD decimal.Decimal
}

// Transfer is one completed payout.
type Transfer struct {
	Recipient common.Address
	Token     generic.TokenID
	Amount    generic.Amount
	At        time.Time
}

type tokenState struct {
	Token
	reserve generic.Amount
}

// Vault implements generic.Treasury over in-memory reserves.
type Vault struct {
	mu        sync.RWMutex
	tokens    map[generic.TokenID]*tokenState
	balances  map[common.Address]map[generic.TokenID]generic.Amount
	transfers []Transfer
	clock     generic.Clock
	log       zerolog.Logger
}

func NewVault(clock generic.Clock, log zerolog.Logger) *Vault {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Vault{
		tokens:   make(map[generic.TokenID]*tokenState),
		balances: make(map[common.Address]map[generic.TokenID]generic.Amount),
		clock:    clock,
		log:      log,
	}
}

// AddToken lists a token with an initial reserve (in token base units).
func (v *Vault) AddToken(t Token, reserve generic.Amount) error {
	if t.Decimals < 0 || t.Decimals > 36 {
		return fmt.Errorf("%w: decimals %d out of range", generic.ErrTokenNotSupported, t.Decimals)
	}
	if !t.PriceUSD.IsPositive() {
		return fmt.Errorf("%w: price of %s must be positive", generic.ErrTokenNotSupported, t.ID)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[t.ID] = &tokenState{Token: t, reserve: generic.Amount{Value: reserve.Value, Unit: generic.Unit(t.ID)}}
	return nil
}

// SetPrice updates the USD price of a token.
func (v *Vault) SetPrice(id generic.TokenID, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", price)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.tokens[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrTokenNotSupported, id)
	}
	st.PriceUSD = price
	v.log.Info().Str("token", string(id)).Str("price_usd", price.String()).Msg("token price updated")
	return nil
}

// Fund adds reserve to a token.
func (v *Vault) Fund(id generic.TokenID, amount generic.Amount) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.tokens[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrTokenNotSupported, id)
	}
	r, err := st.reserve.Add(amount)
	if err != nil {
		return err
	}
	st.reserve = r
	return nil
}

// USDAmountToToken implements generic.Treasury.
func (v *Vault) USDAmountToToken(_ context.Context, usd generic.Amount, id generic.TokenID) (generic.Amount, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st, ok := v.tokens[id]
	if !ok {
		return generic.Amount{}, fmt.Errorf("%w: %s", generic.ErrTokenNotSupported, id)
	}
	out, err := usd.MulDiv(
		decimal.New(1, st.Decimals),
		st.PriceUSD.Shift(generic.USDDecimals),
	)
	if err != nil {
		return generic.Amount{}, err
	}
	out.Unit = generic.Unit(id)
	return out, nil
}

// Payout implements generic.Treasury.
func (v *Vault) Payout(_ context.Context, recipient common.Address, id generic.TokenID, amount generic.Amount) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.tokens[id]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrTokenNotSupported, id)
	}
	if amount.IsNegative() {
		return &generic.ArithmeticError{Op: "payout", Detail: "negative amount"}
	}
	if st.reserve.LessThan(amount) {
		return fmt.Errorf("%w: %s reserve %s, requested %s", generic.ErrInsufficientReserves, id, st.reserve, amount)
	}
	reserve, err := st.reserve.Sub(amount)
	if err != nil {
		return err
	}
	if v.balances[recipient] == nil {
		v.balances[recipient] = make(map[generic.TokenID]generic.Amount)
	}
	bal, ok := v.balances[recipient][id]
	if !ok {
		bal = generic.Amount{Unit: generic.Unit(id)}
	}
	if bal, err = bal.Add(amount); err != nil {
		return err
	}

	st.reserve = reserve
	v.balances[recipient][id] = bal
	v.transfers = append(v.transfers, Transfer{Recipient: recipient, Token: id, Amount: amount, At: v.clock.Now()})
	v.log.Debug().
		Str("recipient", recipient.Hex()).
		Str("token", string(id)).
		Str("amount", amount.String()).
		Msg("treasury payout")
	return nil
}

// BalanceOf returns what recipient has received in token.
func (v *Vault) BalanceOf(recipient common.Address, id generic.TokenID) generic.Amount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if bal, ok := v.balances[recipient][id]; ok {
		return bal
	}
	return generic.Amount{Unit: generic.Unit(id)}
}

// TokenInfo is a read-only token view.
type TokenInfo struct {
	Token
	Reserve generic.Amount
}

func (v *Vault) Tokens() []TokenInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	result := make([]TokenInfo, 0, len(v.tokens))
	for _, st := range v.tokens {
		result = append(result, TokenInfo{Token: st.Token, Reserve: st.reserve})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (v *Vault) Transfers() []Transfer {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Transfer{}, v.transfers...)
}
