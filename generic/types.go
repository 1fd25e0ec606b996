/*
Package generic provides the core staking accounting engine.

PURPOSE:
  This package contains the strategy-agnostic types shared by every staking
  strategy: fixed-point money, calendar periods, positions, the per-period
  deposit/earnings ledger and the collaborator interfaces (treasury,
  position source, operators, clock). Strategy packages (fixed/, flex/)
  combine them with the pure math in accrual/.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: An integer count of base units with a unit tag (USD or a token)
  - BasisPoints: Rates expressed in 1/10000
  - PositionKey: (collection address, id) identifying a staked position
  - StrategyID / TokenID: Type-safe identifiers

FIXED-POINT RULES:
  1. USD amounts carry 18 decimals: 1 USD = 10^18 base units
  2. Every result is an integer; division truncates toward zero
  3. Results outside [0, 2^256-1] are an ArithmeticFault, never wrapped
  4. Multiplication happens before division (MulDiv) to keep precision

USAGE:
  principal := generic.USD(1000)
  reward, err := principal.Bps(100) // 1% -> 10 USD
  if err != nil {
      return err // ArithmeticFault
  }

SEE ALSO:
  - period.go: Calendar month periods
  - position.go: Staked position record
  - ledger.go: Per-period deposits and earnings
*/
package generic

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Integer base units with a unit tag
// =============================================================================

// Amount is an integer quantity of base units. USD amounts use 18 decimals,
// token amounts use the token's own decimals.
type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitUSD Unit = "usd"
)

// USDDecimals is the number of decimals of USD base units.
const USDDecimals = 18

var maxUint256 = decimal.NewFromBigInt(
	new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 0)

// NewAmount wraps an integer number of base units.
func NewAmount(base decimal.Decimal, unit Unit) Amount {
	return Amount{Value: base.Truncate(0), Unit: unit}
}

// USD returns whole dollars as USD base units.
func USD(dollars int64) Amount {
	return Amount{Value: decimal.New(dollars, USDDecimals), Unit: UnitUSD}
}

// ZeroUSD returns a zero USD amount.
func ZeroUSD() Amount {
	return Amount{Value: decimal.Zero, Unit: UnitUSD}
}

// ParseUSD parses a human dollar string ("1000", "12.5") into base units.
// Digits beyond 18 decimals are truncated.
func ParseUSD(s string) (Amount, error) {
	return ParseUnits(s, USDDecimals, UnitUSD)
}

// ParseUnits parses a human decimal string into base units of the given precision.
func ParseUnits(s string, decimals int32, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	a := Amount{Value: d.Shift(decimals).Truncate(0), Unit: unit}
	if a.Value.GreaterThan(maxUint256) {
		return Amount{}, &ArithmeticError{Op: "parse", Detail: "exceeds 256 bits"}
	}
	return a, nil
}

// ParseBaseUnits parses an integer string of base units.
func ParseBaseUnits(s string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid base units %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, fmt.Errorf("invalid base units %q: not an integer", s)
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) Zero() Amount                  { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) IsZero() bool                  { return a.Value.IsZero() }
func (a Amount) IsPositive() bool              { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool              { return a.Value.IsNegative() }
func (a Amount) Neg() Amount                   { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) LessThan(b Amount) bool        { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool     { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool           { return a.Value.Equal(b.Value) }
func (a Amount) String() string                { return a.Value.String() }

// Dollars renders a USD amount in whole dollars (for logs and DTOs).
func (a Amount) Dollars() decimal.Decimal {
	return a.Value.Shift(-USDDecimals)
}

// Add returns a+b. Fails when the magnitude exceeds 256 bits.
func (a Amount) Add(b Amount) (Amount, error) {
	r := Amount{Value: a.Value.Add(b.Value), Unit: a.Unit}
	if r.Value.Abs().GreaterThan(maxUint256) {
		return Amount{}, &ArithmeticError{Op: "add", Detail: "overflow"}
	}
	return r, nil
}

// Sub returns a-b. A negative result is an underflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	r := Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit}
	if r.Value.IsNegative() {
		return Amount{}, &ArithmeticError{Op: "sub", Detail: fmt.Sprintf("underflow: %s - %s", a.Value, b.Value)}
	}
	return r, nil
}

// MulDiv returns floor(a * mul / div) for non-negative operands.
func (a Amount) MulDiv(mul, div decimal.Decimal) (Amount, error) {
	if div.IsZero() {
		return Amount{}, &ArithmeticError{Op: "div", Detail: "division by zero"}
	}
	if a.Value.IsNegative() || mul.IsNegative() || div.IsNegative() {
		return Amount{}, &ArithmeticError{Op: "muldiv", Detail: "negative operand"}
	}
	product := a.Value.Mul(mul)
	if product.GreaterThan(maxUint256) {
		return Amount{}, &ArithmeticError{Op: "mul", Detail: "overflow"}
	}
	q, _ := product.QuoRem(div, 0)
	return Amount{Value: q, Unit: a.Unit}, nil
}

// Bps returns floor(a * rate / 10000).
func (a Amount) Bps(rate BasisPoints) (Amount, error) {
	return a.MulDiv(rate.Decimal(), decimal.NewFromInt(BasisPointsDenominator))
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if b.LessThan(a) {
		return b
	}
	return a
}

// =============================================================================
// RATES
// =============================================================================

// BasisPoints is a rate in 1/10000.
type BasisPoints int64

const BasisPointsDenominator = 10000

func (b BasisPoints) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(b)) }

// =============================================================================
// IDs - Type-safe identifiers
// =============================================================================

type (
	StrategyID string
	TokenID    string
)

// PositionKey identifies a staked position: the minting collection and the
// position id within it.
type PositionKey struct {
	Collection common.Address
	ID         uint64
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Collection.Hex(), k.ID)
}

// ParsePositionKey builds a key from a hex collection address and a decimal id.
func ParsePositionKey(collection, id string) (PositionKey, error) {
	if !common.IsHexAddress(collection) {
		return PositionKey{}, fmt.Errorf("invalid collection address %q", collection)
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return PositionKey{}, fmt.Errorf("invalid position id %q: %w", id, err)
	}
	return PositionKey{Collection: common.HexToAddress(collection), ID: n}, nil
}

// ParseAddress validates and parses a hex account address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
