package treasury_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/treasury"
)

var holder = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newVault(t *testing.T) *treasury.Vault {
	v := treasury.NewVault(nil, zerolog.Nop())
	require.NoError(t, v.AddToken(treasury.Token{ID: "USDT", Decimals: 6, PriceUSD: decimal.NewFromInt(1)},
		generic.NewAmount(decimal.New(1_000_000, 6), "USDT")))
	require.NoError(t, v.AddToken(treasury.Token{ID: "WARP", Decimals: 18, PriceUSD: decimal.RequireFromString("2.5")},
		generic.NewAmount(decimal.New(1_000_000, 18), "WARP")))
	return v
}

func TestVault_USDAmountToToken(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	got, err := v.USDAmountToToken(ctx, generic.USD(10), "USDT")
	require.NoError(t, err)
	assert.Equal(t, "10000000", got.Value.String())

	got, err = v.USDAmountToToken(ctx, generic.USD(10), "WARP")
	require.NoError(t, err)
	assert.Equal(t, "4000000000000000000", got.Value.String())

	_, err = v.USDAmountToToken(ctx, generic.USD(10), "DOGE")
	assert.ErrorIs(t, err, generic.ErrTokenNotSupported)
}

func TestVault_Payout_MovesReserve(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	amount := generic.NewAmount(decimal.New(25, 6), "USDT")
	require.NoError(t, v.Payout(ctx, holder, "USDT", amount))

	assert.True(t, amount.Equal(v.BalanceOf(holder, "USDT")))
	require.Len(t, v.Transfers(), 1)
	for _, tok := range v.Tokens() {
		if tok.ID == "USDT" {
			assert.Equal(t, decimal.New(999_975, 6).String(), tok.Reserve.Value.String())
		}
	}
}

func TestVault_Payout_InsufficientReserves(t *testing.T) {
	v := newVault(t)
	err := v.Payout(context.Background(), holder, "USDT", generic.NewAmount(decimal.New(2_000_000, 6), "USDT"))
	assert.ErrorIs(t, err, generic.ErrInsufficientReserves)
	assert.True(t, v.BalanceOf(holder, "USDT").IsZero())
	assert.Empty(t, v.Transfers())
}

func TestVault_SetPrice(t *testing.T) {
	v := newVault(t)
	require.NoError(t, v.SetPrice("USDT", decimal.NewFromInt(2)))

	got, err := v.USDAmountToToken(context.Background(), generic.USD(10), "USDT")
	require.NoError(t, err)
	assert.Equal(t, "5000000", got.Value.String())

	assert.Error(t, v.SetPrice("USDT", decimal.Zero))
}
