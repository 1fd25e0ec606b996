package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staking-engine/generic"
)

var (
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_PositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	created := time.Date(2025, time.January, 15, 10, 30, 0, 0, time.UTC)
	big := generic.NewAmount(decimal.RequireFromString("451612903225806451612"), generic.UnitUSD)
	pos := generic.Position{
		Strategy:       "flex",
		Key:            generic.PositionKey{Collection: collection, ID: 7},
		Owner:          alice,
		Principal:      generic.USD(1000),
		CreatedAt:      created,
		Remainder:      big,
		TotalWithdrawn: generic.ZeroUSD(),
	}
	require.NoError(t, st.SavePosition(ctx, pos))

	got, err := st.GetPosition(ctx, "flex", pos.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pos.Key, got.Key)
	assert.Equal(t, alice, got.Owner)
	assert.True(t, pos.Principal.Equal(got.Principal))
	assert.Equal(t, "451612903225806451612", got.Remainder.Value.String())
	assert.True(t, created.Equal(got.CreatedAt))
	assert.False(t, got.Sold)

	pos.ClaimedPeriods = 3
	pos.TotalWithdrawn = generic.USD(70)
	pos.Sold = true
	pos.SoldAt = created.AddDate(0, 3, 0)
	require.NoError(t, st.SavePosition(ctx, pos))

	got, err = st.GetPosition(ctx, "flex", pos.Key)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ClaimedPeriods)
	assert.True(t, generic.USD(70).Equal(got.TotalWithdrawn))
	assert.True(t, got.Sold)
	assert.True(t, pos.SoldAt.Equal(got.SoldAt))

	missing, err := st.GetPosition(ctx, "fixed", pos.Key)
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := st.ListPositions(ctx, "flex")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_PeriodsAndCursor(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	_, ok, err := st.GetCursor(ctx, "flex")
	require.NoError(t, err)
	assert.False(t, ok)

	nov := generic.Period{Year: 2024, Month: time.November}
	jan := generic.Period{Year: 2025, Month: time.January}
	for _, p := range []generic.Period{jan, nov} {
		rec := generic.NewPeriodRecord("flex", p)
		rec.Deposits = generic.USD(3000)
		require.NoError(t, st.SavePeriod(ctx, rec))
	}
	rec := generic.NewPeriodRecord("flex", jan)
	rec.Deposits = generic.USD(3000)
	rec.Earnings = generic.USD(60)
	rec.EarningsSet, rec.Closed = true, true
	require.NoError(t, st.SavePeriod(ctx, rec))
	require.NoError(t, st.SaveCursor(ctx, "flex", jan.Next()))

	got, err := st.GetPeriod(ctx, "flex", jan)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, generic.USD(60).Equal(got.Earnings))
	assert.True(t, got.EarningsSet)
	assert.True(t, got.Closed)
	assert.False(t, got.Settled)

	list, err := st.ListPeriods(ctx, "flex")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, nov, list[0].Period)

	cur, ok, err := st.GetCursor(ctx, "flex")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, jan.Next(), cur)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	// GIVEN: A transaction that writes a period and a payout, then fails
	// WHEN: WithTx returns
	// THEN: Neither write is visible

	ctx := context.Background()
	st := newStore(t)
	key := generic.PositionKey{Collection: collection, ID: 1}
	boom := errors.New("treasury down")

	err := st.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.SavePeriod(ctx, generic.NewPeriodRecord("flex", generic.Period{Year: 2025, Month: time.May})))
		require.NoError(t, tx.AppendPayout(ctx, generic.Payout{
			ID: "p-1", Strategy: "flex", Key: key, Recipient: alice, Kind: generic.PayoutClaim,
			USD: generic.USD(10), Token: "USDT", TokenAmount: generic.NewAmount(decimal.NewFromInt(10), "USDT"),
			At: time.Now(),
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	periods, err := st.ListPeriods(ctx, "flex")
	require.NoError(t, err)
	assert.Empty(t, periods)
	payouts, err := st.ListPayouts(ctx, "flex", key)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestStore_PayoutsAppendOnly(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	key := generic.PositionKey{Collection: collection, ID: 1}

	for i, id := range []string{"b", "a"} {
		require.NoError(t, st.AppendPayout(ctx, generic.Payout{
			ID: id, Strategy: "flex", Key: key, Recipient: alice, Kind: generic.PayoutClaim,
			USD: generic.USD(int64(10 * (i + 1))), Token: "USDT",
			TokenAmount: generic.NewAmount(decimal.NewFromInt(int64(i+1)), "USDT"),
			FromPeriod:  i, ToPeriod: i + 1, At: time.Now(),
		}))
	}
	err := st.AppendPayout(ctx, generic.Payout{ID: "a", Strategy: "flex", Key: key, USD: generic.USD(1),
		TokenAmount: generic.NewAmount(decimal.NewFromInt(1), "USDT"), At: time.Now()})
	assert.Error(t, err)

	list, err := st.ListPayouts(ctx, "flex", key)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "insertion order")
	assert.Equal(t, generic.Unit("USDT"), list[1].TokenAmount.Unit)
	assert.Equal(t, 2, list[1].ToPeriod)
}

func TestStore_RegisterStrategyIsImmutable(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	rec := generic.StrategyRecord{ID: "flex", Kind: generic.KindFlexible, ConfigJSON: `{"max_months":60}`}
	require.NoError(t, st.RegisterStrategy(ctx, rec))
	require.NoError(t, st.RegisterStrategy(ctx, rec), "same config on reboot")

	rec.ConfigJSON = `{"max_months":61}`
	err := st.RegisterStrategy(ctx, rec)
	assert.ErrorIs(t, err, generic.ErrConfigChanged)

	list, err := st.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, `{"max_months":60}`, list[0].ConfigJSON)
}

func TestStore_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	k0, err := st.Mint(ctx, collection, alice, generic.USD(1000))
	require.NoError(t, err)
	k1, err := st.Mint(ctx, collection, alice, generic.USD(500))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), k0.ID)
	assert.Equal(t, uint64(1), k1.ID)

	_, err = st.Mint(ctx, collection, alice, generic.ZeroUSD())
	assert.ErrorIs(t, err, generic.ErrInvalidPosition)

	principal, err := st.PrincipalUSD(ctx, k1)
	require.NoError(t, err)
	assert.True(t, generic.USD(500).Equal(principal))

	assert.ErrorIs(t, st.Transfer(ctx, k0, bob, alice), generic.ErrNotOwner)
	require.NoError(t, st.Transfer(ctx, k0, alice, bob))
	owner, err := st.OwnerOf(ctx, k0)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	missing := generic.PositionKey{Collection: collection, ID: 99}
	ok, err := st.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = st.OwnerOf(ctx, missing)
	assert.ErrorIs(t, err, generic.ErrItemNotFound)
	assert.ErrorIs(t, st.Transfer(ctx, missing, alice, bob), generic.ErrItemNotFound)
}

func TestStore_BindAndBurnItem(t *testing.T) {
	// GIVEN: A minted item
	// WHEN: Binding it to two strategies, then burning it in a transaction
	// THEN: The second bind fails, a rolled-back burn leaves the item live,
	//       a committed burn hides its owner

	ctx := context.Background()
	st := newStore(t)
	key, err := st.Mint(ctx, collection, alice, generic.USD(1000))
	require.NoError(t, err)

	require.NoError(t, st.WithTx(ctx, func(tx generic.Store) error {
		return tx.BindItem(ctx, key, "flex-5y")
	}))
	err = st.WithTx(ctx, func(tx generic.Store) error {
		return tx.BindItem(ctx, key, "fixed-5y")
	})
	assert.ErrorIs(t, err, generic.ErrPositionExists)

	item, err := st.GetItem(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, generic.StrategyID("flex-5y"), item.Strategy)
	assert.False(t, item.Burned)

	rollback := errors.New("payout failed")
	err = st.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.BurnItem(ctx, key); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)
	owner, err := st.OwnerOf(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	require.NoError(t, st.WithTx(ctx, func(tx generic.Store) error {
		return tx.BurnItem(ctx, key)
	}))
	_, err = st.OwnerOf(ctx, key)
	assert.ErrorIs(t, err, generic.ErrInvalidPosition)
	ok, err := st.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, st.Transfer(ctx, key, alice, bob), generic.ErrInvalidPosition)

	missing := generic.PositionKey{Collection: collection, ID: 99}
	assert.ErrorIs(t, st.BindItem(ctx, missing, "flex-5y"), generic.ErrInvalidPosition)
	assert.ErrorIs(t, st.BurnItem(ctx, missing), generic.ErrItemNotFound)
}

func TestStore_CommitFailureIsReported(t *testing.T) {
	// GIVEN: A deferred foreign key that is only checked at commit
	// WHEN: The callback succeeds but violates it
	// THEN: WithTx returns ErrCommitFailed

	ctx := context.Background()
	st := newStore(t)
	_, err := st.db.ExecContext(ctx, `
	CREATE TABLE parents (id INTEGER PRIMARY KEY);
	CREATE TABLE children (
		parent_id INTEGER REFERENCES parents(id) DEFERRABLE INITIALLY DEFERRED
	);`)
	require.NoError(t, err)

	err = st.WithTx(ctx, func(tx generic.Store) error {
		_, err := tx.(*queries).db.ExecContext(ctx, `INSERT INTO children (parent_id) VALUES (1)`)
		return err
	})
	assert.ErrorIs(t, err, generic.ErrCommitFailed)
	assert.Equal(t, "commit_failed", generic.ErrorCode(err))
}
