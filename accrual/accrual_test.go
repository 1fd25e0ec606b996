package accrual_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staking-engine/accrual"
	"github.com/warp/staking-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var schedule = accrual.Schedule{
	InitialMonths: 2,
	InitialRate:   100,
	MinMonths:     12,
	MaxMonths:     60,
}

func base(s string) generic.Amount {
	a, err := generic.ParseBaseUnits(s, generic.UnitUSD)
	if err != nil {
		panic(err)
	}
	return a
}

func pool(deposits, earnings int64) generic.Pool {
	return generic.Pool{
		Period:   generic.Period{Year: 2025, Month: time.March},
		Deposits: generic.USD(deposits),
		Earnings: generic.USD(earnings),
	}
}

// =============================================================================
// BOUNDARY ALLOCATION
// =============================================================================

func TestRemainder_AlignedStake_IsZero(t *testing.T) {
	r, err := accrual.Remainder(generic.USD(1000), time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestRemainder_MidMonth(t *testing.T) {
	tests := []struct {
		name    string
		created time.Time
		want    string
	}{
		{"jan 15", time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC), "451612903225806451612"},
		{"leap feb 29", time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), "965517241379310344827"},
		{"apr 30", time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC), "966666666666666666666"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := accrual.Remainder(generic.USD(1000), tt.created)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Value.String())
		})
	}
}

// =============================================================================
// BRANCH TABLE
// =============================================================================

func TestRewardForPeriod_AlignedScenario(t *testing.T) {
	// GIVEN: 1000 USD staked on the 1st, initial 2 months at 1%
	// WHEN: Computing rewards per period with a pool of 2000 deposits / 50 earnings
	// THEN: Periods 0 and 1 pay 10; period 2 pays only the pool share

	p := generic.USD(1000)
	r := generic.ZeroUSD()
	pl := pool(2000, 50)

	tests := []struct {
		index    int
		total    generic.Amount
		usesPool bool
	}{
		{0, generic.USD(10), false},
		{1, generic.USD(10), false},
		{2, generic.USD(25), true},
		{3, generic.USD(25), true},
		{58, generic.USD(25), true},
		{59, generic.ZeroUSD(), false}, // remainder is zero
		{60, generic.ZeroUSD(), false},
	}
	for _, tt := range tests {
		got, err := schedule.RewardForPeriod(tt.index, p, r, pl)
		require.NoError(t, err, "index %d", tt.index)
		assert.True(t, tt.total.Equal(got.Total), "index %d: want %s got %s", tt.index, tt.total, got.Total)
		assert.Equal(t, tt.usesPool, got.UsesPool, "index %d", tt.index)
	}
}

func TestRewardForPeriod_BoundaryPeriodBlendsBothPhases(t *testing.T) {
	// GIVEN: 1000 USD with a 400 USD remainder
	// WHEN: Computing period 0, the overlap period and the last period
	// THEN: Period 0 earns on 600, overlap earns 1% of 400 plus a share of 600,
	//       the last period earns a share of 400

	p := generic.USD(1000)
	r := generic.USD(400)
	pl := pool(2000, 50)

	got, err := schedule.RewardForPeriod(0, p, r, pl)
	require.NoError(t, err)
	assert.True(t, generic.USD(6).Equal(got.Total))

	got, err = schedule.RewardForPeriod(2, p, r, pl)
	require.NoError(t, err)
	assert.True(t, generic.USD(4).Equal(got.Initial))
	assert.True(t, generic.USD(15).Equal(got.Proportional))
	assert.True(t, generic.USD(19).Equal(got.Total))

	got, err = schedule.RewardForPeriod(59, p, r, pl)
	require.NoError(t, err)
	assert.True(t, got.Initial.IsZero())
	assert.True(t, generic.USD(10).Equal(got.Proportional))
}

func TestRewardForPeriod_ZeroEarnings_IsZeroNotFault(t *testing.T) {
	got, err := schedule.RewardForPeriod(5, generic.USD(1000), generic.ZeroUSD(), pool(1000, 0))
	require.NoError(t, err)
	assert.True(t, got.Total.IsZero())
}

func TestRewardForPeriod_ZeroDeposits_Fails(t *testing.T) {
	_, err := schedule.RewardForPeriod(5, generic.USD(1000), generic.ZeroUSD(), pool(0, 0))
	assert.ErrorIs(t, err, generic.ErrNoDeposits)

	var nd *generic.NoDepositsError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, time.March, nd.Period.Month)
}

func TestRewardForPeriod_InitialPhaseNeverReadsPool(t *testing.T) {
	// An empty pool is fine while the position has no contribution.
	got, err := schedule.RewardForPeriod(1, generic.USD(1000), generic.ZeroUSD(), pool(0, 0))
	require.NoError(t, err)
	assert.True(t, generic.USD(10).Equal(got.Total))
}

func TestRewardForPeriod_NoRewardAtOrBeyondMax(t *testing.T) {
	// Property: whatever the pool, index >= MaxMonths earns nothing.
	pools := []generic.Pool{pool(0, 0), pool(1, 1_000_000), pool(1000, 5)}
	remainders := []generic.Amount{generic.ZeroUSD(), generic.USD(1), base("999999999999999999999")}
	for i := schedule.MaxMonths; i < schedule.MaxMonths+50; i++ {
		for _, pl := range pools {
			for _, r := range remainders {
				got, err := schedule.RewardForPeriod(i, generic.USD(1000), r, pl)
				require.NoError(t, err)
				assert.True(t, got.Total.IsZero(), "index %d", i)
			}
		}
	}
}

func TestSchedule_PrincipalConservation(t *testing.T) {
	// Property: across the whole timeline the initial phase covers exactly
	// InitialMonths full principals and the pool phase MaxMonths-InitialMonths-1,
	// whatever the creation day.
	p := generic.USD(1000)
	for day := 1; day <= 31; day++ {
		created := time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC)
		r, err := accrual.Remainder(p, created)
		require.NoError(t, err)

		initial := decimal.Zero
		contributed := decimal.Zero
		for i := 0; i < schedule.MaxMonths+3; i++ {
			eff, ok, err := schedule.InitialPrincipal(i, p, r)
			require.NoError(t, err)
			if ok {
				initial = initial.Add(eff.Value)
			}
			eff, ok, err = schedule.Contribution(i, p, r)
			require.NoError(t, err)
			if ok {
				contributed = contributed.Add(eff.Value)
			}
		}
		k := int64(schedule.InitialMonths)
		m := int64(schedule.MaxMonths)
		assert.True(t, p.Value.Mul(decimal.NewFromInt(k)).Equal(initial), "day %d", day)
		assert.True(t, p.Value.Mul(decimal.NewFromInt(m-k-1)).Equal(contributed), "day %d", day)
	}
}

func TestContribution_DepositSchedule(t *testing.T) {
	// GIVEN: 1000 USD with remainder 300
	// THEN: Nothing before InitialMonths, P-R at it, P in between, R at Max-1, nothing after
	p := generic.USD(1000)
	r := generic.USD(300)

	expect := map[int]generic.Amount{
		0:  generic.ZeroUSD(),
		1:  generic.ZeroUSD(),
		2:  generic.USD(700),
		3:  generic.USD(1000),
		58: generic.USD(1000),
		59: generic.USD(300),
		60: generic.ZeroUSD(),
	}
	for i, want := range expect {
		got, _, err := schedule.Contribution(i, p, r)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "index %d: want %s got %s", i, want, got)
	}
}

func TestClaimable_CappedAtMax(t *testing.T) {
	from, to := schedule.Claimable(0, 3)
	assert.Equal(t, 0, from)
	assert.Equal(t, 3, to)

	from, to = schedule.Claimable(10, 500)
	assert.Equal(t, 10, from)
	assert.Equal(t, 60, to)

	from, to = schedule.Claimable(60, 500)
	assert.Equal(t, from, to, "nothing left once every period is claimed")
}

// =============================================================================
// DEPRECIATION / FIXED REWARD
// =============================================================================

func TestDepreciate(t *testing.T) {
	// GIVEN: 1000 USD at 10%/year
	// WHEN: Charging 11 months
	// THEN: 1000 - floor(1000*1000*11/120000) in base units
	got, err := accrual.Depreciate(generic.USD(1000), 1000, 11)
	require.NoError(t, err)
	assert.Equal(t, "908333333333333333334", got.Value.String())

	got, err = accrual.Depreciate(generic.USD(1000), 1000, 0)
	require.NoError(t, err)
	assert.True(t, generic.USD(1000).Equal(got))

	got, err = accrual.Depreciate(generic.USD(1000), 1000, 60)
	require.NoError(t, err)
	assert.True(t, generic.USD(500).Equal(got))
}

func TestDepreciate_BeyondPrincipal_Faults(t *testing.T) {
	_, err := accrual.Depreciate(generic.USD(1000), 10000, 13)
	assert.ErrorIs(t, err, generic.ErrArithmeticFault)
}

func TestDepreciationMonths_FirstPeriodFree(t *testing.T) {
	assert.Equal(t, 0, accrual.DepreciationMonths(0))
	assert.Equal(t, 0, accrual.DepreciationMonths(1))
	assert.Equal(t, 11, accrual.DepreciationMonths(12))
}

func TestFixedReward_FiveYears(t *testing.T) {
	got, err := accrual.FixedReward(generic.USD(1000), 1500, 5)
	require.NoError(t, err)
	assert.True(t, generic.USD(750).Equal(got))
}
