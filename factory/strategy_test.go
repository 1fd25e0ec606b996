package factory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staking-engine/fixed"
	"github.com/warp/staking-engine/flex"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/generic/store"
	"github.com/warp/staking-engine/treasury"
)

func newFactory(t *testing.T) (*StrategyFactory, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := generic.NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	deps := generic.Deps{
		Store:     mem,
		Positions: mem,
		Treasury:  treasury.NewVault(clock, zerolog.Nop()),
		Clock:     clock,
		Logger:    zerolog.Nop(),
	}
	return NewStrategyFactory(deps, mem), mem
}

func TestParseStrategy_Presets(t *testing.T) {
	f, _ := newFactory(t)

	sj, err := f.ParseStrategy(FiveYearsFlexibleJSON("flex-5y", "Five years flexible"))
	require.NoError(t, err)
	assert.Equal(t, "flexible", sj.Kind)
	assert.Equal(t, 60, sj.MaxMonths)
	assert.EqualValues(t, 1000, sj.YearDeprecationRateBp)

	sj, err = f.ParseStrategy(FiveYearsFixedJSON("fixed-5y", "Five years fixed"))
	require.NoError(t, err)
	assert.Equal(t, 5, sj.LockYears)
	assert.EqualValues(t, 1500, sj.RewardsRateBp)
}

func TestParseStrategy_Rejects(t *testing.T) {
	f, _ := newFactory(t)

	cases := map[string]string{
		"malformed":     `{"id": `,
		"unknown field": `{"id":"x","kind":"fixed","lock_years":1,"apy":5}`,
		"unknown kind":  `{"id":"x","kind":"perpetual"}`,
		"missing id":    `{"kind":"fixed","lock_years":1}`,
		"no lock":       `{"id":"x","kind":"fixed","rewards_rate_bp":100}`,
		"mixed kinds":   `{"id":"x","kind":"fixed","lock_years":1,"max_months":60}`,
		"negative rate": `{"id":"x","kind":"fixed","lock_years":1,"rewards_rate_bp":-1}`,
		"flex no max":   `{"id":"x","kind":"flexible","initial_months":2,"min_months":12}`,
	}
	for name, js := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseStrategy(js)
			assert.ErrorIs(t, err, generic.ErrInvalidConfig)
		})
	}
}

func TestBuild_CreatesStrategies(t *testing.T) {
	ctx := context.Background()
	f, _ := newFactory(t)

	defs := make([]StrategyJSON, 0, 2)
	for _, js := range []string{
		FiveYearsFixedJSON("fixed-5y", "Fixed"),
		FiveYearsFlexibleJSON("flex-5y", "Flexible"),
	} {
		sj, err := f.ParseStrategy(js)
		require.NoError(t, err)
		defs = append(defs, sj)
	}

	reg, err := f.BuildAll(ctx, defs)
	require.NoError(t, err)
	require.Len(t, reg.List(), 2)

	s, err := reg.Get("fixed-5y")
	require.NoError(t, err)
	assert.IsType(t, &fixed.Strategy{}, s)
	assert.Equal(t, defs[0], ToJSON(s))

	s, err = reg.Get("flex-5y")
	require.NoError(t, err)
	assert.IsType(t, &flex.Strategy{}, s)
	assert.Equal(t, defs[1], ToJSON(s))

	_, err = reg.Operator("flex-5y")
	assert.NoError(t, err)
	_, err = reg.Operator("fixed-5y")
	assert.ErrorIs(t, err, generic.ErrStrategyNotFound)
	assert.Len(t, reg.Operators(), 1)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, generic.ErrStrategyNotFound)
}

func TestBuild_TimelineChecks(t *testing.T) {
	// GIVEN: A schema-valid flexible definition whose overlap period is the last period
	// WHEN: Building it
	// THEN: The strategy's own validation rejects it

	f, _ := newFactory(t)
	sj, err := f.ParseStrategy(FlexibleStrategyJSON("x", "x", 59, 100, 12, 60, 0))
	require.NoError(t, err)

	_, err = f.Build(context.Background(), sj)
	assert.ErrorIs(t, err, generic.ErrInvalidConfig)
}

func TestBuild_ConfigIsImmutable(t *testing.T) {
	// GIVEN: A strategy registered at first boot
	// WHEN: Booting again with a different max_months for the same id
	// THEN: ErrConfigChanged; a rename alone is accepted

	ctx := context.Background()
	f, mem := newFactory(t)

	sj, err := f.ParseStrategy(FiveYearsFlexibleJSON("flex-5y", "Flexible"))
	require.NoError(t, err)
	_, err = f.Build(ctx, sj)
	require.NoError(t, err)

	renamed := sj
	renamed.Name = "Flexible (renamed)"
	_, err = f.Build(ctx, renamed)
	assert.NoError(t, err)

	changed := sj
	changed.MaxMonths = 48
	_, err = f.Build(ctx, changed)
	assert.ErrorIs(t, err, generic.ErrConfigChanged)

	recs, err := mem.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, generic.KindFlexible, recs[0].Kind)
}

func TestBuildAll_DuplicateIDs(t *testing.T) {
	f, _ := newFactory(t)
	sj, err := f.ParseStrategy(FiveYearsFixedJSON("dup", "A"))
	require.NoError(t, err)

	_, err = f.BuildAll(context.Background(), []StrategyJSON{sj, sj})
	assert.ErrorIs(t, err, generic.ErrInvalidConfig)
}
