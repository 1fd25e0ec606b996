/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Flexible claim flow through items, stake, clock and claim endpoints
- Fixed lock: eligibility details, sale, sold positions
- Error mapping (status codes and codes)
- Operator-only endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/metrics"
	"github.com/warp/staking-engine/store/sqlite"
	"github.com/warp/staking-engine/treasury"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	holder     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	operator   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

type testServer struct {
	router   http.Handler
	clock    *generic.ManualClock
	registry *factory.Registry
	vault    *treasury.Vault
	metrics  *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := generic.NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	vault := treasury.NewVault(clock, zerolog.Nop())
	require.NoError(t, vault.AddToken(
		treasury.Token{ID: "USDT", Decimals: 6, PriceUSD: decimal.NewFromInt(1)},
		generic.NewAmount(decimal.New(1_000_000, 6), "USDT")))

	m := metrics.New("test", prometheus.NewRegistry())
	deps := generic.Deps{
		Store:     db,
		Positions: db,
		Treasury:  vault,
		Operators: generic.NewOperatorSet(operator),
		Clock:     clock,
		Logger:    zerolog.Nop(),
		Recorder:  m,
	}
	f := factory.NewStrategyFactory(deps, db)
	var defs []factory.StrategyJSON
	for _, js := range []string{
		factory.FiveYearsFlexibleJSON("flex-5y", "Five years flexible"),
		factory.FiveYearsFixedJSON("fixed-5y", "Five years fixed"),
	} {
		sj, err := f.ParseStrategy(js)
		require.NoError(t, err)
		defs = append(defs, sj)
	}
	registry, err := f.BuildAll(ctx, defs)
	require.NoError(t, err)

	h := NewHandler(registry, db, vault, deps.Operators, clock, zerolog.Nop())
	h.Ping = db.Ping
	router := NewRouter(h, RouterOptions{Logger: zerolog.Nop(), Metrics: m})
	return &testServer{router: router, clock: clock, registry: registry, vault: vault, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) setClock(t *testing.T, now time.Time) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/admin/clock", SetClockRequest{Now: now})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// mintAndStake mints a 1000 USD item for holder and stakes it in strategy.
func (s *testServer) mintAndStake(t *testing.T, strategy string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/items", MintRequest{
		Collection:   collection.Hex(),
		Owner:        holder.Hex(),
		PrincipalUSD: "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[ItemDTO](t, rec)

	rec = s.do(t, http.MethodPost, "/api/strategies/"+strategy+"/positions", StakeRequest{
		Collection: collection.Hex(),
		PositionID: item.PositionID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pos := decode[PositionDTO](t, rec)
	assert.Equal(t, "1000", pos.PrincipalUSD)

	return "/api/strategies/" + strategy + "/positions/" + collection.Hex() + "/" + jsonNumber(item.PositionID)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func jsonNumber(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func payout(caller common.Address) PayoutRequest {
	return PayoutRequest{Caller: caller.Hex(), Token: "USDT"}
}

// =============================================================================
// FLEXIBLE FLOW
// =============================================================================

func TestAPI_FlexibleClaimFlow(t *testing.T) {
	// GIVEN: 1000 USD staked on Jan 1 in the five-year flexible strategy
	// WHEN: Claiming before and after the first period closes
	// THEN: no_rewards_yet, then 10 USD paid as 10 USDT

	s := newTestServer(t)
	pos := s.mintAndStake(t, "flex-5y")

	rec := s.do(t, http.MethodPost, pos+"/claim", payout(holder))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_rewards_yet", decode[ErrorResponse](t, rec).Code)

	s.setClock(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))

	rec = s.do(t, http.MethodGet, pos+"/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pending := decode[PendingDTO](t, rec)
	assert.Equal(t, "10", pending.USD)
	assert.Equal(t, 0, pending.FromPeriod)
	assert.Equal(t, 1, pending.ToPeriod)
	require.Len(t, pending.Periods, 1)
	assert.False(t, pending.Periods[0].UsesPool)

	rec = s.do(t, http.MethodPost, pos+"/claim", payout(holder))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[ReceiptDTO](t, rec)
	assert.Equal(t, "10", receipt.USD)
	assert.Equal(t, "10000000", receipt.TokenAmount)
	assert.Equal(t, "claim", receipt.Kind)
	assert.Equal(t, 1, receipt.Position.ClaimedPeriods)
	require.NotNil(t, receipt.Position.NextClaimAt)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), receipt.Position.NextClaimAt.UTC())

	rec = s.do(t, http.MethodGet, pos+"/payouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PayoutDTO](t, rec), 1)

	assert.Equal(t, "10000000", s.vault.BalanceOf(holder, "USDT").Value.String())
}

func TestAPI_PeriodLedgerEndpoints(t *testing.T) {
	s := newTestServer(t)
	base := "/api/strategies/flex-5y"
	s.mintAndStake(t, "flex-5y")

	rec := s.do(t, http.MethodGet, base+"/current-period", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cur := decode[CurrentPeriodDTO](t, rec)
	assert.True(t, cur.Started)
	assert.Equal(t, "2025-01", cur.Period)

	// Deposits of a staked position start at its first pool period.
	rec = s.do(t, http.MethodGet, base+"/periods/2025-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", decode[PeriodDTO](t, rec).DepositsUSD)

	rec = s.do(t, http.MethodPut, base+"/periods/2025-01/earnings",
		SetEarningsRequest{Caller: operator.Hex(), AmountUSD: "5"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "period_not_closed", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPut, base+"/periods/2025-01/earnings",
		SetEarningsRequest{Caller: stranger.Hex(), AmountUSD: "5"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.setClock(t, time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC))
	rec = s.do(t, http.MethodPost, base+"/update-deposits", CallerRequest{Caller: operator.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-02", decode[CurrentPeriodDTO](t, rec).Period)

	rec = s.do(t, http.MethodPut, base+"/periods/2025-01/earnings",
		SetEarningsRequest{Caller: operator.Hex(), AmountUSD: "12.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	period := decode[PeriodDTO](t, rec)
	assert.Equal(t, "12.5", period.EarningsUSD)
	assert.True(t, period.EarningsSet)
	assert.True(t, period.Closed)
}

// =============================================================================
// FIXED FLOW
// =============================================================================

func TestAPI_FixedSellAfterLock(t *testing.T) {
	// GIVEN: 1000 USD in the five-year fixed strategy
	// WHEN: Selling before the lock expires, after it, then again
	// THEN: 409 with eligible_at, 200 with the full principal, 410

	s := newTestServer(t)
	pos := s.mintAndStake(t, "fixed-5y")

	rec := s.do(t, http.MethodPost, pos+"/sell", payout(holder))
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "cannot_sell_yet", errResp.Code)
	assert.Equal(t, "2030-01-01T00:00:00Z", errResp.Details["eligible_at"])

	s.setClock(t, time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC))
	rec = s.do(t, http.MethodPost, pos+"/claim", payout(holder))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "750", decode[ReceiptDTO](t, rec).USD)

	rec = s.do(t, http.MethodPost, pos+"/sell", payout(holder))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[ReceiptDTO](t, rec)
	assert.Equal(t, "1000", receipt.USD)
	assert.True(t, receipt.Position.Sold)

	rec = s.do(t, http.MethodPost, pos+"/sell", payout(holder))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "invalid_position", decode[ErrorResponse](t, rec).Code)

	// The sale burned the item: it stays visible but cannot be staked again
	rec = s.do(t, http.MethodGet, "/api/items/"+collection.Hex()+"/0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decode[ItemDTO](t, rec)
	assert.True(t, item.Burned)
	assert.Equal(t, "fixed-5y", item.StrategyID)

	rec = s.do(t, http.MethodPost, "/api/strategies/flex-5y/positions", StakeRequest{
		Collection: collection.Hex(),
		PositionID: 0,
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "invalid_position", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	pos := s.mintAndStake(t, "flex-5y")
	fixedPos := s.mintAndStake(t, "fixed-5y")
	s.setClock(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown strategy", http.MethodGet, "/api/strategies/nope", nil, http.StatusNotFound, "strategy_not_found"},
		{"no ledger on fixed", http.MethodGet, "/api/strategies/fixed-5y/current-period", nil, http.StatusNotFound, "strategy_not_found"},
		{"no pending on fixed", http.MethodGet, fixedPos + "/pending", nil, http.StatusNotFound, "strategy_not_found"},
		{"not the holder", http.MethodPost, pos + "/claim", payout(stranger), http.StatusForbidden, "not_owner"},
		{"unsupported token", http.MethodPost, pos + "/claim", PayoutRequest{Caller: holder.Hex(), Token: "DOGE"}, http.StatusBadRequest, "token_not_supported"},
		{"slippage", http.MethodPost, pos + "/claim", PayoutRequest{Caller: holder.Hex(), Token: "USDT", MinOut: "10000001"}, http.StatusUnprocessableEntity, "slippage_exceeded"},
		{"bad address", http.MethodPost, pos + "/claim", PayoutRequest{Caller: "alice", Token: "USDT"}, http.StatusBadRequest, "invalid_request"},
		{"bad period", http.MethodGet, "/api/strategies/flex-5y/periods/2025-13", nil, http.StatusBadRequest, "invalid_request"},
		{"unknown item", http.MethodGet, "/api/items/" + collection.Hex() + "/99", nil, http.StatusNotFound, "item_not_found"},
		{"stake twice", http.MethodPost, "/api/strategies/flex-5y/positions", StakeRequest{Collection: collection.Hex(), PositionID: 0}, http.StatusConflict, "position_exists"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPI_UnknownFieldRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/items",
		bytes.NewBufferString(`{"collection":"0x00000000000000000000000000000000000000c0","owner":"0x00000000000000000000000000000000000000aa","principal_usd":"1","apy":3}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ITEMS, TREASURY, ADMIN
// =============================================================================

func TestAPI_TransferMovesClaimRights(t *testing.T) {
	// GIVEN: A staked item transferred from holder to stranger
	// WHEN: Both claim
	// THEN: Only the new owner is paid

	s := newTestServer(t)
	pos := s.mintAndStake(t, "flex-5y")
	s.setClock(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))

	rec := s.do(t, http.MethodPost, "/api/items/"+collection.Hex()+"/0/transfer",
		TransferRequest{From: holder.Hex(), To: stranger.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, stranger.Hex(), decode[ItemDTO](t, rec).Owner)

	rec = s.do(t, http.MethodPost, pos+"/claim", payout(holder))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(t, http.MethodPost, pos+"/claim", payout(stranger))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, stranger.Hex(), decode[ReceiptDTO](t, rec).Recipient)
}

func TestAPI_SetTokenPrice(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/treasury/tokens/USDT/price", SetPriceRequest{Caller: stranger.Hex(), PriceUSD: "2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/treasury/tokens/USDT/price", SetPriceRequest{Caller: operator.Hex(), PriceUSD: "0.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0.5", decode[TokenDTO](t, rec).PriceUSD)

	rec = s.do(t, http.MethodGet, "/api/treasury/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := decode[[]TokenDTO](t, rec)
	require.Len(t, tokens, 1)
	assert.Equal(t, "1000000000000", tokens[0].Reserve)
}

func TestAPI_ClockNeverMovesBack(t *testing.T) {
	s := newTestServer(t)
	s.setClock(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))

	rec := s.do(t, http.MethodPost, "/api/admin/clock", SetClockRequest{Now: time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), s.clock.Now())
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]StrategyDTO](t, rec)
	require.Len(t, list, 2)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_request_duration_seconds")
}
