/*
scenarios.go - Demo scenario runners for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that drive the engine through a realistic
	lifecycle on a manual clock. Each scenario mints an item, stakes it in
	a configured strategy, moves the clock month by month and records
	every claim and sale it makes.

AVAILABLE SCENARIOS:

	flexible-lifecycle: Monthly UpdateDeposits, SetEarnings and Claim
	                    until the minimum lock, then Sell
	fixed-unlock:       Claim and Sell once the fixed lock expires

HOW SCENARIOS WORK:
 1. Pick the first strategy of the scenario's kind
 2. Mint an item for the demo holder and stake it
 3. Move the clock to the start of each following period
 4. Run the operator calls, then the holder calls
 5. Record each step; domain errors are recorded, not fatal

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "flexible-lifecycle", "caller": "0x..."}

	caller must be an operator. The server must run on a manual clock.

NOTE:

	Scenarios move the shared clock forward. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - factory/presets.go: Strategy JSON presets
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/warp/staking-engine/fixed"
	"github.com/warp/staking-engine/flex"
	"github.com/warp/staking-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "flexible-lifecycle",
		Name:        "Flexible Lifecycle",
		Description: "Monthly deposits, 2% earnings and claims until the minimum lock, then sale",
		Kind:        string(generic.KindFlexible),
	},
	{
		ID:          "fixed-unlock",
		Name:        "Fixed Unlock",
		Description: "Lump-sum claim and principal sale once the fixed lock expires",
		Kind:        string(generic.KindFixed),
	},
}

var (
	scenarioCollection = common.HexToAddress("0x00000000000000000000000000000000000c0111")
	scenarioHolder     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

const (
	scenarioPrincipalUSD = 1000
	// scenarioEarningsBps is the monthly yield reported on each period's deposits.
	scenarioEarningsBps generic.BasisPoints = 200
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario runs a predefined scenario and returns its steps.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	clock, ok := h.Clock.(*generic.ManualClock)
	if !ok {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "scenarios need a manual clock",
			Code:  "manual_clock_required",
		})
		return
	}
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	operator := common.HexToAddress(req.Caller)
	if !h.Operators.IsOperator(operator) {
		h.writeError(w, fmt.Errorf("%w: %s is not an operator", generic.ErrUnauthorized, req.Caller))
		return
	}
	token, ok := h.firstToken()
	if !ok {
		writeBadRequest(w, "treasury has no tokens", nil)
		return
	}

	ctx := r.Context()
	var (
		result *ScenarioResultDTO
		err    error
	)
	switch req.ScenarioID {
	case "flexible-lifecycle":
		result, err = h.runFlexibleLifecycle(ctx, clock, operator, token)
	case "fixed-unlock":
		result, err = h.runFixedUnlock(ctx, clock, token)
	default:
		writeBadRequest(w, "unknown scenario", nil)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.Log.Info().
		Str("scenario", req.ScenarioID).
		Str("strategy", result.Strategy).
		Int("steps", len(result.Steps)).
		Msg("scenario loaded")
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SCENARIO RUNNERS
// =============================================================================

func (h *Handler) runFlexibleLifecycle(ctx context.Context, clock *generic.ManualClock,
	operator common.Address, token generic.TokenID) (*ScenarioResultDTO, error) {
	s, err := h.firstStrategy(generic.KindFlexible)
	if err != nil {
		return nil, err
	}
	op := s.(generic.PeriodOperator)
	cfg := s.(*flex.Strategy).Config()

	res, key, err := h.mintAndStake(ctx, s)
	if err != nil {
		return nil, err
	}

	for month := 0; month < cfg.MinMonths; month++ {
		closed := generic.PeriodOf(clock.Now())
		clock.Set(closed.Next().Start())

		if _, err := op.UpdateDeposits(ctx, operator); err != nil {
			res.record(clock.Now(), "update_deposits", nil, err)
			continue
		}
		rec, err := op.PeriodState(ctx, closed)
		if err != nil {
			return nil, err
		}
		earnings, err := rec.Deposits.Bps(scenarioEarningsBps)
		if err != nil {
			return nil, err
		}
		if err := op.SetEarnings(ctx, operator, closed, earnings); err != nil {
			res.record(clock.Now(), "set_earnings", nil, err)
		}

		receipt, err := s.Claim(ctx, generic.PayoutRequest{Key: key, Caller: scenarioHolder, Token: token})
		res.record(clock.Now(), "claim", receipt, err)
	}

	receipt, err := s.Sell(ctx, generic.PayoutRequest{Key: key, Caller: scenarioHolder, Token: token})
	res.record(clock.Now(), "sell", receipt, err)
	return res, nil
}

func (h *Handler) runFixedUnlock(ctx context.Context, clock *generic.ManualClock, token generic.TokenID) (*ScenarioResultDTO, error) {
	s, err := h.firstStrategy(generic.KindFixed)
	if err != nil {
		return nil, err
	}
	fs := s.(*fixed.Strategy)

	res, key, err := h.mintAndStake(ctx, s)
	if err != nil {
		return nil, err
	}
	pos, err := s.Position(ctx, key)
	if err != nil {
		return nil, err
	}

	req := generic.PayoutRequest{Key: key, Caller: scenarioHolder, Token: token}
	receipt, err := s.Claim(ctx, req)
	res.record(clock.Now(), "claim", receipt, err)

	clock.Set(fs.UnlockAt(pos))
	receipt, err = s.Claim(ctx, req)
	res.record(clock.Now(), "claim", receipt, err)
	receipt, err = s.Sell(ctx, req)
	res.record(clock.Now(), "sell", receipt, err)
	return res, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) mintAndStake(ctx context.Context, s generic.Strategy) (*ScenarioResultDTO, generic.PositionKey, error) {
	key, err := h.Items.Mint(ctx, scenarioCollection, scenarioHolder, generic.USD(scenarioPrincipalUSD))
	if err != nil {
		return nil, generic.PositionKey{}, err
	}
	if _, err := s.Stake(ctx, key); err != nil {
		return nil, generic.PositionKey{}, err
	}
	return &ScenarioResultDTO{
		Strategy: string(s.ID()),
		Item: ItemDTO{
			Collection:   key.Collection.Hex(),
			PositionID:   key.ID,
			Owner:        scenarioHolder.Hex(),
			PrincipalUSD: generic.USD(scenarioPrincipalUSD).Dollars().String(),
		},
	}, key, nil
}

func (h *Handler) firstStrategy(kind generic.StrategyKind) (generic.Strategy, error) {
	for _, s := range h.Strategies.List() {
		if s.Kind() == kind {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s strategy configured", generic.ErrStrategyNotFound, kind)
}

func (h *Handler) firstToken() (generic.TokenID, bool) {
	tokens := h.Vault.Tokens()
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[0].ID, true
}

func (r *ScenarioResultDTO) record(at time.Time, action string, receipt *generic.Receipt, err error) {
	step := ScenarioStepDTO{At: at, Action: action}
	switch {
	case err != nil:
		step.Error = generic.ErrorCode(err)
		step.Detail = err.Error()
	case receipt != nil:
		step.USD = receipt.USD.Dollars().String()
		step.TokenAmount = receipt.TokenAmount.Value.String()
		step.ToPeriod = receipt.ToPeriod
	}
	r.Steps = append(r.Steps, step)
}
