/*
handlers.go - HTTP API handlers for the staking engine

PURPOSE:
  Exposes the strategies, the period ledgers, the minting component and the
  treasury via REST API. Handles HTTP request/response, JSON serialization,
  and delegates to the strategies.

ENDPOINTS:
  Strategies:
    GET    /api/strategies                                   List strategies
    GET    /api/strategies/{strategy}                        Strategy config
    GET    /api/strategies/{strategy}/current-period         Ledger pointer
    POST   /api/strategies/{strategy}/update-deposits        Advance ledger (operator)
    GET    /api/strategies/{strategy}/periods/{period}       Period state
    PUT    /api/strategies/{strategy}/periods/{period}/earnings  Report earnings (operator)

  Positions:
    POST   /api/strategies/{strategy}/positions              Stake a minted item
    GET    .../positions/{collection}/{id}                   Position state
    GET    .../positions/{collection}/{id}/pending           Claim preview
    GET    .../positions/{collection}/{id}/payouts           Payout history
    POST   .../positions/{collection}/{id}/claim             Claim rewards
    POST   .../positions/{collection}/{id}/sell              Sell position

  Items and treasury:
    POST   /api/items                                        Mint
    GET    /api/items/{collection}/{id}                      Item
    POST   /api/items/{collection}/{id}/transfer             Transfer
    GET    /api/treasury/tokens                              Tokens and reserves
    PUT    /api/treasury/tokens/{token}/price                Set price (operator)

ERROR HANDLING:
  Errors are returned as {"error", "code", "details"} with:
  - 400: Malformed input, unsupported token
  - 403: Not an operator, not the holder
  - 404: Unknown strategy or item
  - 409: Not yet eligible, already claimed, period state conflicts
  - 410: Position already sold or item burned
  - 422: Slippage, invalid position, arithmetic faults, reserves
  - 500: Internal errors

SECURITY NOTE:
  The caller address in request bodies is trusted. Put the service behind a
  gateway that authenticates it.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/flex"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/treasury"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Strategies *factory.Registry
	Items      generic.Minter
	Vault      *treasury.Vault
	Operators  generic.Operators
	Clock      generic.Clock
	Log        zerolog.Logger
	// Ping reports storage health on /healthz. Optional.
	Ping func(ctx context.Context) error

	validate *validator.Validate
}

// NewHandler creates a handler. operators may be nil (nobody is an operator).
func NewHandler(strategies *factory.Registry, items generic.Minter, vault *treasury.Vault,
	operators generic.Operators, clock generic.Clock, log zerolog.Logger) *Handler {
	if operators == nil {
		operators = generic.OperatorSet{}
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	v := validator.New()
	_ = v.RegisterValidation("hexaddr", func(fl validator.FieldLevel) bool {
		return common.IsHexAddress(fl.Field().String())
	})
	return &Handler{
		Strategies: strategies,
		Items:      items,
		Vault:      vault,
		Operators:  operators,
		Clock:      clock,
		Log:        log,
		validate:   v,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			h.Log.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable", Code: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   h.Clock.Now(),
	})
}

// =============================================================================
// STRATEGY HANDLERS
// =============================================================================

func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	list := h.Strategies.List()
	dtos := make([]StrategyDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, toStrategyDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	s, err := h.strategy(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStrategyDTO(s))
}

func (h *Handler) CurrentPeriod(w http.ResponseWriter, r *http.Request) {
	op, err := h.Strategies.Operator(generic.StrategyID(chi.URLParam(r, "strategy")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, ok, err := op.CurrentPeriod(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	dto := CurrentPeriodDTO{Strategy: chi.URLParam(r, "strategy"), Started: ok}
	if ok {
		dto.Period = p.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// UpdateDeposits advances the ledger pointer to the current period.
func (h *Handler) UpdateDeposits(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if !h.decode(w, r, &req) {
		return
	}
	op, err := h.Strategies.Operator(generic.StrategyID(chi.URLParam(r, "strategy")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, err := op.UpdateDeposits(r.Context(), common.HexToAddress(req.Caller))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CurrentPeriodDTO{Strategy: chi.URLParam(r, "strategy"), Period: p.String(), Started: true})
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	op, p, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	rec, err := op.PeriodState(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(rec))
}

// SetEarnings records the earnings of a closed period.
func (h *Handler) SetEarnings(w http.ResponseWriter, r *http.Request) {
	op, p, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	var req SetEarningsRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := generic.ParseUSD(req.AmountUSD)
	if err != nil {
		writeBadRequest(w, "invalid amount_usd", err)
		return
	}
	if err := op.SetEarnings(r.Context(), common.HexToAddress(req.Caller), p, amount); err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := op.PeriodState(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTO(rec))
}

// =============================================================================
// POSITION HANDLERS
// =============================================================================

func (h *Handler) Stake(w http.ResponseWriter, r *http.Request) {
	s, err := h.strategy(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req StakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	key := generic.PositionKey{Collection: common.HexToAddress(req.Collection), ID: req.PositionID}
	pos, err := s.Stake(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.positionDTO(r, s, *pos))
}

func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.positionParams(w, r)
	if !ok {
		return
	}
	pos, err := s.Position(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.positionDTO(r, s, *pos))
}

// pendingPreviewer is implemented by strategies that accrue per period.
type pendingPreviewer interface {
	Pending(ctx context.Context, key generic.PositionKey) (*flex.Preview, error)
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.positionParams(w, r)
	if !ok {
		return
	}
	pp, ok := s.(pendingPreviewer)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: %s has no per-period accrual", generic.ErrStrategyNotFound, s.ID()))
		return
	}
	preview, err := pp.Pending(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingDTO(preview))
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	s, key, ok := h.positionParams(w, r)
	if !ok {
		return
	}
	payouts, err := s.Payouts(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	dtos := make([]PayoutDTO, 0, len(payouts))
	for _, p := range payouts {
		dtos = append(dtos, toPayoutDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	h.payout(w, r, generic.PayoutClaim)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.payout(w, r, generic.PayoutSell)
}

func (h *Handler) payout(w http.ResponseWriter, r *http.Request, kind generic.PayoutKind) {
	s, key, ok := h.positionParams(w, r)
	if !ok {
		return
	}
	var body PayoutRequest
	if !h.decode(w, r, &body) {
		return
	}
	req := generic.PayoutRequest{
		Key:    key,
		Caller: common.HexToAddress(body.Caller),
		Token:  generic.TokenID(body.Token),
		MinOut: generic.NewAmount(decimal.Zero, generic.Unit(body.Token)),
	}
	if body.MinOut != "" {
		minOut, err := generic.ParseBaseUnits(body.MinOut, generic.Unit(body.Token))
		if err != nil {
			writeBadRequest(w, "invalid min_out", err)
			return
		}
		req.MinOut = minOut
	}

	var (
		receipt *generic.Receipt
		err     error
	)
	if kind == generic.PayoutClaim {
		receipt, err = s.Claim(r.Context(), req)
	} else {
		receipt, err = s.Sell(r.Context(), req)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	dto := toReceiptDTO(receipt)
	dto.Position = h.positionDTO(r, s, receipt.Position)
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

func (h *Handler) MintItem(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, err := generic.ParseUSD(req.PrincipalUSD)
	if err != nil {
		writeBadRequest(w, "invalid principal_usd", err)
		return
	}
	key, err := h.Items.Mint(r.Context(), common.HexToAddress(req.Collection), common.HexToAddress(req.Owner), principal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Log.Info().Str("position", key.String()).Str("principal_usd", principal.Dollars().String()).Msg("item minted")
	writeJSON(w, http.StatusCreated, toItemDTO(generic.Item{Key: key, Owner: common.HexToAddress(req.Owner), Principal: principal}))
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	key, err := generic.ParsePositionKey(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid item key", err)
		return
	}
	item, err := h.Items.GetItem(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if item == nil {
		h.writeError(w, fmt.Errorf("%w: %s", generic.ErrItemNotFound, key))
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

func (h *Handler) TransferItem(w http.ResponseWriter, r *http.Request) {
	key, err := generic.ParsePositionKey(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid item key", err)
		return
	}
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Items.Transfer(r.Context(), key, common.HexToAddress(req.From), common.HexToAddress(req.To)); err != nil {
		h.writeError(w, err)
		return
	}
	item, err := h.Items.GetItem(r.Context(), key)
	if err != nil || item == nil {
		h.writeError(w, fmt.Errorf("reload item %s: %v", key, err))
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

// =============================================================================
// TREASURY HANDLERS
// =============================================================================

func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := h.Vault.Tokens()
	dtos := make([]TokenDTO, 0, len(tokens))
	for _, t := range tokens {
		dtos = append(dtos, toTokenDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SetTokenPrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.Operators.IsOperator(common.HexToAddress(req.Caller)) {
		h.writeError(w, fmt.Errorf("%w: %s is not an operator", generic.ErrUnauthorized, req.Caller))
		return
	}
	price, err := decimal.NewFromString(req.PriceUSD)
	if err != nil {
		writeBadRequest(w, "invalid price_usd", err)
		return
	}
	id := generic.TokenID(chi.URLParam(r, "token"))
	if err := h.Vault.SetPrice(id, price); err != nil {
		h.writeError(w, err)
		return
	}
	for _, t := range h.Vault.Tokens() {
		if t.ID == id {
			writeJSON(w, http.StatusOK, toTokenDTO(t))
			return
		}
	}
	h.writeError(w, fmt.Errorf("%w: %s", generic.ErrTokenNotSupported, id))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SetClock moves a manual clock. Only available when the server runs on one.
func (h *Handler) SetClock(w http.ResponseWriter, r *http.Request) {
	clock, ok := h.Clock.(*generic.ManualClock)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "manual clock is not enabled", Code: "not_found"})
		return
	}
	var req SetClockRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Now.Before(clock.Now()) {
		writeBadRequest(w, "clock cannot move backwards", nil)
		return
	}
	clock.Set(req.Now)
	h.Log.Info().Time("now", req.Now).Msg("clock moved")
	writeJSON(w, http.StatusOK, map[string]any{"now": clock.Now()})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) strategy(r *http.Request) (generic.Strategy, error) {
	return h.Strategies.Get(generic.StrategyID(chi.URLParam(r, "strategy")))
}

func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (generic.PeriodOperator, generic.Period, bool) {
	op, err := h.Strategies.Operator(generic.StrategyID(chi.URLParam(r, "strategy")))
	if err != nil {
		h.writeError(w, err)
		return nil, generic.Period{}, false
	}
	p, err := generic.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		writeBadRequest(w, "invalid period, want YYYY-MM", err)
		return nil, generic.Period{}, false
	}
	return op, p, true
}

func (h *Handler) positionParams(w http.ResponseWriter, r *http.Request) (generic.Strategy, generic.PositionKey, bool) {
	s, err := h.strategy(r)
	if err != nil {
		h.writeError(w, err)
		return nil, generic.PositionKey{}, false
	}
	key, err := generic.ParsePositionKey(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid position key", err)
		return nil, generic.PositionKey{}, false
	}
	return s, key, true
}

func (h *Handler) positionDTO(r *http.Request, s generic.Strategy, pos generic.Position) PositionDTO {
	dto := toPositionDTO(pos)
	if pos.Sold {
		return dto
	}
	if next, err := s.NextClaimAt(r.Context(), pos.Key); err == nil && !next.IsZero() {
		dto.NextClaimAt = &next
	}
	return dto
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "invalid request",
				Code:    "invalid_request",
				Details: map[string]any{"fields": fields},
			})
			return false
		}
		writeBadRequest(w, "invalid request", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeBadRequest(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Code: "invalid_request"}
	if err != nil {
		resp.Details = map[string]any{"reason": err.Error()}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeError maps a domain error to its status and JSON body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Code:    generic.ErrorCode(err),
		Details: errorDetails(err),
	})
}

func statusFor(err error) int {
	var ipe *generic.InvalidPositionError
	switch {
	case errors.As(err, &ipe) && (ipe.Reason == "already sold" || ipe.Reason == "burned"):
		return http.StatusGone
	case errors.Is(err, generic.ErrUnauthorized), errors.Is(err, generic.ErrNotOwner):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrTokenNotSupported), errors.Is(err, generic.ErrInvalidConfig):
		return http.StatusBadRequest
	case generic.IsConflict(err), errors.Is(err, generic.ErrConfigChanged):
		return http.StatusConflict
	case errors.Is(err, generic.ErrSlippageExceeded),
		errors.Is(err, generic.ErrInvalidPosition),
		errors.Is(err, generic.ErrArithmeticFault),
		errors.Is(err, generic.ErrInsufficientReserves):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorDetails(err error) map[string]any {
	var (
		el  *generic.EligibilityError
		sl  *generic.SlippageError
		pe  *generic.PeriodError
		nd  *generic.NoDepositsError
		ipe *generic.InvalidPositionError
	)
	switch {
	case errors.As(err, &el):
		d := map[string]any{"position": el.Key.String()}
		if !el.EligibleAt.IsZero() {
			d["eligible_at"] = el.EligibleAt
		}
		return d
	case errors.As(err, &sl):
		return map[string]any{"token": string(sl.Token), "min_out": sl.MinOut.String(), "got": sl.Got.String()}
	case errors.As(err, &pe):
		d := map[string]any{"period": pe.Period.String()}
		if !pe.Current.IsZero() {
			d["current"] = pe.Current.String()
		}
		return d
	case errors.As(err, &nd):
		return map[string]any{"period": nd.Period.String()}
	case errors.As(err, &ipe):
		return map[string]any{"position": ipe.Key.String(), "reason": ipe.Reason}
	}
	return nil
}
