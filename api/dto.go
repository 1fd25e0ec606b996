/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  domain model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  - *_usd fields are decimal dollar strings ("12.5")
  - token amounts are integer base-unit strings ("12500000")
  - addresses are 0x-prefixed hex

SEE ALSO:
  - handlers.go: Uses these types
  - factory/strategy.go: StrategyJSON type
*/
package api

import (
	"time"

	"github.com/warp/staking-engine/accrual"
	"github.com/warp/staking-engine/factory"
	"github.com/warp/staking-engine/flex"
	"github.com/warp/staking-engine/generic"
	"github.com/warp/staking-engine/treasury"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

type CallerRequest struct {
	Caller string `json:"caller" validate:"required,hexaddr"`
}

type SetEarningsRequest struct {
	Caller    string `json:"caller" validate:"required,hexaddr"`
	AmountUSD string `json:"amount_usd" validate:"required,numeric"`
}

type StakeRequest struct {
	Collection string `json:"collection" validate:"required,hexaddr"`
	PositionID uint64 `json:"position_id"`
}

type PayoutRequest struct {
	Caller string `json:"caller" validate:"required,hexaddr"`
	Token  string `json:"token" validate:"required"`
	MinOut string `json:"min_out" validate:"omitempty,numeric"`
}

type MintRequest struct {
	Collection   string `json:"collection" validate:"required,hexaddr"`
	Owner        string `json:"owner" validate:"required,hexaddr"`
	PrincipalUSD string `json:"principal_usd" validate:"required,numeric"`
}

type TransferRequest struct {
	From string `json:"from" validate:"required,hexaddr"`
	To   string `json:"to" validate:"required,hexaddr"`
}

type SetPriceRequest struct {
	Caller   string `json:"caller" validate:"required,hexaddr"`
	PriceUSD string `json:"price_usd" validate:"required,numeric"`
}

type SetClockRequest struct {
	Now time.Time `json:"now" validate:"required"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
	Caller     string `json:"caller" validate:"required,hexaddr"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

type StrategyDTO struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Kind   string               `json:"kind"`
	Config factory.StrategyJSON `json:"config"`
}

type CurrentPeriodDTO struct {
	Strategy string `json:"strategy"`
	Period   string `json:"period,omitempty"`
	Started  bool   `json:"started"`
}

type PeriodDTO struct {
	Strategy    string `json:"strategy"`
	Period      string `json:"period"`
	DepositsUSD string `json:"deposits_usd"`
	EarningsUSD string `json:"earnings_usd"`
	EarningsSet bool   `json:"earnings_set"`
	Settled     bool   `json:"settled"`
	Closed      bool   `json:"closed"`
}

type PositionDTO struct {
	Strategy          string     `json:"strategy"`
	Collection        string     `json:"collection"`
	PositionID        uint64     `json:"position_id"`
	Owner             string     `json:"owner"`
	PrincipalUSD      string     `json:"principal_usd"`
	RemainderUSD      string     `json:"remainder_usd"`
	CreatedAt         time.Time  `json:"created_at"`
	ClaimedPeriods    int        `json:"claimed_periods"`
	TotalWithdrawnUSD string     `json:"total_withdrawn_usd"`
	Sold              bool       `json:"sold"`
	SoldAt            *time.Time `json:"sold_at,omitempty"`
	NextClaimAt       *time.Time `json:"next_claim_at,omitempty"`
}

type PeriodRewardDTO struct {
	Index           int    `json:"index"`
	InitialUSD      string `json:"initial_usd"`
	ProportionalUSD string `json:"proportional_usd"`
	TotalUSD        string `json:"total_usd"`
	UsesPool        bool   `json:"uses_pool"`
}

type PendingDTO struct {
	FromPeriod int               `json:"from_period"`
	ToPeriod   int               `json:"to_period"`
	USD        string            `json:"usd"`
	Periods    []PeriodRewardDTO `json:"periods"`
}

type PayoutDTO struct {
	ID          string    `json:"id"`
	Strategy    string    `json:"strategy"`
	Collection  string    `json:"collection"`
	PositionID  uint64    `json:"position_id"`
	Recipient   string    `json:"recipient"`
	Kind        string    `json:"kind"`
	USD         string    `json:"usd"`
	Token       string    `json:"token"`
	TokenAmount string    `json:"token_amount"`
	FromPeriod  int       `json:"from_period"`
	ToPeriod    int       `json:"to_period"`
	At          time.Time `json:"at"`
}

type ReceiptDTO struct {
	PayoutDTO
	Position PositionDTO `json:"position"`
}

type ItemDTO struct {
	Collection   string `json:"collection"`
	PositionID   uint64 `json:"position_id"`
	Owner        string `json:"owner"`
	PrincipalUSD string `json:"principal_usd"`
	StrategyID   string `json:"strategy_id,omitempty"`
	Burned       bool   `json:"burned"`
}

type TokenDTO struct {
	ID       string `json:"id"`
	Decimals int32  `json:"decimals"`
	PriceUSD string `json:"price_usd"`
	Reserve  string `json:"reserve"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type ScenarioStepDTO struct {
	At          time.Time `json:"at"`
	Action      string    `json:"action"`
	USD         string    `json:"usd,omitempty"`
	TokenAmount string    `json:"token_amount,omitempty"`
	ToPeriod    int       `json:"to_period,omitempty"`
	Error       string    `json:"error,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

type ScenarioResultDTO struct {
	Strategy string            `json:"strategy"`
	Item     ItemDTO           `json:"item"`
	Steps    []ScenarioStepDTO `json:"steps"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toStrategyDTO(s generic.Strategy) StrategyDTO {
	return StrategyDTO{
		ID:     string(s.ID()),
		Name:   s.Name(),
		Kind:   string(s.Kind()),
		Config: factory.ToJSON(s),
	}
}

func toPeriodDTO(r generic.PeriodRecord) PeriodDTO {
	return PeriodDTO{
		Strategy:    string(r.Strategy),
		Period:      r.Period.String(),
		DepositsUSD: r.Deposits.Dollars().String(),
		EarningsUSD: r.Earnings.Dollars().String(),
		EarningsSet: r.EarningsSet,
		Settled:     r.Settled,
		Closed:      r.Closed,
	}
}

func toPositionDTO(p generic.Position) PositionDTO {
	dto := PositionDTO{
		Strategy:          string(p.Strategy),
		Collection:        p.Key.Collection.Hex(),
		PositionID:        p.Key.ID,
		Owner:             p.Owner.Hex(),
		PrincipalUSD:      p.Principal.Dollars().String(),
		RemainderUSD:      p.Remainder.Dollars().String(),
		CreatedAt:         p.CreatedAt,
		ClaimedPeriods:    p.ClaimedPeriods,
		TotalWithdrawnUSD: p.TotalWithdrawn.Dollars().String(),
		Sold:              p.Sold,
	}
	if p.Sold {
		soldAt := p.SoldAt
		dto.SoldAt = &soldAt
	}
	return dto
}

func toPendingDTO(p *flex.Preview) PendingDTO {
	dto := PendingDTO{
		FromPeriod: p.FromPeriod,
		ToPeriod:   p.ToPeriod,
		USD:        p.USD.Dollars().String(),
		Periods:    make([]PeriodRewardDTO, 0, len(p.Periods)),
	}
	for _, r := range p.Periods {
		dto.Periods = append(dto.Periods, toPeriodRewardDTO(r))
	}
	return dto
}

func toPeriodRewardDTO(r accrual.Reward) PeriodRewardDTO {
	return PeriodRewardDTO{
		Index:           r.Index,
		InitialUSD:      r.Initial.Dollars().String(),
		ProportionalUSD: r.Proportional.Dollars().String(),
		TotalUSD:        r.Total.Dollars().String(),
		UsesPool:        r.UsesPool,
	}
}

func toPayoutDTO(p generic.Payout) PayoutDTO {
	return PayoutDTO{
		ID:          p.ID,
		Strategy:    string(p.Strategy),
		Collection:  p.Key.Collection.Hex(),
		PositionID:  p.Key.ID,
		Recipient:   p.Recipient.Hex(),
		Kind:        string(p.Kind),
		USD:         p.USD.Dollars().String(),
		Token:       string(p.Token),
		TokenAmount: p.TokenAmount.Value.String(),
		FromPeriod:  p.FromPeriod,
		ToPeriod:    p.ToPeriod,
		At:          p.At,
	}
}

func toReceiptDTO(r *generic.Receipt) ReceiptDTO {
	return ReceiptDTO{
		PayoutDTO: toPayoutDTO(generic.Payout{
			ID:          r.PayoutID,
			Strategy:    r.Strategy,
			Key:         r.Key,
			Recipient:   r.Recipient,
			Kind:        r.Kind,
			USD:         r.USD,
			Token:       r.Token,
			TokenAmount: r.TokenAmount,
			FromPeriod:  r.FromPeriod,
			ToPeriod:    r.ToPeriod,
			At:          r.At,
		}),
		Position: toPositionDTO(r.Position),
	}
}

func toItemDTO(i generic.Item) ItemDTO {
	return ItemDTO{
		Collection:   i.Key.Collection.Hex(),
		PositionID:   i.Key.ID,
		Owner:        i.Owner.Hex(),
		PrincipalUSD: i.Principal.Dollars().String(),
		StrategyID:   string(i.Strategy),
		Burned:       i.Burned,
	}
}

func toTokenDTO(t treasury.TokenInfo) TokenDTO {
	return TokenDTO{
		ID:       string(t.ID),
		Decimals: t.Decimals,
		PriceUSD: t.PriceUSD.String(),
		Reserve:  t.Reserve.Value.String(),
	}
}
