/*
Package factory provides JSON to Go strategy conversion.

PURPOSE:
  Converts JSON strategy definitions into running fixed.Strategy and
  flex.Strategy instances. Operators define strategies in the config file
  or as JSON, and the factory creates and registers the proper Go structs.

JSON SCHEMA:
  {
    "id": "five-years-flex",
    "name": "Five years flexible",
    "kind": "flexible",
    "initial_months": 2,
    "initial_rewards_rate_bp": 100,
    "min_months": 12,
    "max_months": 60,
    "year_deprecation_rate_bp": 1000
  }

  {
    "id": "five-years-fixed",
    "name": "Five years fixed",
    "kind": "fixed",
    "rewards_rate_bp": 1500,
    "lock_years": 5
  }

IMMUTABILITY:
  A strategy's configuration is fixed at its first boot. Build stores the
  canonical JSON through generic.ConfigStore; a later boot with different
  parameters for the same id fails with ErrConfigChanged.

USAGE:
  f := factory.NewStrategyFactory(deps, configStore)

  // From JSON string
  sj, err := f.ParseStrategy(jsonString)
  s, err := f.Build(ctx, sj)

  // From a preset
  sj, err = f.ParseStrategy(factory.FiveYearsFlexibleJSON("flex-5y", "Flexible"))

SEE ALSO:
  - fixed/strategy.go: Fixed-term config and validation
  - flex/config.go: Flexible config and validation
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/staking-engine/fixed"
	"github.com/warp/staking-engine/flex"
	"github.com/warp/staking-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// StrategyJSON is the JSON representation of a strategy. Fields that do not
// apply to Kind must be zero.
type StrategyJSON struct {
	ID   string `json:"id" mapstructure:"id" validate:"required,max=64"`
	Name string `json:"name" mapstructure:"name"`
	Kind string `json:"kind" mapstructure:"kind" validate:"required,oneof=fixed flexible"`

	// fixed
	RewardsRateBp int64 `json:"rewards_rate_bp,omitempty" mapstructure:"rewards_rate_bp" validate:"gte=0"`
	LockYears     int   `json:"lock_years,omitempty" mapstructure:"lock_years" validate:"required_if=Kind fixed,gte=0"`

	// flexible
	InitialMonths         int   `json:"initial_months,omitempty" mapstructure:"initial_months" validate:"required_if=Kind flexible,gte=0"`
	InitialRewardsRateBp  int64 `json:"initial_rewards_rate_bp,omitempty" mapstructure:"initial_rewards_rate_bp" validate:"gte=0"`
	MinMonths             int   `json:"min_months,omitempty" mapstructure:"min_months" validate:"required_if=Kind flexible,gte=0"`
	MaxMonths             int   `json:"max_months,omitempty" mapstructure:"max_months" validate:"required_if=Kind flexible,gte=0"`
	YearDeprecationRateBp int64 `json:"year_deprecation_rate_bp,omitempty" mapstructure:"year_deprecation_rate_bp" validate:"gte=0"`
}

// =============================================================================
// STRATEGY FACTORY
// =============================================================================

// StrategyFactory converts JSON strategies to running strategies.
type StrategyFactory struct {
	deps     generic.Deps
	configs  generic.ConfigStore
	validate *validator.Validate
}

// NewStrategyFactory creates a factory. configs may be nil, in which case
// configurations are not persisted.
func NewStrategyFactory(deps generic.Deps, configs generic.ConfigStore) *StrategyFactory {
	v := validator.New()
	v.RegisterStructValidation(kindFieldsValidation, StrategyJSON{})
	return &StrategyFactory{deps: deps.WithDefaults(), configs: configs, validate: v}
}

// ParseStrategy decodes and validates a JSON strategy definition.
func (f *StrategyFactory) ParseStrategy(jsonStr string) (StrategyJSON, error) {
	var sj StrategyJSON
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sj); err != nil {
		return StrategyJSON{}, fmt.Errorf("%w: failed to parse strategy JSON: %v", generic.ErrInvalidConfig, err)
	}
	if err := f.Validate(sj); err != nil {
		return StrategyJSON{}, err
	}
	return sj, nil
}

// Validate runs the schema checks. Timeline checks run in Build.
func (f *StrategyFactory) Validate(sj StrategyJSON) error {
	if err := f.validate.Struct(sj); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", generic.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", generic.ErrInvalidConfig, err)
	}
	return nil
}

// kindFieldsValidation rejects parameters that belong to the other kind.
func kindFieldsValidation(sl validator.StructLevel) {
	sj := sl.Current().Interface().(StrategyJSON)
	switch sj.Kind {
	case "fixed":
		if sj.InitialMonths != 0 || sj.InitialRewardsRateBp != 0 || sj.MinMonths != 0 ||
			sj.MaxMonths != 0 || sj.YearDeprecationRateBp != 0 {
			sl.ReportError(sj.Kind, "Kind", "Kind", "fixed_fields_only", "")
		}
	case "flexible":
		if sj.RewardsRateBp != 0 || sj.LockYears != 0 {
			sl.ReportError(sj.Kind, "Kind", "Kind", "flexible_fields_only", "")
		}
	}
}

// Build validates sj, registers its configuration and returns the strategy.
func (f *StrategyFactory) Build(ctx context.Context, sj StrategyJSON) (generic.Strategy, error) {
	if err := f.Validate(sj); err != nil {
		return nil, err
	}

	var (
		s    generic.Strategy
		kind generic.StrategyKind
		err  error
	)
	switch sj.Kind {
	case "fixed":
		kind = generic.KindFixed
		s, err = fixed.New(fixed.Config{
			ID:          generic.StrategyID(sj.ID),
			Name:        sj.Name,
			RewardsRate: generic.BasisPoints(sj.RewardsRateBp),
			LockYears:   sj.LockYears,
		}, f.deps)
	case "flexible":
		kind = generic.KindFlexible
		s, err = flex.New(flex.Config{
			ID:                  generic.StrategyID(sj.ID),
			Name:                sj.Name,
			InitialMonths:       sj.InitialMonths,
			InitialRewardsRate:  generic.BasisPoints(sj.InitialRewardsRateBp),
			MinMonths:           sj.MinMonths,
			MaxMonths:           sj.MaxMonths,
			YearDeprecationRate: generic.BasisPoints(sj.YearDeprecationRateBp),
		}, f.deps)
	}
	if err != nil {
		return nil, err
	}

	if f.configs != nil {
		canonical, err := canonicalJSON(sj)
		if err != nil {
			return nil, err
		}
		err = f.configs.RegisterStrategy(ctx, generic.StrategyRecord{
			ID:         s.ID(),
			Kind:       kind,
			ConfigJSON: canonical,
			CreatedAt:  f.deps.Clock.Now(),
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildAll builds every definition into a Registry. Duplicate ids fail.
func (f *StrategyFactory) BuildAll(ctx context.Context, defs []StrategyJSON) (*Registry, error) {
	reg := NewRegistry()
	for _, sj := range defs {
		s, err := f.Build(ctx, sj)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", sj.ID, err)
		}
		if err := reg.Add(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ToJSON converts a running strategy back to its JSON definition.
func ToJSON(s generic.Strategy) StrategyJSON {
	switch st := s.(type) {
	case *fixed.Strategy:
		c := st.Config()
		return StrategyJSON{
			ID:            string(c.ID),
			Name:          c.Name,
			Kind:          "fixed",
			RewardsRateBp: int64(c.RewardsRate),
			LockYears:     c.LockYears,
		}
	case *flex.Strategy:
		c := st.Config()
		return StrategyJSON{
			ID:                    string(c.ID),
			Name:                  c.Name,
			Kind:                  "flexible",
			InitialMonths:         c.InitialMonths,
			InitialRewardsRateBp:  int64(c.InitialRewardsRate),
			MinMonths:             c.MinMonths,
			MaxMonths:             c.MaxMonths,
			YearDeprecationRateBp: int64(c.YearDeprecationRate),
		}
	}
	return StrategyJSON{ID: string(s.ID()), Name: s.Name(), Kind: string(s.Kind())}
}

// canonicalJSON renders sj without the display name, so renaming a
// strategy is not a config change.
func canonicalJSON(sj StrategyJSON) (string, error) {
	sj.Name = ""
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(sj); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
