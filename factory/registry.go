package factory

import (
	"fmt"

	"github.com/warp/staking-engine/generic"
)

// Registry holds the running strategies in configuration order.
type Registry struct {
	order []generic.StrategyID
	byID  map[generic.StrategyID]generic.Strategy
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[generic.StrategyID]generic.Strategy)}
}

func (r *Registry) Add(s generic.Strategy) error {
	if _, ok := r.byID[s.ID()]; ok {
		return fmt.Errorf("%w: duplicate strategy id %q", generic.ErrInvalidConfig, s.ID())
	}
	r.order = append(r.order, s.ID())
	r.byID[s.ID()] = s
	return nil
}

func (r *Registry) Get(id generic.StrategyID) (generic.Strategy, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrStrategyNotFound, id)
	}
	return s, nil
}

// Operator returns the period ledger operations of a strategy. Fixed-term
// strategies have no ledger.
func (r *Registry) Operator(id generic.StrategyID) (generic.PeriodOperator, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	op, ok := s.(generic.PeriodOperator)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no period ledger", generic.ErrStrategyNotFound, id)
	}
	return op, nil
}

// Operators returns every strategy with a period ledger.
func (r *Registry) Operators() []generic.PeriodOperator {
	var ops []generic.PeriodOperator
	for _, id := range r.order {
		if op, ok := r.byID[id].(generic.PeriodOperator); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func (r *Registry) List() []generic.Strategy {
	result := make([]generic.Strategy, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.byID[id])
	}
	return result
}
