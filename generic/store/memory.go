// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/warp/staking-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore, generic.ConfigStore and generic.Minter.
type Memory struct {
	mu         sync.RWMutex
	positions  map[positionKey]generic.Position
	periods    map[periodKey]generic.PeriodRecord
	cursors    map[generic.StrategyID]generic.Period
	payouts    []generic.Payout
	payoutIDs  map[string]bool
	strategies map[generic.StrategyID]generic.StrategyRecord
	items      map[generic.PositionKey]generic.Item
	nextItemID map[common.Address]uint64
}

type positionKey struct {
	Strategy generic.StrategyID
	Key      generic.PositionKey
}

type periodKey struct {
	Strategy generic.StrategyID
	Period   generic.Period
}

func NewMemory() *Memory {
	return &Memory{
		positions:  make(map[positionKey]generic.Position),
		periods:    make(map[periodKey]generic.PeriodRecord),
		cursors:    make(map[generic.StrategyID]generic.Period),
		payoutIDs:  make(map[string]bool),
		strategies: make(map[generic.StrategyID]generic.StrategyRecord),
		items:      make(map[generic.PositionKey]generic.Item),
		nextItemID: make(map[common.Address]uint64),
	}
}

func (m *Memory) SavePosition(ctx context.Context, p generic.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SavePosition(ctx, p)
}

func (m *Memory) GetPosition(ctx context.Context, strategy generic.StrategyID, key generic.PositionKey) (*generic.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetPosition(ctx, strategy, key)
}

func (m *Memory) ListPositions(ctx context.Context, strategy generic.StrategyID) ([]generic.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).ListPositions(ctx, strategy)
}

func (m *Memory) SavePeriod(ctx context.Context, r generic.PeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SavePeriod(ctx, r)
}

func (m *Memory) GetPeriod(ctx context.Context, strategy generic.StrategyID, p generic.Period) (*generic.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetPeriod(ctx, strategy, p)
}

func (m *Memory) ListPeriods(ctx context.Context, strategy generic.StrategyID) ([]generic.PeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).ListPeriods(ctx, strategy)
}

func (m *Memory) GetCursor(ctx context.Context, strategy generic.StrategyID) (generic.Period, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).GetCursor(ctx, strategy)
}

func (m *Memory) SaveCursor(ctx context.Context, strategy generic.StrategyID, p generic.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).SaveCursor(ctx, strategy, p)
}

func (m *Memory) AppendPayout(ctx context.Context, p generic.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).AppendPayout(ctx, p)
}

func (m *Memory) ListPayouts(ctx context.Context, strategy generic.StrategyID, key generic.PositionKey) ([]generic.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (*view)(m).ListPayouts(ctx, strategy, key)
}

func (m *Memory) BindItem(ctx context.Context, key generic.PositionKey, strategy generic.StrategyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).BindItem(ctx, key, strategy)
}

func (m *Memory) BurnItem(ctx context.Context, key generic.PositionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (*view)(m).BurnItem(ctx, key)
}

// =============================================================================
// TRANSACTIONAL VIEW - Lock-free accessors used under WithTx
// =============================================================================

// view exposes the unlocked operations. Memory methods take the lock and
// delegate here; WithTx hands a view to its callback while holding the lock.
type view Memory

func (v *view) SavePosition(_ context.Context, p generic.Position) error {
	v.positions[positionKey{Strategy: p.Strategy, Key: p.Key}] = p
	return nil
}

func (v *view) GetPosition(_ context.Context, strategy generic.StrategyID, key generic.PositionKey) (*generic.Position, error) {
	p, ok := v.positions[positionKey{Strategy: strategy, Key: key}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *view) ListPositions(_ context.Context, strategy generic.StrategyID) ([]generic.Position, error) {
	var result []generic.Position
	for k, p := range v.positions {
		if k.Strategy == strategy {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.Collection != result[j].Key.Collection {
			return result[i].Key.Collection.Hex() < result[j].Key.Collection.Hex()
		}
		return result[i].Key.ID < result[j].Key.ID
	})
	return result, nil
}

func (v *view) SavePeriod(_ context.Context, r generic.PeriodRecord) error {
	v.periods[periodKey{Strategy: r.Strategy, Period: r.Period}] = r
	return nil
}

func (v *view) GetPeriod(_ context.Context, strategy generic.StrategyID, p generic.Period) (*generic.PeriodRecord, error) {
	r, ok := v.periods[periodKey{Strategy: strategy, Period: p}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (v *view) ListPeriods(_ context.Context, strategy generic.StrategyID) ([]generic.PeriodRecord, error) {
	var result []generic.PeriodRecord
	for k, r := range v.periods {
		if k.Strategy == strategy {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period.Before(result[j].Period) })
	return result, nil
}

func (v *view) GetCursor(_ context.Context, strategy generic.StrategyID) (generic.Period, bool, error) {
	p, ok := v.cursors[strategy]
	return p, ok, nil
}

func (v *view) SaveCursor(_ context.Context, strategy generic.StrategyID, p generic.Period) error {
	v.cursors[strategy] = p
	return nil
}

func (v *view) AppendPayout(_ context.Context, p generic.Payout) error {
	if v.payoutIDs[p.ID] {
		return fmt.Errorf("payout %s already recorded", p.ID)
	}
	v.payoutIDs[p.ID] = true
	v.payouts = append(v.payouts, p)
	return nil
}

func (v *view) ListPayouts(_ context.Context, strategy generic.StrategyID, key generic.PositionKey) ([]generic.Payout, error) {
	var result []generic.Payout
	for _, p := range v.payouts {
		if p.Strategy == strategy && p.Key == key {
			result = append(result, p)
		}
	}
	return result, nil
}

func (v *view) BindItem(_ context.Context, key generic.PositionKey, strategy generic.StrategyID) error {
	item, ok := v.items[key]
	switch {
	case !ok:
		return &generic.InvalidPositionError{Key: key, Reason: "not minted"}
	case item.Burned:
		return generic.BurnedItemError(key)
	case item.Strategy != "":
		return fmt.Errorf("%w: %s is bound to %s", generic.ErrPositionExists, key, item.Strategy)
	}
	item.Strategy = strategy
	v.items[key] = item
	return nil
}

func (v *view) BurnItem(_ context.Context, key generic.PositionKey) error {
	item, ok := v.items[key]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	item.Burned = true
	v.items[key] = item
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn((*view)(m)); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	positions map[positionKey]generic.Position
	periods   map[periodKey]generic.PeriodRecord
	cursors   map[generic.StrategyID]generic.Period
	payouts   []generic.Payout
	payoutIDs map[string]bool
	items     map[generic.PositionKey]generic.Item
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		positions: make(map[positionKey]generic.Position, len(m.positions)),
		periods:   make(map[periodKey]generic.PeriodRecord, len(m.periods)),
		cursors:   make(map[generic.StrategyID]generic.Period, len(m.cursors)),
		payouts:   append([]generic.Payout{}, m.payouts...),
		payoutIDs: make(map[string]bool, len(m.payoutIDs)),
		items:     make(map[generic.PositionKey]generic.Item, len(m.items)),
	}
	for k, v := range m.positions {
		s.positions[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = v
	}
	for k, v := range m.cursors {
		s.cursors[k] = v
	}
	for k, v := range m.payoutIDs {
		s.payoutIDs[k] = v
	}
	for k, v := range m.items {
		s.items[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.positions = s.positions
	m.periods = s.periods
	m.cursors = s.cursors
	m.payouts = s.payouts
	m.payoutIDs = s.payoutIDs
	m.items = s.items
}

// =============================================================================
// STRATEGY CONFIGS
// =============================================================================

func (m *Memory) RegisterStrategy(_ context.Context, rec generic.StrategyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.strategies[rec.ID]; ok {
		if existing.ConfigJSON != rec.ConfigJSON || existing.Kind != rec.Kind {
			return fmt.Errorf("%w: %s", generic.ErrConfigChanged, rec.ID)
		}
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.strategies[rec.ID] = rec
	return nil
}

func (m *Memory) ListStrategies(_ context.Context) ([]generic.StrategyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.StrategyRecord, 0, len(m.strategies))
	for _, r := range m.strategies {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// ITEMS - Minimal minting component
// =============================================================================

func (m *Memory) Mint(_ context.Context, collection, owner common.Address, principal generic.Amount) (generic.PositionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !principal.IsPositive() {
		return generic.PositionKey{}, fmt.Errorf("%w: principal must be positive", generic.ErrInvalidPosition)
	}
	key := generic.PositionKey{Collection: collection, ID: m.nextItemID[collection]}
	m.nextItemID[collection]++
	m.items[key] = generic.Item{Key: key, Owner: owner, Principal: principal}
	return key, nil
}

func (m *Memory) Transfer(_ context.Context, key generic.PositionKey, from, to common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return generic.BurnedItemError(key)
	}
	if item.Owner != from {
		return fmt.Errorf("%w: %s", generic.ErrNotOwner, key)
	}
	item.Owner = to
	m.items[key] = item
	return nil
}

func (m *Memory) GetItem(_ context.Context, key generic.PositionKey) (*generic.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) PrincipalUSD(ctx context.Context, key generic.PositionKey) (generic.Amount, error) {
	item, err := m.GetItem(ctx, key)
	if err != nil {
		return generic.Amount{}, err
	}
	if item == nil {
		return generic.Amount{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return generic.Amount{}, generic.BurnedItemError(key)
	}
	return item.Principal, nil
}

func (m *Memory) OwnerOf(ctx context.Context, key generic.PositionKey) (common.Address, error) {
	item, err := m.GetItem(ctx, key)
	if err != nil {
		return common.Address{}, err
	}
	if item == nil {
		return common.Address{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return common.Address{}, generic.BurnedItemError(key)
	}
	return item.Owner, nil
}

func (m *Memory) Exists(ctx context.Context, key generic.PositionKey) (bool, error) {
	item, err := m.GetItem(ctx, key)
	return item != nil && !item.Burned, err
}
