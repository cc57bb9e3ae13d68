package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// MemoryRepository is an in-memory Repository used in tests and dry runs.
type MemoryRepository struct {
	mu        sync.Mutex
	configs   map[types.TradingPair]types.GridConfig
	orders    map[string]types.Order
	trades    []types.GridTrade
	decisions []types.PairDecision
	nextID    int64
	closed    bool
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		configs: make(map[types.TradingPair]types.GridConfig),
		orders:  make(map[string]types.Order),
	}
}

// SaveConfig inserts or updates a pair config.
func (m *MemoryRepository) SaveConfig(_ context.Context, cfg types.GridConfig) (types.GridConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return types.GridConfig{}, err
	}

	if existing, ok := m.configs[cfg.Pair]; ok {
		cfg.ID = existing.ID
	} else {
		m.nextID++
		cfg.ID = m.nextID
	}

	cfg.UpdatedAt = time.Now().UTC()
	m.configs[cfg.Pair] = cfg

	return cfg, nil
}

// GetConfig returns the config for a pair.
func (m *MemoryRepository) GetConfig(_ context.Context, pair types.TradingPair) (types.GridConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[pair]
	if !ok {
		return types.GridConfig{}, errors.Newf(errors.ErrCodeConfigNotFound, "no config for pair %s", pair)
	}

	return cfg, nil
}

// GetAllConfigs returns every stored config.
func (m *MemoryRepository) GetAllConfigs(_ context.Context) ([]types.GridConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	configs := make([]types.GridConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Pair < configs[j].Pair })

	return configs, nil
}

// UpdateConfigStatus persists the running flag, decision and reason.
func (m *MemoryRepository) UpdateConfigStatus(_ context.Context, id int64, isRunning bool, decision types.Decision, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pair, cfg := range m.configs {
		if cfg.ID == id {
			cfg.IsRunning = isRunning
			cfg.LastDecision = decision
			cfg.StatusReason = reason
			cfg.UpdatedAt = time.Now().UTC()
			m.configs[pair] = cfg

			return nil
		}
	}

	return errors.Newf(errors.ErrCodeConfigNotFound, "no config with id %d", id)
}

// SaveOrder inserts or updates a tracked order.
func (m *MemoryRepository) SaveOrder(_ context.Context, order types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[order.ExchangeOrderID] = order

	return nil
}

// GetOpenOrders returns the tracked orders still marked open for a pair.
func (m *MemoryRepository) GetOpenOrders(_ context.Context, pair types.TradingPair) ([]types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]types.Order, 0)

	for _, order := range m.orders {
		if order.Pair == pair && order.Status.IsOpen() {
			orders = append(orders, order)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ExchangeOrderID < orders[j].ExchangeOrderID
	})

	return orders, nil
}

// CloseOrder marks a tracked order with a terminal status.
func (m *MemoryRepository) CloseOrder(_ context.Context, exchangeOrderID string, status types.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[exchangeOrderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no tracked order %s", exchangeOrderID)
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	m.orders[exchangeOrderID] = order

	return nil
}

// PurgeOpenOrders removes all open order records for a pair.
func (m *MemoryRepository) PurgeOpenOrders(_ context.Context, pair types.TradingPair) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0

	for id, order := range m.orders {
		if order.Pair == pair && order.Status.IsOpen() {
			delete(m.orders, id)
			purged++
		}
	}

	return purged, nil
}

// SaveTrade records a completed round trip.
func (m *MemoryRepository) SaveTrade(_ context.Context, trade types.GridTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	trade.ID = m.nextID
	m.trades = append(m.trades, trade)

	return nil
}

// GetTrades returns trades for a pair executed at or after since.
func (m *MemoryRepository) GetTrades(_ context.Context, pair types.TradingPair, since time.Time) ([]types.GridTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trades := make([]types.GridTrade, 0)

	for _, trade := range m.trades {
		if trade.Pair != pair {
			continue
		}

		if !since.IsZero() && trade.ExecutedAt.Before(since) {
			continue
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

// TotalProfit returns the accumulated profit for a pair.
func (m *MemoryRepository) TotalProfit(_ context.Context, pair types.TradingPair) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := decimal.Zero

	for _, trade := range m.trades {
		if trade.Pair == pair {
			total = total.Add(trade.Profit)
		}
	}

	return total, nil
}

// HasTradeForSell reports whether a trade exists for the given sell order.
func (m *MemoryRepository) HasTradeForSell(_ context.Context, sellOrderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, trade := range m.trades {
		if trade.SellOrderID == sellOrderID {
			return true, nil
		}
	}

	return false, nil
}

// SaveDecision stores a decision for a pair.
func (m *MemoryRepository) SaveDecision(_ context.Context, decision types.PairDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now().UTC()
	}

	m.decisions = append(m.decisions, decision)

	return nil
}

// GetLatestDecision returns the most recent decision for a pair.
func (m *MemoryRepository) GetLatestDecision(_ context.Context, pair types.TradingPair) (types.PairDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		latest types.PairDecision
		found  bool
	)

	for _, decision := range m.decisions {
		if decision.Pair != pair {
			continue
		}

		if !found || decision.Timestamp.After(latest.Timestamp) {
			latest = decision
			found = true
		}
	}

	if !found {
		return types.PairDecision{}, errors.Newf(errors.ErrCodeDecisionNotFound, "no decision for pair %s", pair)
	}

	return latest, nil
}

// GetLatestDecisions returns the most recent decision per pair.
func (m *MemoryRepository) GetLatestDecisions(_ context.Context) ([]types.PairDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[types.TradingPair]types.PairDecision)

	for _, decision := range m.decisions {
		current, ok := latest[decision.Pair]
		if !ok || decision.Timestamp.After(current.Timestamp) {
			latest[decision.Pair] = decision
		}
	}

	decisions := make([]types.PairDecision, 0, len(latest))
	for _, decision := range latest {
		decisions = append(decisions, decision)
	}

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Pair < decisions[j].Pair })

	return decisions, nil
}

// Close marks the repository closed.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	return nil
}

func (m *MemoryRepository) checkOpen() error {
	if m.closed {
		return errors.New(errors.ErrCodeStorageClosed, "repository is closed")
	}

	return nil
}
