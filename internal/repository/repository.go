// Package repository persists grid configs, orders, trades and strategy
// decisions. The engine treats the exchange as the source of truth for live
// order state; the repository is the durable record that survives restarts.
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
)

// Repository is the persistence surface used by the scheduler, workers and
// startup routines. Implementations must be safe for concurrent use.
type Repository interface {
	// SaveConfig inserts or updates a pair config and returns it with its ID set.
	SaveConfig(ctx context.Context, cfg types.GridConfig) (types.GridConfig, error)

	// GetConfig returns the config for a pair.
	GetConfig(ctx context.Context, pair types.TradingPair) (types.GridConfig, error)

	// GetAllConfigs returns every stored config.
	GetAllConfigs(ctx context.Context) ([]types.GridConfig, error)

	// UpdateConfigStatus persists the running flag, last decision and status
	// reason for a config.
	UpdateConfigStatus(ctx context.Context, id int64, isRunning bool, decision types.Decision, reason string) error

	// SaveOrder inserts or updates a tracked order, keyed by exchange order ID.
	SaveOrder(ctx context.Context, order types.Order) error

	// GetOpenOrders returns the tracked orders still marked open for a pair.
	GetOpenOrders(ctx context.Context, pair types.TradingPair) ([]types.Order, error)

	// CloseOrder marks a tracked order with a terminal status.
	CloseOrder(ctx context.Context, exchangeOrderID string, status types.OrderStatus) error

	// PurgeOpenOrders removes all open order records for a pair and returns
	// the number removed.
	PurgeOpenOrders(ctx context.Context, pair types.TradingPair) (int, error)

	// SaveTrade records a completed round trip.
	SaveTrade(ctx context.Context, trade types.GridTrade) error

	// GetTrades returns trades for a pair executed at or after since.
	GetTrades(ctx context.Context, pair types.TradingPair, since time.Time) ([]types.GridTrade, error)

	// TotalProfit returns the accumulated profit for a pair.
	TotalProfit(ctx context.Context, pair types.TradingPair) (decimal.Decimal, error)

	// HasTradeForSell reports whether a trade was already recorded for the
	// given sell order. Used to deduplicate fill processing across restarts.
	HasTradeForSell(ctx context.Context, sellOrderID string) (bool, error)

	// SaveDecision stores a decision for a pair.
	SaveDecision(ctx context.Context, decision types.PairDecision) error

	// GetLatestDecision returns the most recent decision for a pair.
	GetLatestDecision(ctx context.Context, pair types.TradingPair) (types.PairDecision, error)

	// GetLatestDecisions returns the most recent decision per pair.
	GetLatestDecisions(ctx context.Context) ([]types.PairDecision, error)

	// Close releases the underlying storage.
	Close() error
}
