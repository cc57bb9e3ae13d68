// Package fills detects order executions by reconciling the repository's
// tracked orders against the exchange, and aggregates completed trades for
// periodic reporting.
package fills

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
)

// closedOrdersFetchLimit caps how many finalized orders one cycle pulls.
const closedOrdersFetchLimit = 100

// recentTradesFetchLimit caps how many executions one cycle pulls.
const recentTradesFetchLimit = 50

// Reconciler finds filled grid orders. A single polling source can miss
// fills, so each cycle combines three signals and deduplicates them by
// exchange order ID:
//
//  1. tracked open orders that vanished from the exchange book, confirmed
//     by an order status fetch
//  2. the exchange's closed-orders feed since the last cycle's watermark
//  3. recent executions resolved back to their parent orders
//
// Orders confirmed cancelled or expired are closed in the repository without
// producing a fill.
type Reconciler struct {
	exchange exchange.Client
	repo     repository.Repository
	logger   *logger.Logger

	mu        sync.Mutex
	watermark time.Time
	emitted   map[string]struct{}
}

// NewReconciler creates a reconciler whose closed-orders watermark starts at
// the given time, typically the worker start.
func NewReconciler(client exchange.Client, repo repository.Repository, log *logger.Logger, start time.Time) *Reconciler {
	return &Reconciler{
		exchange:  client,
		repo:      repo,
		logger:    log,
		watermark: start,
		emitted:   make(map[string]struct{}),
	}
}

// Detect runs one reconciliation cycle for the pair and returns the fills
// found, each tagged with the signal that surfaced it. Signal errors degrade
// the cycle rather than failing it: a fill found by any working signal is
// still returned.
func (r *Reconciler) Detect(ctx context.Context, pair types.TradingPair) ([]types.Fill, error) {
	tracked, err := r.repo.GetOpenOrders(ctx, pair)
	if err != nil {
		return nil, err
	}

	if len(tracked) == 0 {
		return nil, nil
	}

	trackedByID := make(map[string]types.Order, len(tracked))
	for _, order := range tracked {
		trackedByID[order.ExchangeOrderID] = order
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Emitted IDs only matter while the order is still tracked as open.
	for id := range r.emitted {
		if _, ok := trackedByID[id]; !ok {
			delete(r.emitted, id)
		}
	}

	var fills []types.Fill

	collect := func(order types.Order, source types.FillSource) {
		if _, done := r.emitted[order.ExchangeOrderID]; done {
			return
		}

		tracked, ok := trackedByID[order.ExchangeOrderID]
		if !ok {
			return
		}

		// Preserve grid bookkeeping the exchange does not echo back.
		order.OriginBuyPrice = tracked.OriginBuyPrice
		order.ParentOrderID = tracked.ParentOrderID

		r.emitted[order.ExchangeOrderID] = struct{}{}
		fills = append(fills, types.Fill{
			Order:    order,
			Source:   source,
			FilledAt: order.UpdatedAt,
		})
	}

	r.detectByComparison(ctx, pair, trackedByID, collect)
	r.detectByClosedOrders(ctx, pair, collect)
	r.detectByRecentTrades(ctx, pair, trackedByID, collect)

	for _, fill := range fills {
		if err := r.repo.CloseOrder(ctx, fill.Order.ExchangeOrderID, types.OrderStatusFilled); err != nil {
			r.logger.Warn("failed to close filled order record",
				zap.String("exchange_order_id", fill.Order.ExchangeOrderID),
				zap.Error(err))
		}
	}

	return fills, nil
}

// detectByComparison diffs tracked orders against the live book. Vanished
// orders are confirmed individually, an order can leave the book by being
// cancelled as well as by filling.
func (r *Reconciler) detectByComparison(ctx context.Context, pair types.TradingPair, tracked map[string]types.Order, collect func(types.Order, types.FillSource)) {
	onBook, err := r.exchange.GetOpenOrders(ctx, pair)
	if err != nil {
		r.logger.Warn("open order comparison unavailable",
			zap.String("pair", string(pair)), zap.Error(err))

		return
	}

	bookIDs := make(map[string]struct{}, len(onBook))
	for _, order := range onBook {
		bookIDs[order.ExchangeOrderID] = struct{}{}
	}

	for id := range tracked {
		if _, resting := bookIDs[id]; resting {
			continue
		}

		confirmed, err := r.exchange.GetOrderStatus(ctx, pair, id)
		if err != nil {
			r.logger.Warn("could not confirm vanished order",
				zap.String("exchange_order_id", id), zap.Error(err))

			continue
		}

		switch confirmed.Status {
		case types.OrderStatusFilled:
			collect(confirmed, types.FillSourceComparison)
		case types.OrderStatusCanceled, types.OrderStatusExpired, types.OrderStatusRejected:
			if err := r.repo.CloseOrder(ctx, id, confirmed.Status); err != nil {
				r.logger.Warn("failed to close cancelled order record",
					zap.String("exchange_order_id", id), zap.Error(err))
			}
		}
	}
}

// detectByClosedOrders scans the finalized-orders feed since the watermark.
func (r *Reconciler) detectByClosedOrders(ctx context.Context, pair types.TradingPair, collect func(types.Order, types.FillSource)) {
	closed, err := r.exchange.GetClosedOrders(ctx, pair, r.watermark, closedOrdersFetchLimit)
	if err != nil {
		r.logger.Warn("closed orders feed unavailable",
			zap.String("pair", string(pair)), zap.Error(err))

		return
	}

	for _, order := range closed {
		if order.UpdatedAt.After(r.watermark) {
			r.watermark = order.UpdatedAt
		}

		if order.Status == types.OrderStatusFilled {
			collect(order, types.FillSourceClosedOrders)
		}
	}
}

// detectByRecentTrades resolves recent executions to their parent orders.
func (r *Reconciler) detectByRecentTrades(ctx context.Context, pair types.TradingPair, tracked map[string]types.Order, collect func(types.Order, types.FillSource)) {
	trades, err := r.exchange.GetRecentTrades(ctx, pair, recentTradesFetchLimit)
	if err != nil {
		r.logger.Warn("recent trades feed unavailable",
			zap.String("pair", string(pair)), zap.Error(err))

		return
	}

	for _, trade := range trades {
		if _, ok := tracked[trade.OrderID]; !ok {
			continue
		}

		if _, done := r.emitted[trade.OrderID]; done {
			continue
		}

		confirmed, err := r.exchange.GetOrderStatus(ctx, pair, trade.OrderID)
		if err != nil {
			r.logger.Warn("could not confirm traded order",
				zap.String("exchange_order_id", trade.OrderID), zap.Error(err))

			continue
		}

		if confirmed.Status == types.OrderStatusFilled {
			collect(confirmed, types.FillSourceTradeHistory)
		}
	}
}
