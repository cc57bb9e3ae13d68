// Package risk watches each pair's grid for prices escaping the ladder and
// reacts: a collapse below the grid triggers the stop loss, a rally above it
// recenters the grid upward.
package risk

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/grid"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// Action identifies what a risk evaluation did.
type Action string

const (
	ActionNone       Action = "NONE"
	ActionStopLoss   Action = "STOP_LOSS"
	ActionTrailingUp Action = "TRAILING_UP"
)

// StatusReasonStopLoss is persisted on a config when the stop loss fires.
const StatusReasonStopLoss = "stop loss activated"

var oneHundred = decimal.NewFromInt(100)

// Manager evaluates and executes risk actions. At most one action fires per
// evaluation, with the stop loss taking priority over trailing up.
type Manager struct {
	exchange exchange.Client
	repo     repository.Repository
	executor *orders.Executor
	notifier notify.Notifier
	logger   *logger.Logger
}

// NewManager creates a risk manager.
func NewManager(client exchange.Client, repo repository.Repository, executor *orders.Executor, notifier notify.Notifier, log *logger.Logger) *Manager {
	return &Manager{
		exchange: client,
		repo:     repo,
		executor: executor,
		notifier: notifier,
		logger:   log,
	}
}

// StopLossTriggered reports whether the price has fallen to or below the
// stop level under the lowest open buy. Without open buys there is no grid
// floor to defend, so it never triggers.
func StopLossTriggered(cfg types.GridConfig, currentPrice decimal.Decimal, openOrders []types.Order) bool {
	if !cfg.EnableStopLoss || !cfg.StopLossPercent.IsPositive() {
		return false
	}

	lowestBuy, ok := lowestOpenBuy(openOrders)
	if !ok {
		return false
	}

	stopLevel := lowestBuy.Mul(decimal.NewFromInt(1).Sub(cfg.StopLossPercent.Div(oneHundred)))

	return currentPrice.LessThanOrEqual(stopLevel)
}

// TrailingUpTriggered reports whether the price has reached or passed the
// highest open sell, meaning the ladder has been outgrown upward.
func TrailingUpTriggered(cfg types.GridConfig, currentPrice decimal.Decimal, openOrders []types.Order) bool {
	if !cfg.EnableTrailingUp {
		return false
	}

	highestSell, ok := highestOpenSell(openOrders)
	if !ok {
		return false
	}

	return currentPrice.GreaterThanOrEqual(highestSell)
}

// Evaluate checks both triggers against the current price and executes the
// first one that fires.
func (m *Manager) Evaluate(ctx context.Context, cfg types.GridConfig, currentPrice decimal.Decimal, openOrders []types.Order) (Action, error) {
	if StopLossTriggered(cfg, currentPrice, openOrders) {
		if err := m.executeStopLoss(ctx, cfg, currentPrice, openOrders); err != nil {
			return ActionStopLoss, err
		}

		return ActionStopLoss, nil
	}

	if TrailingUpTriggered(cfg, currentPrice, openOrders) {
		if err := m.executeTrailingUp(ctx, cfg, currentPrice); err != nil {
			return ActionTrailingUp, err
		}

		return ActionTrailingUp, nil
	}

	return ActionNone, nil
}

// executeStopLoss liquidates the pair: cancel everything, market-sell the
// base position, and stop the grid until a fresh operate decision arrives.
// The estimated loss against the origin buy prices is persisted in the
// status reason and sent with the notification.
func (m *Manager) executeStopLoss(ctx context.Context, cfg types.GridConfig, currentPrice decimal.Decimal, openOrders []types.Order) error {
	estimatedLoss := estimatedLiquidationLoss(openOrders, currentPrice)

	m.logger.Warn("stop loss triggered",
		zap.String("pair", string(cfg.Pair)),
		zap.String("price", currentPrice.String()),
		zap.String("estimated_loss", estimatedLoss.String()))

	if _, err := m.executor.CancelAll(ctx, cfg.Pair); err != nil {
		return errors.Wrapf(errors.ErrCodeStopLossFailed, err,
			"stop loss could not clear the book for %s", cfg.Pair)
	}

	balance, err := m.exchange.GetBalance(ctx, cfg.Pair.Base())
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStopLossFailed, err,
			"stop loss could not read %s balance", cfg.Pair.Base())
	}

	// Dust below the venue minimum cannot be sold, leave it.
	if balance.Free.Mul(currentPrice).GreaterThanOrEqual(exchange.MinimumOrderValue(cfg.Pair)) {
		if _, err := m.executor.MarketSellBase(ctx, cfg.Pair, balance.Free); err != nil {
			return errors.Wrapf(errors.ErrCodeLiquidationFailed, err,
				"stop loss could not liquidate %s %s", balance.Free, cfg.Pair.Base())
		}
	}

	reason := StatusReasonStopLoss + ", estimated loss " + estimatedLoss.String() + " " + cfg.Pair.Quote()

	if err := m.repo.UpdateConfigStatus(ctx, cfg.ID, false, cfg.LastDecision, reason); err != nil {
		return err
	}

	if err := m.notifier.NotifyBotStatus(ctx, cfg.Pair, "Stop loss activated",
		"position liquidated at "+currentPrice.String()+
			", estimated loss "+estimatedLoss.String()+" "+cfg.Pair.Quote()); err != nil {
		m.logger.Warn("stop loss notification failed", zap.Error(err))
	}

	return nil
}

// estimatedLiquidationLoss sums, over the open sells, how far the liquidation
// price sits below each sell's origin buy price. Sells without a recorded
// origin and rungs already in profit contribute nothing.
func estimatedLiquidationLoss(openOrders []types.Order, liquidationPrice decimal.Decimal) decimal.Decimal {
	loss := decimal.Zero

	for _, order := range openOrders {
		if order.Side != types.OrderSideSell || !order.Status.IsOpen() {
			continue
		}

		origin, err := order.OriginBuyPrice.Take()
		if err != nil {
			continue
		}

		diff := origin.Sub(liquidationPrice)
		if diff.IsPositive() {
			loss = loss.Add(diff.Mul(order.Quantity))
		}
	}

	return loss
}

// executeTrailingUp recenters the ladder at the current price. The new sell
// rungs are funded from the base inventory already held; the new buy rungs
// from the free quote balance, capped at the buy side's share of the pair's
// capital. Nothing is bought at market, the position the old grid accumulated
// is the inventory.
func (m *Manager) executeTrailingUp(ctx context.Context, cfg types.GridConfig, currentPrice decimal.Decimal) error {
	m.logger.Info("trailing up triggered",
		zap.String("pair", string(cfg.Pair)),
		zap.String("price", currentPrice.String()))

	if _, err := m.executor.CancelAll(ctx, cfg.Pair); err != nil {
		return errors.Wrapf(errors.ErrCodeTrailingUpFailed, err,
			"trailing up could not clear the book for %s", cfg.Pair)
	}

	ladder, err := grid.Levels(currentPrice, cfg)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeTrailingUpFailed, err,
			"trailing up could not recompute the ladder for %s", cfg.Pair)
	}

	baseBalance, err := m.exchange.GetBalance(ctx, cfg.Pair.Base())
	if err != nil {
		return errors.Wrapf(errors.ErrCodeTrailingUpFailed, err,
			"trailing up could not read %s balance", cfg.Pair.Base())
	}

	quoteBalance, err := m.exchange.GetBalance(ctx, cfg.Pair.Quote())
	if err != nil {
		return errors.Wrapf(errors.ErrCodeTrailingUpFailed, err,
			"trailing up could not read %s balance", cfg.Pair.Quote())
	}

	perRung := grid.CapitalPerOrder(cfg.TotalCapital, cfg.GridLevels)

	buyBudget := perRung.Mul(decimal.NewFromInt(int64(len(ladder.BuyPrices))))
	if quoteBalance.Free.LessThan(buyBudget) {
		buyBudget = quoteBalance.Free
	}

	if _, err := m.executor.PlaceBuyRungs(ctx, cfg, ladder, buyBudget); err != nil {
		m.logger.Warn("trailing up placed a partial buy grid",
			zap.String("pair", string(cfg.Pair)), zap.Error(err))
	}

	if _, err := m.executor.PlaceSellRungs(ctx, cfg, ladder, currentPrice, baseBalance.Free); err != nil {
		m.logger.Warn("trailing up placed a partial sell grid",
			zap.String("pair", string(cfg.Pair)), zap.Error(err))
	}

	if err := m.notifier.NotifyBotStatus(ctx, cfg.Pair, "Grid recentered upward",
		"new center "+currentPrice.String()); err != nil {
		m.logger.Warn("trailing up notification failed", zap.Error(err))
	}

	return nil
}

func lowestOpenBuy(openOrders []types.Order) (decimal.Decimal, bool) {
	var (
		lowest decimal.Decimal
		found  bool
	)

	for _, order := range openOrders {
		if order.Side != types.OrderSideBuy || !order.Status.IsOpen() {
			continue
		}

		if !found || order.Price.LessThan(lowest) {
			lowest = order.Price
			found = true
		}
	}

	return lowest, found
}

func highestOpenSell(openOrders []types.Order) (decimal.Decimal, bool) {
	var (
		highest decimal.Decimal
		found   bool
	)

	for _, order := range openOrders {
		if order.Side != types.OrderSideSell || !order.Status.IsOpen() {
			continue
		}

		if !found || order.Price.GreaterThan(highest) {
			highest = order.Price
			found = true
		}
	}

	return highest, found
}
