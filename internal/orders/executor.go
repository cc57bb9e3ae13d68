// Package orders places and cancels grid orders against the exchange while
// keeping the repository's tracked-order set in sync.
package orders

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/grid"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const (
	// maxPlaceAttempts bounds retries for a single order submission.
	maxPlaceAttempts = 3

	pricePrecision = 8

	clientOrderIDPrefix = "grid-"
)

var (
	one = decimal.NewFromInt(1)

	// replacementBuyDiscount prices a fallback replacement buy just under the
	// sell that triggered it, when the originating buy price is unknown.
	replacementBuyDiscount = decimal.RequireFromString("0.99")
)

// Executor submits grid orders with bounded retries. Every submission carries
// a client order ID generated once per logical order, so a retry after an
// ambiguous failure cannot double-place.
type Executor struct {
	exchange exchange.Client
	repo     repository.Repository
	logger   *logger.Logger
}

// NewExecutor creates an order executor.
func NewExecutor(client exchange.Client, repo repository.Repository, log *logger.Logger) *Executor {
	return &Executor{
		exchange: client,
		repo:     repo,
		logger:   log,
	}
}

// NewClientOrderID generates a fresh client order ID.
func NewClientOrderID() string {
	return clientOrderIDPrefix + uuid.NewString()
}

// PlaceOrder submits a single order and records it in the repository. Limit
// orders below the venue's minimum notional are rejected before submission.
// Transient exchange failures are retried up to maxPlaceAttempts times with
// the same client order ID.
func (e *Executor) PlaceOrder(ctx context.Context, order types.Order) (types.Order, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = NewClientOrderID()
	}

	if order.Type == types.OrderTypeLimit {
		minimum := exchange.MinimumOrderValue(order.Pair)
		if order.Value().LessThan(minimum) {
			return types.Order{}, errors.Newf(errors.ErrCodeBelowMinimumValue,
				"order value %s below venue minimum %s for %s",
				order.Value(), minimum, order.Pair)
		}
	}

	placed, err := e.submitWithRetry(ctx, order)
	if err != nil {
		return types.Order{}, err
	}

	if err := e.repo.SaveOrder(ctx, placed); err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeSaveFailed, err,
			"order %s placed but not recorded", placed.ExchangeOrderID)
	}

	e.logger.Info("order placed",
		zap.String("pair", string(placed.Pair)),
		zap.String("side", string(placed.Side)),
		zap.String("type", string(placed.Type)),
		zap.String("price", placed.Price.String()),
		zap.String("quantity", placed.Quantity.String()),
		zap.String("exchange_order_id", placed.ExchangeOrderID))

	return placed, nil
}

func (e *Executor) submitWithRetry(ctx context.Context, order types.Order) (types.Order, error) {
	var placed types.Order

	operation := func() error {
		var err error

		placed, err = e.exchange.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}

		if errors.IsTransient(err) {
			e.logger.Warn("order submission failed, retrying",
				zap.String("pair", string(order.Pair)),
				zap.String("client_order_id", order.ClientOrderID),
				zap.Error(err))

			return err
		}

		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPlaceAttempts-1), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if errors.IsTransient(err) {
			return types.Order{}, errors.Wrapf(errors.ErrCodeOrderRetriesExhausted, err,
				"gave up placing %s %s order after %d attempts",
				order.Side, order.Pair, maxPlaceAttempts)
		}

		return types.Order{}, err
	}

	return placed, nil
}

// MakerFee returns the venue's maker fee rate for the pair, falling back to
// the default when the venue cannot report one.
func (e *Executor) MakerFee(ctx context.Context, pair types.TradingPair) decimal.Decimal {
	maker, _, err := e.exchange.GetTradeFee(ctx, pair)
	if err != nil {
		e.logger.Debug("trade fee lookup failed, using default",
			zap.String("pair", string(pair)), zap.Error(err))

		return exchange.DefaultMakerFee
	}

	if maker.IsNegative() {
		return exchange.DefaultMakerFee
	}

	return maker
}

// PlaceInitialGrid places limit buys at every buy rung of the ladder, funding
// each rung with an equal share of the capital reserved for the buy side:
// one grid level's worth per rung, the rest stays available for sell-side
// inventory.
func (e *Executor) PlaceInitialGrid(ctx context.Context, cfg types.GridConfig, ladder grid.Ladder) ([]types.Order, error) {
	perRung := grid.CapitalPerOrder(cfg.TotalCapital, cfg.GridLevels)
	budget := perRung.Mul(decimal.NewFromInt(int64(len(ladder.BuyPrices))))

	return e.PlaceBuyRungs(ctx, cfg, ladder, budget)
}

// PlaceBuyRungs places limit buys at the ladder's buy rungs, splitting budget
// evenly across them. A rung that fails is skipped so the remaining rungs
// still go in; the first error encountered is returned alongside the
// successfully placed orders.
func (e *Executor) PlaceBuyRungs(ctx context.Context, cfg types.GridConfig, ladder grid.Ladder, budget decimal.Decimal) ([]types.Order, error) {
	if len(ladder.BuyPrices) == 0 || !budget.IsPositive() {
		return nil, nil
	}

	capitalPerOrder := budget.Div(decimal.NewFromInt(int64(len(ladder.BuyPrices))))

	var (
		placed   []types.Order
		firstErr error
	)

	for _, price := range ladder.BuyPrices {
		quantity, err := grid.OrderQuantity(capitalPerOrder, price, grid.DefaultMinQuantity)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		order, err := e.PlaceOrder(ctx, types.Order{
			Pair:     cfg.Pair,
			Side:     types.OrderSideBuy,
			Type:     types.OrderTypeLimit,
			Price:    price,
			Quantity: quantity,
		})
		if err != nil {
			e.logger.Warn("skipping grid rung",
				zap.String("pair", string(cfg.Pair)),
				zap.String("price", price.String()),
				zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		placed = append(placed, order)
	}

	return placed, firstErr
}

// PlaceProfitSell places the sell leg for a filled buy at the buy price plus
// the configured profit target. The sell remembers the buy it came from so a
// later fill can restore that rung.
func (e *Executor) PlaceProfitSell(ctx context.Context, cfg types.GridConfig, buy types.Fill) (types.Order, error) {
	profit := grid.DynamicProfitPercent(cfg)
	sellPrice := buy.Order.Price.Mul(one.Add(profit)).Round(pricePrecision)

	quantity := buy.Order.ExecutedQuantity
	if !quantity.IsPositive() {
		quantity = buy.Order.Quantity
	}

	quantity = exchange.NetAmountAfterFees(quantity, types.OrderSideBuy, e.MakerFee(ctx, cfg.Pair))

	order := types.Order{
		Pair:     cfg.Pair,
		Side:     types.OrderSideSell,
		Type:     types.OrderTypeLimit,
		Price:    sellPrice,
		Quantity: quantity,
	}
	order.OriginBuyPrice = optional.Some(buy.Order.Price)
	order.ParentOrderID = optional.Some(buy.Order.ExchangeOrderID)

	return e.PlaceOrder(ctx, order)
}

// PlaceReplacementBuy restores the buy rung consumed by a completed sell. It
// buys back at the price of the buy that started the round trip; if the sell
// did not record one, it falls back to just under the sell price.
func (e *Executor) PlaceReplacementBuy(ctx context.Context, cfg types.GridConfig, sell types.Fill) (types.Order, error) {
	price, err := sell.Order.OriginBuyPrice.Take()
	if err != nil {
		price = sell.Order.Price.Mul(replacementBuyDiscount).Round(pricePrecision)
	}

	capitalPerOrder := grid.CapitalPerOrder(cfg.TotalCapital, cfg.GridLevels)

	quantity, err := grid.OrderQuantity(capitalPerOrder, price, grid.DefaultMinQuantity)
	if err != nil {
		return types.Order{}, err
	}

	return e.PlaceOrder(ctx, types.Order{
		Pair:     cfg.Pair,
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeLimit,
		Price:    price,
		Quantity: quantity,
	})
}

// PlaceSellRungs distributes the given base inventory evenly across the
// ladder's sell rungs as limit sells. Each sell records originPrice as the
// buy price it descends from, so a fill later restores that rung. Rungs that
// fail are skipped; the first error is returned.
func (e *Executor) PlaceSellRungs(ctx context.Context, cfg types.GridConfig, ladder grid.Ladder, originPrice, inventory decimal.Decimal) ([]types.Order, error) {
	if len(ladder.SellPrices) == 0 || !inventory.IsPositive() {
		return nil, nil
	}

	perSell := inventory.Div(decimal.NewFromInt(int64(len(ladder.SellPrices)))).RoundDown(6)
	if !perSell.IsPositive() {
		return nil, nil
	}

	var (
		placed   []types.Order
		firstErr error
	)

	for _, price := range ladder.SellPrices {
		order := types.Order{
			Pair:     cfg.Pair,
			Side:     types.OrderSideSell,
			Type:     types.OrderTypeLimit,
			Price:    price,
			Quantity: perSell,
		}
		order.OriginBuyPrice = optional.Some(originPrice)

		placedOrder, err := e.PlaceOrder(ctx, order)
		if err != nil {
			e.logger.Warn("skipping sell rung",
				zap.String("pair", string(cfg.Pair)),
				zap.String("price", price.String()),
				zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		placed = append(placed, placedOrder)
	}

	return placed, firstErr
}

// CancelAll cancels every open order for the pair on the exchange and marks
// the tracked records cancelled.
func (e *Executor) CancelAll(ctx context.Context, pair types.TradingPair) (int, error) {
	cancelled, err := e.exchange.CancelAllOrders(ctx, pair)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeCancelFailed, err,
			"failed to cancel open orders for %s", pair)
	}

	tracked, err := e.repo.GetOpenOrders(ctx, pair)
	if err != nil {
		return cancelled, err
	}

	for _, order := range tracked {
		if err := e.repo.CloseOrder(ctx, order.ExchangeOrderID, types.OrderStatusCanceled); err != nil {
			e.logger.Warn("failed to mark tracked order cancelled",
				zap.String("exchange_order_id", order.ExchangeOrderID),
				zap.Error(err))
		}
	}

	if cancelled > 0 {
		e.logger.Info("cancelled open orders",
			zap.String("pair", string(pair)),
			zap.Int("count", cancelled))
	}

	return cancelled, nil
}

// MarketSellBase liquidates the given base quantity at market.
func (e *Executor) MarketSellBase(ctx context.Context, pair types.TradingPair, quantity decimal.Decimal) (types.Order, error) {
	if !quantity.IsPositive() {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidQuantity,
			"cannot market sell non-positive quantity %s", quantity)
	}

	return e.PlaceOrder(ctx, types.Order{
		Pair:     pair,
		Side:     types.OrderSideSell,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	})
}

// MarketBuyBase buys the given base quantity at market.
func (e *Executor) MarketBuyBase(ctx context.Context, pair types.TradingPair, quantity decimal.Decimal) (types.Order, error) {
	if !quantity.IsPositive() {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidQuantity,
			"cannot market buy non-positive quantity %s", quantity)
	}

	return e.PlaceOrder(ctx, types.Order{
		Pair:     pair,
		Side:     types.OrderSideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	})
}
