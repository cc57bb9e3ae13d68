// Package exchange defines the trading venue abstraction used by the grid
// engine and its Binance and paper implementations.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
)

// Client is the venue surface the grid engine depends on. Implementations
// must be safe for concurrent use by multiple pair workers.
type Client interface {
	// GetCurrentPrice returns the latest traded price for the pair.
	GetCurrentPrice(ctx context.Context, pair types.TradingPair) (decimal.Decimal, error)

	// GetBalance returns the balance of a single asset.
	GetBalance(ctx context.Context, asset string) (types.Balance, error)

	// GetBalances returns all non-zero asset balances.
	GetBalances(ctx context.Context) ([]types.Balance, error)

	// CreateOrder submits the order. The order's ClientOrderID is forwarded
	// to the venue so that resubmissions of the same order are rejected as
	// duplicates rather than executed twice. The returned order carries the
	// exchange order ID and status.
	CreateOrder(ctx context.Context, order types.Order) (types.Order, error)

	// CancelOrder cancels a single open order.
	CancelOrder(ctx context.Context, pair types.TradingPair, exchangeOrderID string) error

	// CancelAllOrders cancels every open order for the pair and returns the
	// number of orders cancelled.
	CancelAllOrders(ctx context.Context, pair types.TradingPair) (int, error)

	// GetOpenOrders returns the orders currently resting on the book.
	GetOpenOrders(ctx context.Context, pair types.TradingPair) ([]types.Order, error)

	// GetOrderStatus fetches the current state of a single order.
	GetOrderStatus(ctx context.Context, pair types.TradingPair, exchangeOrderID string) (types.Order, error)

	// GetClosedOrders returns orders finalized since the given time,
	// newest last, capped at limit.
	GetClosedOrders(ctx context.Context, pair types.TradingPair, since time.Time, limit int) ([]types.Order, error)

	// GetRecentTrades returns the most recent executions for the pair,
	// capped at limit. Each trade references its parent order ID.
	GetRecentTrades(ctx context.Context, pair types.TradingPair, limit int) ([]types.Trade, error)

	// GetTradeFee returns the maker and taker fee rates for the pair.
	GetTradeFee(ctx context.Context, pair types.TradingPair) (maker, taker decimal.Decimal, err error)
}

// DefaultMakerFee is used when the venue does not report fee rates.
var DefaultMakerFee = decimal.RequireFromString("0.001")

// netQuantityPrecision is the precision net amounts are quantized to.
const netQuantityPrecision = 6

// knownMinimumOrderValues maps quote assets to their exchange minimum
// notional. Unknown quotes fall back to DefaultMinimumOrderValue.
var knownMinimumOrderValues = map[string]decimal.Decimal{
	"USDT": decimal.NewFromInt(10),
	"USDC": decimal.NewFromInt(10),
	"BUSD": decimal.NewFromInt(10),
}

// DefaultMinimumOrderValue is the fallback minimum notional per order.
var DefaultMinimumOrderValue = decimal.NewFromInt(10)

// MinimumOrderValue returns the minimum notional accepted for the pair.
func MinimumOrderValue(pair types.TradingPair) decimal.Decimal {
	if minimum, ok := knownMinimumOrderValues[pair.Quote()]; ok {
		return minimum
	}

	return DefaultMinimumOrderValue
}

// NetAmountAfterFees returns the base quantity actually credited after the
// venue takes its fee from a buy fill. Sell fills pay fees in the quote
// asset, so the base quantity is unchanged.
func NetAmountAfterFees(grossQuantity decimal.Decimal, side types.OrderSide, feeRate decimal.Decimal) decimal.Decimal {
	if side != types.OrderSideBuy {
		return grossQuantity
	}

	net := grossQuantity.Mul(decimal.NewFromInt(1).Sub(feeRate))

	return net.RoundDown(netQuantityPrecision)
}
