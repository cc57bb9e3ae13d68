package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// FillSource identifies which detection signal reported a fill.
type FillSource string

const (
	// FillSourceComparison means the order left the open set between polls
	// and its status was confirmed as filled.
	FillSourceComparison FillSource = "comparison"
	// FillSourceClosedOrders means the fill came from the closed orders feed.
	FillSourceClosedOrders FillSource = "closed_orders"
	// FillSourceTradeHistory means the fill was resolved from recent trades.
	FillSourceTradeHistory FillSource = "trade_history"
)

// Fill is a detected execution of a tracked grid order.
type Fill struct {
	Order    Order
	Source   FillSource
	FilledAt time.Time
}

// GridTrade is a completed buy/sell round trip for a pair.
type GridTrade struct {
	ID             int64           `json:"id"`
	Pair           TradingPair     `json:"pair"`
	BuyOrderID     string          `json:"buy_order_id"`
	SellOrderID    string          `json:"sell_order_id"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	SellPrice      decimal.Decimal `json:"sell_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	Profit         decimal.Decimal `json:"profit"`
	ProfitPercent  decimal.Decimal `json:"profit_percent"`
	ExecutedAt     time.Time       `json:"executed_at"`
}

// Trade is a raw execution reported by the exchange trade history.
type Trade struct {
	ID       string
	OrderID  string
	Pair     TradingPair
	Side     OrderSide
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

// Balance is the free/locked amount of a single asset.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total returns free plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// AllocatedBalance summarizes what a single pair's worker may spend.
type AllocatedBalance struct {
	AllocatedCapital decimal.Decimal
	BaseQuantity     decimal.Decimal
	BaseValueQuote   decimal.Decimal
	QuoteValue       decimal.Decimal
	TotalValueQuote  decimal.Decimal
}
