package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// IsOpen reports whether the order still rests on the book.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Order is a single grid order tracked by the engine.
type Order struct {
	// ClientOrderID is generated locally before submission and makes
	// placement idempotent across retries.
	ClientOrderID    string          `json:"client_order_id" validate:"required"`
	ExchangeOrderID  string          `json:"exchange_order_id"`
	Pair             TradingPair     `json:"pair" validate:"required"`
	Side             OrderSide       `json:"side" validate:"required,oneof=BUY SELL"`
	Type             OrderType       `json:"type" validate:"required,oneof=LIMIT MARKET"`
	Status           OrderStatus     `json:"status"`
	Price            decimal.Decimal `json:"price"`
	Quantity         decimal.Decimal `json:"quantity"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	// OriginBuyPrice links a profit sell back to the buy rung it came from,
	// so the replacement buy can be placed at the original level.
	OriginBuyPrice optional.Option[decimal.Decimal] `json:"origin_buy_price,omitempty"`
	// ParentOrderID is the exchange ID of the filled order this one complements.
	ParentOrderID optional.Option[string] `json:"parent_order_id,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Value returns the notional value of the order in the quote asset.
func (o Order) Value() decimal.Decimal {
	return o.Price.Mul(o.Quantity)
}
