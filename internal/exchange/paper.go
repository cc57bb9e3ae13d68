package exchange

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// PaperExchange is an in-memory venue simulation. Limit orders rest until
// crossed by a price update or filled explicitly; market orders fill
// immediately at the current price. It implements the same idempotency
// contract as the live venue: resubmitting a known client order ID returns
// the original order instead of placing a second one.
type PaperExchange struct {
	mu sync.Mutex

	prices        map[types.TradingPair]decimal.Decimal
	balances      map[string]decimal.Decimal
	openOrders    map[string]types.Order
	closedOrders  map[string]types.Order
	byClientID    map[string]string
	trades        []types.Trade
	nextOrderID   int64
	nextTradeID   int64
	makerFee      decimal.Decimal

	// FailNextCreates makes the next N CreateOrder calls fail. Used to
	// exercise retry paths.
	FailNextCreates int

	now func() time.Time
}

var _ Client = (*PaperExchange)(nil)

// NewPaperExchange creates an empty paper exchange.
func NewPaperExchange() *PaperExchange {
	return &PaperExchange{
		prices:       make(map[types.TradingPair]decimal.Decimal),
		balances:     make(map[string]decimal.Decimal),
		openOrders:   make(map[string]types.Order),
		closedOrders: make(map[string]types.Order),
		byClientID:   make(map[string]string),
		nextOrderID:  1000,
		makerFee:     DefaultMakerFee,
		now:          time.Now,
	}
}

// SetPrice sets the current price for a pair.
func (p *PaperExchange) SetPrice(pair types.TradingPair, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[pair] = price
}

// Deposit credits an asset balance.
func (p *PaperExchange) Deposit(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = p.balances[asset].Add(amount)
}

// FillOrder force-fills a resting order at its limit price. Returns an error
// if the order is not open.
func (p *PaperExchange) FillOrder(exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.openOrders[exchangeOrderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no open order %s", exchangeOrderID)
	}

	p.fillLocked(order, order.Price)

	return nil
}

// GetCurrentPrice returns the configured price for the pair.
func (p *PaperExchange) GetCurrentPrice(_ context.Context, pair types.TradingPair) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[pair]
	if !ok {
		return decimal.Zero, errors.Newf(errors.ErrCodePriceFetchFailed, "no price set for %s", pair)
	}

	return price, nil
}

// GetBalance returns the balance of a single asset.
func (p *PaperExchange) GetBalance(_ context.Context, asset string) (types.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.balances[asset]
	locked := decimal.Zero

	for _, order := range p.openOrders {
		switch {
		case order.Side == types.OrderSideBuy && order.Pair.Quote() == asset:
			locked = locked.Add(order.Value())
		case order.Side == types.OrderSideSell && order.Pair.Base() == asset:
			locked = locked.Add(order.Quantity)
		}
	}

	return types.Balance{Asset: asset, Free: total.Sub(locked), Locked: locked}, nil
}

// GetBalances returns all non-zero asset balances.
func (p *PaperExchange) GetBalances(ctx context.Context) ([]types.Balance, error) {
	p.mu.Lock()
	assets := make([]string, 0, len(p.balances))

	for asset, amount := range p.balances {
		if amount.IsPositive() {
			assets = append(assets, asset)
		}
	}
	p.mu.Unlock()

	sort.Strings(assets)

	balances := make([]types.Balance, 0, len(assets))

	for _, asset := range assets {
		balance, err := p.GetBalance(ctx, asset)
		if err != nil {
			return nil, err
		}

		balances = append(balances, balance)
	}

	return balances, nil
}

// CreateOrder places an order. Market orders fill immediately.
func (p *PaperExchange) CreateOrder(_ context.Context, order types.Order) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailNextCreates > 0 {
		p.FailNextCreates--

		return types.Order{}, errors.New(errors.ErrCodeExchangeUnavailable, "simulated venue outage")
	}

	if existingID, ok := p.byClientID[order.ClientOrderID]; ok {
		if existing, open := p.openOrders[existingID]; open {
			return existing, nil
		}

		if existing, closed := p.closedOrders[existingID]; closed {
			return existing, nil
		}
	}

	if !order.Quantity.IsPositive() {
		return types.Order{}, errors.New(errors.ErrCodeInvalidQuantity, "order quantity must be greater than zero")
	}

	p.nextOrderID++
	placed := order
	placed.ExchangeOrderID = strconv.FormatInt(p.nextOrderID, 10)
	placed.Status = types.OrderStatusNew
	placed.CreatedAt = p.now()
	placed.UpdatedAt = placed.CreatedAt
	p.byClientID[placed.ClientOrderID] = placed.ExchangeOrderID

	if placed.Type == types.OrderTypeMarket {
		price, ok := p.prices[placed.Pair]
		if !ok {
			return types.Order{}, errors.Newf(errors.ErrCodePriceFetchFailed, "no price set for %s", placed.Pair)
		}

		p.fillLocked(placed, price)
		filled := p.closedOrders[placed.ExchangeOrderID]

		return filled, nil
	}

	p.openOrders[placed.ExchangeOrderID] = placed

	return placed, nil
}

// CancelOrder cancels a single open order.
func (p *PaperExchange) CancelOrder(_ context.Context, _ types.TradingPair, exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.openOrders[exchangeOrderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no open order %s", exchangeOrderID)
	}

	delete(p.openOrders, exchangeOrderID)
	order.Status = types.OrderStatusCanceled
	order.UpdatedAt = p.now()
	p.closedOrders[exchangeOrderID] = order

	return nil
}

// CancelAllOrders cancels every open order for the pair.
func (p *PaperExchange) CancelAllOrders(_ context.Context, pair types.TradingPair) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancelled := 0

	for id, order := range p.openOrders {
		if order.Pair != pair {
			continue
		}

		delete(p.openOrders, id)
		order.Status = types.OrderStatusCanceled
		order.UpdatedAt = p.now()
		p.closedOrders[id] = order
		cancelled++
	}

	return cancelled, nil
}

// GetOpenOrders returns the orders currently resting on the book.
func (p *PaperExchange) GetOpenOrders(_ context.Context, pair types.TradingPair) ([]types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	orders := make([]types.Order, 0)

	for _, order := range p.openOrders {
		if order.Pair == pair {
			orders = append(orders, order)
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ExchangeOrderID < orders[j].ExchangeOrderID
	})

	return orders, nil
}

// GetOrderStatus fetches the current state of a single order.
func (p *PaperExchange) GetOrderStatus(_ context.Context, _ types.TradingPair, exchangeOrderID string) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if order, ok := p.openOrders[exchangeOrderID]; ok {
		return order, nil
	}

	if order, ok := p.closedOrders[exchangeOrderID]; ok {
		return order, nil
	}

	return types.Order{}, errors.Newf(errors.ErrCodeOrderNotFound, "unknown order %s", exchangeOrderID)
}

// GetClosedOrders returns orders finalized since the given time.
func (p *PaperExchange) GetClosedOrders(_ context.Context, pair types.TradingPair, since time.Time, limit int) ([]types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	orders := make([]types.Order, 0)

	for _, order := range p.closedOrders {
		if order.Pair != pair {
			continue
		}

		if !since.IsZero() && order.UpdatedAt.Before(since) {
			continue
		}

		orders = append(orders, order)
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].UpdatedAt.Before(orders[j].UpdatedAt)
	})

	if limit > 0 && len(orders) > limit {
		orders = orders[len(orders)-limit:]
	}

	return orders, nil
}

// GetRecentTrades returns the most recent executions for the pair.
func (p *PaperExchange) GetRecentTrades(_ context.Context, pair types.TradingPair, limit int) ([]types.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	trades := make([]types.Trade, 0)

	for _, trade := range p.trades {
		if trade.Pair == pair {
			trades = append(trades, trade)
		}
	}

	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	return trades, nil
}

// GetTradeFee returns the simulated fee rates.
func (p *PaperExchange) GetTradeFee(_ context.Context, _ types.TradingPair) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.makerFee, p.makerFee, nil
}

// SetMakerFee overrides the simulated maker fee rate.
func (p *PaperExchange) SetMakerFee(rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.makerFee = rate
}

// fillLocked finalizes an order at the given price and settles balances.
// Caller must hold p.mu.
func (p *PaperExchange) fillLocked(order types.Order, price decimal.Decimal) {
	delete(p.openOrders, order.ExchangeOrderID)

	order.Status = types.OrderStatusFilled
	order.ExecutedQuantity = order.Quantity
	if order.Type == types.OrderTypeMarket {
		order.Price = price
	}
	order.UpdatedAt = p.now()
	p.closedOrders[order.ExchangeOrderID] = order

	base := order.Pair.Base()
	quote := order.Pair.Quote()
	notional := price.Mul(order.Quantity)

	if order.Side == types.OrderSideBuy {
		p.balances[quote] = p.balances[quote].Sub(notional)
		p.balances[base] = p.balances[base].Add(NetAmountAfterFees(order.Quantity, order.Side, p.makerFee))
	} else {
		p.balances[base] = p.balances[base].Sub(order.Quantity)
		p.balances[quote] = p.balances[quote].Add(notional.Mul(decimal.NewFromInt(1).Sub(p.makerFee)))
	}

	p.nextTradeID++
	p.trades = append(p.trades, types.Trade{
		ID:       strconv.FormatInt(p.nextTradeID, 10),
		OrderID:  order.ExchangeOrderID,
		Pair:     order.Pair,
		Side:     order.Side,
		Price:    price,
		Quantity: order.Quantity,
		Time:     order.UpdatedAt,
	})
}
