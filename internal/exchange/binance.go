package exchange

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// ListOpenOrdersService interface for listing open orders.
type ListOpenOrdersService interface {
	Symbol(symbol string) ListOpenOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// GetOrderService interface for fetching a single order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*binance.Order, error)
}

// ListOrdersService interface for listing historical orders.
type ListOrdersService interface {
	Symbol(symbol string) ListOrdersService
	StartTime(startTime int64) ListOrdersService
	Limit(limit int) ListOrdersService
	Do(ctx context.Context) ([]*binance.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// CancelOpenOrdersService interface for canceling all open orders for a symbol.
type CancelOpenOrdersService interface {
	Symbol(symbol string) CancelOpenOrdersService
	Do(ctx context.Context) error
}

// ListTradesService interface for listing trades.
type ListTradesService interface {
	Symbol(symbol string) ListTradesService
	Limit(limit int) ListTradesService
	Do(ctx context.Context) ([]*binance.TradeV3, error)
}

// ListPricesService interface for fetching ticker prices.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*binance.SymbolPrice, error)
}

// TradeFeeService interface for getting trade fees.
type TradeFeeService interface {
	Symbol(symbol string) TradeFeeService
	Do(ctx context.Context) ([]*binance.TradeFeeDetails, error)
}

// BinanceAPI abstracts the Binance client for testing.
type BinanceAPI interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewListOpenOrdersService() ListOpenOrdersService
	NewGetOrderService() GetOrderService
	NewListOrdersService() ListOrdersService
	NewCancelOrderService() CancelOrderService
	NewCancelOpenOrdersService() CancelOpenOrdersService
	NewListTradesService() ListTradesService
	NewListPricesService() ListPricesService
	NewTradeFeeService() TradeFeeService
}

// realBinanceAPI wraps the actual binance.Client.
type realBinanceAPI struct {
	client *binance.Client
}

func (r *realBinanceAPI) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceAPI) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realBinanceAPI) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realBinanceAPI) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realBinanceAPI) NewListOrdersService() ListOrdersService {
	return &realListOrdersService{service: r.client.NewListOrdersService()}
}

func (r *realBinanceAPI) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realBinanceAPI) NewCancelOpenOrdersService() CancelOpenOrdersService {
	return &realCancelOpenOrdersService{service: r.client.NewCancelOpenOrdersService()}
}

func (r *realBinanceAPI) NewListTradesService() ListTradesService {
	return &realListTradesService{service: r.client.NewListTradesService()}
}

func (r *realBinanceAPI) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

func (r *realBinanceAPI) NewTradeFeeService() TradeFeeService {
	return &realTradeFeeService{service: r.client.NewTradeFeeService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *binance.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Symbol(symbol string) ListOpenOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *binance.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*binance.Order, error) {
	return s.service.Do(ctx)
}

type realListOrdersService struct {
	service *binance.ListOrdersService
}

func (s *realListOrdersService) Symbol(symbol string) ListOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListOrdersService) StartTime(startTime int64) ListOrdersService {
	s.service = s.service.StartTime(startTime)

	return s
}

func (s *realListOrdersService) Limit(limit int) ListOrdersService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realListOrdersService) Do(ctx context.Context) ([]*binance.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCancelOpenOrdersService struct {
	service *binance.CancelOpenOrdersService
}

func (s *realCancelOpenOrdersService) Symbol(symbol string) CancelOpenOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOpenOrdersService) Do(ctx context.Context) error {
	_, err := s.service.Do(ctx)

	return err
}

type realListTradesService struct {
	service *binance.ListTradesService
}

func (s *realListTradesService) Symbol(symbol string) ListTradesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListTradesService) Limit(limit int) ListTradesService {
	s.service = s.service.Limit(limit)

	return s
}

func (s *realListTradesService) Do(ctx context.Context) ([]*binance.TradeV3, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *binance.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*binance.SymbolPrice, error) {
	return s.service.Do(ctx)
}

type realTradeFeeService struct {
	service *binance.TradeFeeService
}

func (s *realTradeFeeService) Symbol(symbol string) TradeFeeService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realTradeFeeService) Do(ctx context.Context) ([]*binance.TradeFeeDetails, error) {
	return s.service.Do(ctx)
}

// BinanceExchange implements Client against the Binance spot API.
// It is stateless - all data is fetched directly from the Binance API.
type BinanceExchange struct {
	api BinanceAPI
}

var _ Client = (*BinanceExchange)(nil)

// BinanceConfig holds the credentials and endpoint for a Binance connection.
type BinanceConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key" validate:"required"`
	SecretKey string `yaml:"secret_key" json:"secret_key" validate:"required"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
}

// NewBinanceExchange creates a new Binance exchange client.
// If useTestnet is true, connects to the Binance testnet.
// If config.BaseURL is set, it takes precedence over useTestnet.
func NewBinanceExchange(config BinanceConfig, useTestnet bool) *BinanceExchange {
	if useTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &BinanceExchange{api: &realBinanceAPI{client: client}}
}

// newBinanceExchangeWithAPI creates a Binance exchange with a custom API.
// This is used for testing with stub clients.
func newBinanceExchangeWithAPI(api BinanceAPI) *BinanceExchange {
	return &BinanceExchange{api: api}
}

// Binance API codes that signal throttling rather than a rejected request.
const (
	binanceCodeTooManyRequests = -1003
	binanceCodeTooManyOrders   = -1015
)

// classifyVenueError promotes network timeouts and throttling responses to
// ErrCodeExchangeUnavailable, which IsTransient recognizes, so callers retry
// instead of treating the failure as final.
func classifyVenueError(code errors.ErrorCode, err error) errors.ErrorCode {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrCodeExchangeUnavailable
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeTooManyRequests, binanceCodeTooManyOrders:
			return errors.ErrCodeExchangeUnavailable
		}
	}

	return code
}

// GetCurrentPrice returns the latest traded price for the pair.
func (b *BinanceExchange) GetCurrentPrice(ctx context.Context, pair types.TradingPair) (decimal.Decimal, error) {
	prices, err := b.api.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(classifyVenueError(errors.ErrCodePriceFetchFailed, err), err, "failed to fetch price for %s", pair)
	}

	if len(prices) == 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodePriceFetchFailed, "no price returned for %s", pair)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodePriceFetchFailed, err, "unparsable price %q for %s", prices[0].Price, pair)
	}

	return price, nil
}

// GetBalance returns the balance of a single asset.
func (b *BinanceExchange) GetBalance(ctx context.Context, asset string) (types.Balance, error) {
	balances, err := b.GetBalances(ctx)
	if err != nil {
		return types.Balance{}, err
	}

	for _, balance := range balances {
		if balance.Asset == asset {
			return balance, nil
		}
	}

	return types.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
}

// GetBalances returns all non-zero asset balances.
func (b *BinanceExchange) GetBalances(ctx context.Context) ([]types.Balance, error) {
	account, err := b.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(classifyVenueError(errors.ErrCodeBalanceFetchFailed, err), "failed to fetch account balances", err)
	}

	balances := make([]types.Balance, 0, len(account.Balances))

	for _, raw := range account.Balances {
		free, err := decimal.NewFromString(raw.Free)
		if err != nil {
			continue
		}

		locked, err := decimal.NewFromString(raw.Locked)
		if err != nil {
			continue
		}

		if free.Add(locked).IsPositive() {
			balances = append(balances, types.Balance{Asset: raw.Asset, Free: free, Locked: locked})
		}
	}

	return balances, nil
}

// CreateOrder submits the order with its client order ID for idempotency.
func (b *BinanceExchange) CreateOrder(ctx context.Context, order types.Order) (types.Order, error) {
	var side binance.SideType

	switch order.Side {
	case types.OrderSideBuy:
		side = binance.SideTypeBuy
	case types.OrderSideSell:
		side = binance.SideTypeSell
	default:
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", order.Side)
	}

	var orderType binance.OrderType

	switch order.Type {
	case types.OrderTypeLimit:
		orderType = binance.OrderTypeLimit
	case types.OrderTypeMarket:
		orderType = binance.OrderTypeMarket
	default:
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type: %s", order.Type)
	}

	if !order.Quantity.IsPositive() {
		return types.Order{}, errors.New(errors.ErrCodeInvalidQuantity, "order quantity must be greater than zero")
	}

	service := b.api.NewCreateOrderService().
		Symbol(order.Pair.Symbol()).
		Side(side).
		Type(orderType).
		Quantity(order.Quantity.String()).
		NewClientOrderID(order.ClientOrderID)

	if order.Type == types.OrderTypeLimit {
		service = service.
			Price(order.Price.String()).
			TimeInForce(binance.TimeInForceTypeGTC)
	}

	response, err := service.Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrap(classifyVenueError(errors.ErrCodeOrderFailed, err), "failed to place order on Binance", err)
	}

	placed := order
	placed.ExchangeOrderID = strconv.FormatInt(response.OrderID, 10)
	placed.Status = mapBinanceOrderStatus(response.Status)

	if executed, err := decimal.NewFromString(response.ExecutedQuantity); err == nil {
		placed.ExecutedQuantity = executed
	}

	placed.UpdatedAt = time.UnixMilli(response.TransactTime)

	return placed, nil
}

// CancelOrder cancels a single open order.
func (b *BinanceExchange) CancelOrder(ctx context.Context, pair types.TradingPair, exchangeOrderID string) error {
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid exchange order id %q", exchangeOrderID)
	}

	_, err = b.api.NewCancelOrderService().Symbol(pair.Symbol()).OrderID(orderID).Do(ctx)
	if err != nil {
		return errors.Wrapf(classifyVenueError(errors.ErrCodeCancelFailed, err), err, "failed to cancel order %s for %s", exchangeOrderID, pair)
	}

	return nil
}

// CancelAllOrders cancels every open order for the pair.
func (b *BinanceExchange) CancelAllOrders(ctx context.Context, pair types.TradingPair) (int, error) {
	open, err := b.GetOpenOrders(ctx, pair)
	if err != nil {
		return 0, err
	}

	if len(open) == 0 {
		return 0, nil
	}

	if err := b.api.NewCancelOpenOrdersService().Symbol(pair.Symbol()).Do(ctx); err != nil {
		return 0, errors.Wrapf(classifyVenueError(errors.ErrCodeCancelFailed, err), err, "failed to cancel open orders for %s", pair)
	}

	return len(open), nil
}

// GetOpenOrders returns the orders currently resting on the book.
func (b *BinanceExchange) GetOpenOrders(ctx context.Context, pair types.TradingPair) ([]types.Order, error) {
	raw, err := b.api.NewListOpenOrdersService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(classifyVenueError(errors.ErrCodeOrderFetchFailed, err), err, "failed to list open orders for %s", pair)
	}

	orders := make([]types.Order, 0, len(raw))
	for _, order := range raw {
		orders = append(orders, fromBinanceOrder(order, pair))
	}

	return orders, nil
}

// GetOrderStatus fetches the current state of a single order.
func (b *BinanceExchange) GetOrderStatus(ctx context.Context, pair types.TradingPair, exchangeOrderID string) (types.Order, error) {
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return types.Order{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid exchange order id %q", exchangeOrderID)
	}

	raw, err := b.api.NewGetOrderService().Symbol(pair.Symbol()).OrderID(orderID).Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrapf(classifyVenueError(errors.ErrCodeOrderFetchFailed, err), err, "failed to fetch order %s for %s", exchangeOrderID, pair)
	}

	return fromBinanceOrder(raw, pair), nil
}

// GetClosedOrders returns orders finalized since the given time.
func (b *BinanceExchange) GetClosedOrders(ctx context.Context, pair types.TradingPair, since time.Time, limit int) ([]types.Order, error) {
	service := b.api.NewListOrdersService().Symbol(pair.Symbol()).Limit(limit)
	if !since.IsZero() {
		service = service.StartTime(since.UnixMilli())
	}

	raw, err := service.Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(classifyVenueError(errors.ErrCodeOrderFetchFailed, err), err, "failed to list orders for %s", pair)
	}

	orders := make([]types.Order, 0, len(raw))

	for _, order := range raw {
		mapped := fromBinanceOrder(order, pair)
		if mapped.Status.IsOpen() {
			continue
		}

		orders = append(orders, mapped)
	}

	return orders, nil
}

// GetRecentTrades returns the most recent executions for the pair.
func (b *BinanceExchange) GetRecentTrades(ctx context.Context, pair types.TradingPair, limit int) ([]types.Trade, error) {
	raw, err := b.api.NewListTradesService().Symbol(pair.Symbol()).Limit(limit).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(classifyVenueError(errors.ErrCodeTradeFetchFailed, err), err, "failed to list trades for %s", pair)
	}

	trades := make([]types.Trade, 0, len(raw))

	for _, trade := range raw {
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			continue
		}

		quantity, err := decimal.NewFromString(trade.Quantity)
		if err != nil {
			continue
		}

		side := types.OrderSideSell
		if trade.IsBuyer {
			side = types.OrderSideBuy
		}

		trades = append(trades, types.Trade{
			ID:       strconv.FormatInt(trade.ID, 10),
			OrderID:  strconv.FormatInt(trade.OrderID, 10),
			Pair:     pair,
			Side:     side,
			Price:    price,
			Quantity: quantity,
			Time:     time.UnixMilli(trade.Time),
		})
	}

	return trades, nil
}

// GetTradeFee returns the maker and taker fee rates for the pair. Falls back
// to DefaultMakerFee when the venue does not report fees for the symbol.
func (b *BinanceExchange) GetTradeFee(ctx context.Context, pair types.TradingPair) (decimal.Decimal, decimal.Decimal, error) {
	details, err := b.api.NewTradeFeeService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(errors.ErrCodeExchangeUnavailable, err, "failed to fetch trade fee for %s", pair)
	}

	if len(details) == 0 {
		return DefaultMakerFee, DefaultMakerFee, nil
	}

	maker, err := decimal.NewFromString(details[0].MakerCommission)
	if err != nil {
		maker = DefaultMakerFee
	}

	taker, err := decimal.NewFromString(details[0].TakerCommission)
	if err != nil {
		taker = DefaultMakerFee
	}

	return maker, taker, nil
}

func mapBinanceOrderStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case binance.OrderStatusTypeCanceled:
		return types.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	case binance.OrderStatusTypeExpired:
		return types.OrderStatusExpired
	default:
		return types.OrderStatusFailed
	}
}

func fromBinanceOrder(order *binance.Order, pair types.TradingPair) types.Order {
	price, _ := decimal.NewFromString(order.Price)
	quantity, _ := decimal.NewFromString(order.OrigQuantity)
	executed, _ := decimal.NewFromString(order.ExecutedQuantity)

	side := types.OrderSideSell
	if order.Side == binance.SideTypeBuy {
		side = types.OrderSideBuy
	}

	orderType := types.OrderTypeLimit
	if order.Type == binance.OrderTypeMarket {
		orderType = types.OrderTypeMarket
	}

	return types.Order{
		ClientOrderID:    order.ClientOrderID,
		ExchangeOrderID:  strconv.FormatInt(order.OrderID, 10),
		Pair:             pair,
		Side:             side,
		Type:             orderType,
		Status:           mapBinanceOrderStatus(order.Status),
		Price:            price,
		Quantity:         quantity,
		ExecutedQuantity: executed,
		CreatedAt:        time.UnixMilli(order.Time),
		UpdatedAt:        time.UnixMilli(order.UpdateTime),
	}
}
