package risk

import (
	"context"
	"strings"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/mocks"
)

func openBuy(price string) types.Order {
	return types.Order{
		Side:   types.OrderSideBuy,
		Status: types.OrderStatusNew,
		Price:  decimal.RequireFromString(price),
	}
}

func openSell(price string) types.Order {
	return types.Order{
		Side:   types.OrderSideSell,
		Status: types.OrderStatusNew,
		Price:  decimal.RequireFromString(price),
	}
}

func testConfig() types.GridConfig {
	return types.GridConfig{
		ID:                1,
		Pair:              "BTC/USDT",
		TotalCapital:      decimal.NewFromInt(1000),
		GridLevels:        4,
		PriceRangePercent: decimal.NewFromInt(10),
		StopLossPercent:   decimal.NewFromInt(5),
		EnableStopLoss:    true,
		EnableTrailingUp:  true,
		LastDecision:      types.DecisionOperate,
	}
}

func TestStopLossTrigger(t *testing.T) {
	cfg := testConfig()
	open := []types.Order{openBuy("100"), openBuy("97.5")}

	tests := []struct {
		name      string
		price     string
		triggered bool
	}{
		{"well above stop level", "99", false},
		{"just above stop level", "92.6251", false},
		{"exactly at stop level", "92.625", true},
		{"below stop level", "92.62", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StopLossTriggered(cfg, decimal.RequireFromString(tt.price), open)
			if got != tt.triggered {
				t.Errorf("price %s: triggered = %v, want %v", tt.price, got, tt.triggered)
			}
		})
	}
}

func TestStopLossNeedsOpenBuys(t *testing.T) {
	cfg := testConfig()
	open := []types.Order{openSell("105")}

	if StopLossTriggered(cfg, decimal.NewFromInt(1), open) {
		t.Error("stop loss must not trigger without open buys")
	}
}

func TestStopLossDisabledAtZeroPercent(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPercent = decimal.Zero

	if StopLossTriggered(cfg, decimal.NewFromInt(1), []types.Order{openBuy("100")}) {
		t.Error("zero stop loss percent must disable the stop loss")
	}
}

func TestStopLossDisabledByFlag(t *testing.T) {
	cfg := testConfig()
	cfg.EnableStopLoss = false

	if StopLossTriggered(cfg, decimal.NewFromInt(1), []types.Order{openBuy("100")}) {
		t.Error("disabled stop loss must never trigger")
	}
}

func TestTrailingUpTrigger(t *testing.T) {
	cfg := testConfig()
	open := []types.Order{openSell("105"), openSell("110")}

	tests := []struct {
		name      string
		price     string
		triggered bool
	}{
		{"below highest sell", "109.99", false},
		{"exactly at highest sell", "110", true},
		{"above highest sell", "111", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrailingUpTriggered(cfg, decimal.RequireFromString(tt.price), open)
			if got != tt.triggered {
				t.Errorf("price %s: triggered = %v, want %v", tt.price, got, tt.triggered)
			}
		})
	}
}

func TestTrailingUpNeedsOpenSells(t *testing.T) {
	if TrailingUpTriggered(testConfig(), decimal.NewFromInt(1000), []types.Order{openBuy("95")}) {
		t.Error("trailing up must not trigger without open sells")
	}
}

func TestTrailingUpDisabledByFlag(t *testing.T) {
	cfg := testConfig()
	cfg.EnableTrailingUp = false

	if TrailingUpTriggered(cfg, decimal.NewFromInt(1000), []types.Order{openSell("105")}) {
		t.Error("disabled trailing up must never trigger")
	}
}

func TestEstimatedLiquidationLoss(t *testing.T) {
	underwater := openSell("102.5")
	underwater.OriginBuyPrice = optional.Some(decimal.RequireFromString("97.5"))
	underwater.Quantity = decimal.NewFromInt(2)

	inProfit := openSell("105")
	inProfit.OriginBuyPrice = optional.Some(decimal.RequireFromString("90"))
	inProfit.Quantity = decimal.NewFromInt(1)

	noOrigin := openSell("110")
	noOrigin.Quantity = decimal.NewFromInt(3)

	open := []types.Order{underwater, inProfit, noOrigin, openBuy("95")}

	// Only the underwater sell counts: (97.5 - 92) * 2 = 11.
	loss := estimatedLiquidationLoss(open, decimal.NewFromInt(92))
	if !loss.Equal(decimal.NewFromInt(11)) {
		t.Errorf("estimated loss = %s, want 11", loss)
	}
}

type ManagerTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	paper    *exchange.PaperExchange
	repo     *repository.MemoryRepository
	notifier *mocks.MockNotifier
	manager  *Manager
	ctx      context.Context
	cfg      types.GridConfig
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.paper = exchange.NewPaperExchange()
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(100))
	suite.paper.Deposit("USDT", decimal.NewFromInt(10000))

	suite.repo = repository.NewMemoryRepository()
	suite.notifier = mocks.NewMockNotifier(suite.ctrl)

	log := logger.NewNopLogger()
	executor := orders.NewExecutor(suite.paper, suite.repo, log)
	suite.manager = NewManager(suite.paper, suite.repo, executor, suite.notifier, log)
	suite.ctx = context.Background()

	cfg, err := suite.repo.SaveConfig(suite.ctx, testConfig())
	suite.Require().NoError(err)
	suite.cfg = cfg
}

func (suite *ManagerTestSuite) TestEvaluateNoAction() {
	open := []types.Order{openBuy("97.5"), openSell("105")}

	action, err := suite.manager.Evaluate(suite.ctx, suite.cfg, decimal.NewFromInt(100), open)
	suite.Require().NoError(err)
	suite.Equal(ActionNone, action)
}

func (suite *ManagerTestSuite) TestStopLossLiquidatesAndStops() {
	suite.paper.Deposit("BTC", decimal.NewFromInt(5))

	placed, err := suite.paper.CreateOrder(suite.ctx, types.Order{
		ClientOrderID: "buy-1",
		Pair:          "BTC/USDT",
		Side:          types.OrderSideBuy,
		Type:          types.OrderTypeLimit,
		Price:         decimal.RequireFromString("97.5"),
		Quantity:      decimal.NewFromInt(1),
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.repo.SaveOrder(suite.ctx, placed))

	suite.paper.SetPrice("BTC/USDT", decimal.RequireFromString("92"))
	suite.notifier.EXPECT().
		NotifyBotStatus(gomock.Any(), types.TradingPair("BTC/USDT"), "Stop loss activated", gomock.Any()).
		Return(nil)

	open := []types.Order{placed}

	action, err := suite.manager.Evaluate(suite.ctx, suite.cfg, decimal.RequireFromString("92"), open)
	suite.Require().NoError(err)
	suite.Equal(ActionStopLoss, action)

	// Book cleared, base liquidated, config stopped.
	onBook, err := suite.paper.GetOpenOrders(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.Empty(onBook)

	balance, err := suite.paper.GetBalance(suite.ctx, "BTC")
	suite.Require().NoError(err)
	suite.True(balance.Free.IsZero(), balance.Free.String())

	cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.False(cfg.IsRunning)
	suite.True(strings.HasPrefix(cfg.StatusReason, StatusReasonStopLoss), cfg.StatusReason)
}

func (suite *ManagerTestSuite) TestStopLossRecordsEstimatedLoss() {
	suite.notifier.EXPECT().
		NotifyBotStatus(gomock.Any(), types.TradingPair("BTC/USDT"), "Stop loss activated", gomock.Any()).
		Return(nil)

	underwater := openSell("99.9375")
	underwater.OriginBuyPrice = optional.Some(decimal.RequireFromString("97.5"))
	underwater.Quantity = decimal.NewFromInt(2)

	open := []types.Order{openBuy("97"), underwater}

	suite.paper.SetPrice("BTC/USDT", decimal.RequireFromString("92"))

	action, err := suite.manager.Evaluate(suite.ctx, suite.cfg, decimal.RequireFromString("92"), open)
	suite.Require().NoError(err)
	suite.Equal(ActionStopLoss, action)

	cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)

	// (97.5 - 92) * 2 = 11 USDT down on the liquidated rung.
	suite.Contains(cfg.StatusReason, "estimated loss 11 USDT")
}

func (suite *ManagerTestSuite) TestTrailingUpRecenters() {
	suite.notifier.EXPECT().
		NotifyBotStatus(gomock.Any(), types.TradingPair("BTC/USDT"), "Grid recentered upward", gomock.Any()).
		Return(nil)

	suite.paper.Deposit("BTC", decimal.NewFromInt(5))

	newPrice := decimal.NewFromInt(110)
	suite.paper.SetPrice("BTC/USDT", newPrice)

	open := []types.Order{openSell("105"), openSell("110")}

	action, err := suite.manager.Evaluate(suite.ctx, suite.cfg, newPrice, open)
	suite.Require().NoError(err)
	suite.Equal(ActionTrailingUp, action)

	onBook, err := suite.paper.GetOpenOrders(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.Require().Len(onBook, 4)

	var buys, sells int

	for _, order := range onBook {
		switch order.Side {
		case types.OrderSideBuy:
			buys++
			suite.True(order.Price.LessThan(newPrice), order.Price.String())
		case types.OrderSideSell:
			sells++
			suite.True(order.Price.GreaterThan(newPrice), order.Price.String())

			// Half the held base per sell rung, nothing bought at market.
			suite.True(order.Quantity.Equal(decimal.RequireFromString("2.5")), order.Quantity.String())
		}
	}

	suite.Equal(2, buys)
	suite.Equal(2, sells)
}

func (suite *ManagerTestSuite) TestTrailingUpBuysNothingAtMarket() {
	suite.notifier.EXPECT().
		NotifyBotStatus(gomock.Any(), types.TradingPair("BTC/USDT"), "Grid recentered upward", gomock.Any()).
		Return(nil)

	suite.paper.Deposit("BTC", decimal.NewFromInt(4))

	newPrice := decimal.NewFromInt(110)
	suite.paper.SetPrice("BTC/USDT", newPrice)

	open := []types.Order{openSell("105"), openSell("110")}

	_, err := suite.manager.Evaluate(suite.ctx, suite.cfg, newPrice, open)
	suite.Require().NoError(err)

	trades, err := suite.paper.GetRecentTrades(suite.ctx, "BTC/USDT", 10)
	suite.Require().NoError(err)
	suite.Empty(trades)

	// The held base funds the sells as-is.
	balance, err := suite.paper.GetBalance(suite.ctx, "BTC")
	suite.Require().NoError(err)
	suite.True(balance.Total().Equal(decimal.NewFromInt(4)), balance.Total().String())
}

func (suite *ManagerTestSuite) TestStopLossWinsOverTrailingUp() {
	suite.paper.Deposit("BTC", decimal.NewFromInt(1))
	suite.notifier.EXPECT().
		NotifyBotStatus(gomock.Any(), gomock.Any(), "Stop loss activated", gomock.Any()).
		Return(nil)

	// A book where a single absurd price satisfies both triggers.
	open := []types.Order{openBuy("10000"), openSell("50")}

	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(100))

	action, err := suite.manager.Evaluate(suite.ctx, suite.cfg, decimal.NewFromInt(100), open)
	suite.Require().NoError(err)
	suite.Equal(ActionStopLoss, action)
}
