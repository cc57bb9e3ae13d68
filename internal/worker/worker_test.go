package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/fills"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/risk"
	"github.com/rxtech-lab/argo-grid/internal/types"
)

const (
	testCycleInterval = 10 * time.Millisecond
	waitFor           = 5 * time.Second
	pollEvery         = 10 * time.Millisecond
)

type WorkerTestSuite struct {
	suite.Suite
	paper  *exchange.PaperExchange
	repo   *repository.MemoryRepository
	worker *Worker
	ctx    context.Context
	cancel context.CancelFunc
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (suite *WorkerTestSuite) SetupTest() {
	suite.paper = exchange.NewPaperExchange()
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(100))
	suite.paper.Deposit("USDT", decimal.NewFromInt(10000))

	suite.repo = repository.NewMemoryRepository()
	suite.ctx, suite.cancel = context.WithCancel(context.Background())

	log := logger.NewNopLogger()
	notifier := notify.NewNoopNotifier()
	executor := orders.NewExecutor(suite.paper, suite.repo, log)

	suite.worker = New("BTC/USDT", Deps{
		Exchange:      suite.paper,
		Repo:          suite.repo,
		Executor:      executor,
		Risk:          risk.NewManager(suite.paper, suite.repo, executor, notifier, log),
		Notifier:      notifier,
		Aggregator:    fills.NewAggregator(),
		Logger:        log,
		CycleInterval: testCycleInterval,
	})

	_, err := suite.repo.SaveConfig(suite.ctx, types.GridConfig{
		Pair:              "BTC/USDT",
		TotalCapital:      decimal.NewFromInt(1000),
		GridLevels:        4,
		PriceRangePercent: decimal.NewFromInt(10),
		StopLossPercent:   decimal.NewFromInt(5),
		EnableStopLoss:    true,
		EnableTrailingUp:  true,
		LastDecision:      types.DecisionOperate,
	})
	suite.Require().NoError(err)
}

func (suite *WorkerTestSuite) TearDownTest() {
	suite.worker.Stop()
	suite.cancel()

	select {
	case <-suite.worker.Done():
	case <-time.After(waitFor):
	}
}

func (suite *WorkerTestSuite) openOrders() []types.Order {
	orders, err := suite.paper.GetOpenOrders(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)

	return orders
}

func (suite *WorkerTestSuite) waitForBook(condition func([]types.Order) bool) {
	suite.Require().Eventually(func() bool {
		return condition(suite.openOrders())
	}, waitFor, pollEvery)
}

func (suite *WorkerTestSuite) TestStartPlacesGridAndTrades() {
	suite.worker.Start(suite.ctx)

	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })
	suite.Equal(StateTrading, suite.worker.State())
	suite.True(suite.worker.Alive())

	cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.True(cfg.IsRunning)

	var buys, sells int

	for _, order := range suite.openOrders() {
		switch order.Side {
		case types.OrderSideBuy:
			buys++
		case types.OrderSideSell:
			sells++

			// The sell side's capital was market-bought up front: two
			// levels' worth at 100, net of the 0.1% fee, split over two rungs.
			suite.True(order.Quantity.Equal(decimal.RequireFromString("2.4975")), order.Quantity.String())
		}
	}

	suite.Equal(2, buys)
	suite.Equal(2, sells)
}

func (suite *WorkerTestSuite) TestResumeKeepsPersistedOrders() {
	placeTracked := func(price string) string {
		placed, err := suite.paper.CreateOrder(suite.ctx, types.Order{
			ClientOrderID: "grid-resume-" + price,
			Pair:          "BTC/USDT",
			Side:          types.OrderSideBuy,
			Type:          types.OrderTypeLimit,
			Price:         decimal.RequireFromString(price),
			Quantity:      decimal.NewFromInt(1),
		})
		suite.Require().NoError(err)
		suite.Require().NoError(suite.repo.SaveOrder(suite.ctx, placed))

		return placed.ExchangeOrderID
	}

	first := placeTracked("97.5")
	second := placeTracked("95")

	suite.worker.Start(suite.ctx)

	suite.Require().Eventually(func() bool {
		cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
		suite.Require().NoError(err)

		return cfg.IsRunning && cfg.StatusReason == "grid resumed"
	}, waitFor, pollEvery)

	// The surviving book was adopted as-is: same two orders, nothing new.
	book := suite.openOrders()
	suite.Require().Len(book, 2)

	ids := map[string]struct{}{book[0].ExchangeOrderID: {}, book[1].ExchangeOrderID: {}}
	suite.Contains(ids, first)
	suite.Contains(ids, second)
}

func (suite *WorkerTestSuite) TestPauseDecisionStopsWorker() {
	suite.worker.Start(suite.ctx)
	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })

	suite.Require().NoError(suite.repo.SaveDecision(suite.ctx, types.PairDecision{
		Pair:     "BTC/USDT",
		Decision: types.DecisionPause,
	}))

	select {
	case <-suite.worker.Done():
	case <-time.After(waitFor):
		suite.FailNow("worker did not honor the pause decision")
	}

	cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.False(cfg.IsRunning)
	suite.Equal(types.DecisionPause, cfg.LastDecision)
	suite.Equal(StatusReasonPaused, cfg.StatusReason)
}

func (suite *WorkerTestSuite) TestBuyFillSpawnsProfitSell() {
	suite.worker.Start(suite.ctx)
	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })

	// Price dips into the top buy rung.
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(97))

	var topBuy types.Order

	for _, order := range suite.openOrders() {
		if order.Price.Equal(decimal.RequireFromString("97.5")) {
			topBuy = order
		}
	}

	suite.Require().NotEmpty(topBuy.ExchangeOrderID)
	suite.Require().NoError(suite.paper.FillOrder(topBuy.ExchangeOrderID))

	suite.waitForBook(func(book []types.Order) bool {
		for _, order := range book {
			// 2.5% above the 97.5 buy.
			if order.Side == types.OrderSideSell && order.Price.Equal(decimal.RequireFromString("99.9375")) {
				return true
			}
		}

		return false
	})
}

func (suite *WorkerTestSuite) TestSellFillRecordsTradeAndRestoresBuy() {
	suite.worker.Start(suite.ctx)
	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })

	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(97))

	for _, order := range suite.openOrders() {
		if order.Price.Equal(decimal.RequireFromString("97.5")) {
			suite.Require().NoError(suite.paper.FillOrder(order.ExchangeOrderID))
		}
	}

	var sellID string

	suite.waitForBook(func(book []types.Order) bool {
		for _, order := range book {
			if order.Side == types.OrderSideSell && order.Price.Equal(decimal.RequireFromString("99.9375")) {
				sellID = order.ExchangeOrderID

				return true
			}
		}

		return false
	})

	// Price climbs into the sell.
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(99))
	suite.Require().NoError(suite.paper.FillOrder(sellID))

	// The rung is restored at the original buy price.
	suite.waitForBook(func(book []types.Order) bool {
		buysAt975 := 0

		for _, order := range book {
			if order.Side == types.OrderSideBuy && order.Price.Equal(decimal.RequireFromString("97.5")) {
				buysAt975++
			}
		}

		return buysAt975 == 1
	})

	suite.Require().Eventually(func() bool {
		trades, err := suite.repo.GetTrades(suite.ctx, "BTC/USDT", time.Time{})
		suite.Require().NoError(err)

		return len(trades) == 1
	}, waitFor, pollEvery)

	trades, err := suite.repo.GetTrades(suite.ctx, "BTC/USDT", time.Time{})
	suite.Require().NoError(err)
	suite.Equal(sellID, trades[0].SellOrderID)
	suite.True(trades[0].Profit.IsPositive(), trades[0].Profit.String())

	recorded, err := suite.repo.HasTradeForSell(suite.ctx, sellID)
	suite.Require().NoError(err)
	suite.True(recorded)
}

func (suite *WorkerTestSuite) TestStopLossShutsWorkerDown() {
	suite.worker.Start(suite.ctx)
	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })

	// Below the 90.25 stop level under the lowest buy at 95.
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(90))

	select {
	case <-suite.worker.Done():
	case <-time.After(waitFor):
		suite.FailNow("worker did not exit after stop loss")
	}

	suite.Equal(StateIdle, suite.worker.State())
	suite.Empty(suite.openOrders())

	cfg, err := suite.repo.GetConfig(suite.ctx, "BTC/USDT")
	suite.Require().NoError(err)
	suite.False(cfg.IsRunning)
	suite.True(strings.HasPrefix(cfg.StatusReason, risk.StatusReasonStopLoss), cfg.StatusReason)
}

func (suite *WorkerTestSuite) TestStopFlagExitsLoop() {
	suite.worker.Start(suite.ctx)
	suite.waitForBook(func(book []types.Order) bool { return len(book) == 4 })

	suite.worker.Stop()

	select {
	case <-suite.worker.Done():
	case <-time.After(waitFor):
		suite.FailNow("worker did not honor the stop flag")
	}

	suite.False(suite.worker.Alive())
	suite.Equal(StateIdle, suite.worker.State())
}

func (suite *WorkerTestSuite) TestInitFailureExitsImmediately() {
	badRepo := repository.NewMemoryRepository()
	log := logger.NewNopLogger()
	executor := orders.NewExecutor(suite.paper, badRepo, log)
	notifier := notify.NewNoopNotifier()

	// No config saved for the pair.
	worker := New("ETH/USDT", Deps{
		Exchange:      suite.paper,
		Repo:          badRepo,
		Executor:      executor,
		Risk:          risk.NewManager(suite.paper, badRepo, executor, notifier, log),
		Notifier:      notifier,
		Aggregator:    fills.NewAggregator(),
		Logger:        log,
		CycleInterval: testCycleInterval,
	})

	worker.Start(suite.ctx)

	select {
	case <-worker.Done():
	case <-time.After(waitFor):
		suite.FailNow("worker did not exit after failed initialization")
	}

	suite.Equal(StateIdle, worker.State())
}
