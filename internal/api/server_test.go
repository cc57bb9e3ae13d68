package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/scheduler"
	"github.com/rxtech-lab/argo-grid/internal/startup"
	"github.com/rxtech-lab/argo-grid/internal/types"
)

type ServerTestSuite struct {
	suite.Suite
	paper  *exchange.PaperExchange
	repo   *repository.MemoryRepository
	sched  *scheduler.Scheduler
	server *Server
	client *http.Client
	ctx    context.Context
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.paper = exchange.NewPaperExchange()
	suite.paper.SetPrice("BTC/USDT", decimal.NewFromInt(100))
	suite.paper.Deposit("USDT", decimal.NewFromInt(10000))

	suite.repo = repository.NewMemoryRepository()
	suite.ctx = context.Background()

	log := logger.NewNopLogger()
	suite.sched = scheduler.New(suite.paper, suite.repo, notify.NewNoopNotifier(), log, scheduler.Config{
		WorkerCycleInterval: 10 * time.Millisecond,
	})

	suite.server = NewServer("127.0.0.1:0", suite.sched, suite.repo,
		startup.NewIntegrityChecker(suite.paper, suite.repo, log), log)
	suite.Require().NoError(suite.server.Start())
	suite.client = &http.Client{Timeout: 5 * time.Second}

	_, err := suite.repo.SaveConfig(suite.ctx, types.GridConfig{
		Pair:              "BTC/USDT",
		TotalCapital:      decimal.NewFromInt(1000),
		GridLevels:        4,
		PriceRangePercent: decimal.NewFromInt(10),
		StopLossPercent:   decimal.NewFromInt(5),
		LastDecision:      types.DecisionPause,
	})
	suite.Require().NoError(err)
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.NoError(suite.sched.ClearAll(suite.ctx))
	suite.NoError(suite.server.Shutdown(suite.ctx))
}

func (suite *ServerTestSuite) url(path string) string {
	return "http://" + suite.server.Addr() + path
}

func (suite *ServerTestSuite) TestHealth() {
	resp, err := suite.client.Get(suite.url("/health"))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)

	var report startup.IntegrityReport
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&report))
	suite.Equal(startup.HealthHealthy, report.Health)
	suite.Len(report.Checks, 4)
}

func (suite *ServerTestSuite) TestStatusListsPairs() {
	resp, err := suite.client.Get(suite.url("/api/v1/status"))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)

	var status statusResponse
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	suite.Require().Len(status.Pairs, 1)
	suite.Equal(types.TradingPair("BTC/USDT"), status.Pairs[0].Pair)
	suite.Equal("IDLE", status.Pairs[0].WorkerState)
	suite.False(status.Pairs[0].IsRunning)
}

func (suite *ServerTestSuite) TestPairStatus() {
	resp, err := suite.client.Get(suite.url("/api/v1/pairs/BTC-USDT/status"))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)

	var status pairStatusResponse
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	suite.Equal(types.TradingPair("BTC/USDT"), status.Pair)
	suite.Equal(types.DecisionPause, status.LastDecision)
}

func (suite *ServerTestSuite) TestPairStatusUnknownPair() {
	resp, err := suite.client.Get(suite.url("/api/v1/pairs/DOGE-USDT/status"))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusNotFound, resp.StatusCode)
}

func (suite *ServerTestSuite) TestPairStatusMalformedPair() {
	resp, err := suite.client.Get(suite.url("/api/v1/pairs/BTCUSDT/status"))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (suite *ServerTestSuite) TestPostDecisionsStartsWorker() {
	payload, err := json.Marshal(decisionsRequest{
		Decisions: []decisionRequest{{Pair: "BTC/USDT", Decision: types.DecisionOperate}},
	})
	suite.Require().NoError(err)

	resp, err := suite.client.Post(suite.url("/api/v1/decisions"), "application/json", bytes.NewReader(payload))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusOK, resp.StatusCode)

	var result decisionsResponse
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&result))
	suite.Equal(1, result.Applied)

	suite.Require().Eventually(func() bool {
		for _, status := range suite.sched.Snapshot() {
			if status.Pair == "BTC/USDT" {
				return status.Alive
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func (suite *ServerTestSuite) TestPostDecisionsRejectsUnknownDecision() {
	payload := []byte(`{"decisions":[{"pair":"BTC/USDT","decision":"YOLO"}]}`)

	resp, err := suite.client.Post(suite.url("/api/v1/decisions"), "application/json", bytes.NewReader(payload))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (suite *ServerTestSuite) TestPostDecisionsRejectsEmptyPayload() {
	resp, err := suite.client.Post(suite.url("/api/v1/decisions"), "application/json", bytes.NewReader([]byte(`{}`)))
	suite.Require().NoError(err)
	defer resp.Body.Close()

	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}
