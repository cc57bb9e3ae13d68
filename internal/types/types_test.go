package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (suite *TypesTestSuite) TestTradingPairParts() {
	pair := TradingPair("BTC/USDT")
	suite.Equal("BTC", pair.Base())
	suite.Equal("USDT", pair.Quote())
	suite.Equal("BTCUSDT", pair.Symbol())
	suite.NoError(pair.Validate())
}

func (suite *TypesTestSuite) TestTradingPairInvalid() {
	for _, raw := range []string{"", "BTC", "BTC/", "/USDT"} {
		err := TradingPair(raw).Validate()
		suite.Error(err, raw)
		suite.True(errors.HasCode(err, errors.ErrCodeInvalidPair))
	}
}

func (suite *TypesTestSuite) TestDecisionValidate() {
	suite.NoError(DecisionOperate.Validate())
	suite.NoError(DecisionPause.Validate())
	suite.Error(Decision("HOLD").Validate())
}

func (suite *TypesTestSuite) TestOrderStatusIsOpen() {
	suite.True(OrderStatusNew.IsOpen())
	suite.True(OrderStatusPartiallyFilled.IsOpen())
	suite.False(OrderStatusFilled.IsOpen())
	suite.False(OrderStatusCanceled.IsOpen())
}

func (suite *TypesTestSuite) TestOrderValue() {
	order := Order{
		Price:    decimal.RequireFromString("100.5"),
		Quantity: decimal.RequireFromString("2"),
	}
	suite.True(order.Value().Equal(decimal.RequireFromString("201")))
}

func (suite *TypesTestSuite) TestBalanceTotal() {
	balance := Balance{
		Asset:  "BTC",
		Free:   decimal.RequireFromString("0.5"),
		Locked: decimal.RequireFromString("0.25"),
	}
	suite.True(balance.Total().Equal(decimal.RequireFromString("0.75")))
}

func validConfig() GridConfig {
	return GridConfig{
		ID:                1,
		Pair:              "ETH/USDT",
		TotalCapital:      decimal.NewFromInt(1000),
		GridLevels:        4,
		PriceRangePercent: decimal.NewFromInt(10),
		StopLossPercent:   decimal.NewFromInt(5),
	}
}

func (suite *TypesTestSuite) TestGridConfigValid() {
	suite.NoError(validConfig().Validate())
}

func (suite *TypesTestSuite) TestGridConfigInvalidLevels() {
	cfg := validConfig()
	cfg.GridLevels = 1
	suite.Error(cfg.Validate())

	cfg.GridLevels = 101
	suite.Error(cfg.Validate())
}

func (suite *TypesTestSuite) TestGridConfigCapitalTooLow() {
	cfg := validConfig()
	cfg.TotalCapital = decimal.NewFromInt(9)
	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *TypesTestSuite) TestGridConfigRangeBounds() {
	cfg := validConfig()
	cfg.PriceRangePercent = decimal.RequireFromString("0.5")
	suite.Error(cfg.Validate())

	cfg.PriceRangePercent = decimal.NewFromInt(51)
	suite.Error(cfg.Validate())

	cfg.PriceRangePercent = decimal.NewFromInt(50)
	suite.NoError(cfg.Validate())
}

func (suite *TypesTestSuite) TestGridConfigStopLossBounds() {
	cfg := validConfig()
	cfg.StopLossPercent = decimal.NewFromInt(-1)
	suite.Error(cfg.Validate())

	cfg.StopLossPercent = decimal.NewFromInt(100)
	suite.Error(cfg.Validate())

	cfg.StopLossPercent = decimal.Zero
	suite.NoError(cfg.Validate())
}
