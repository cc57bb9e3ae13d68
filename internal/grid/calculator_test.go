package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

type CalculatorTestSuite struct {
	suite.Suite
}

func TestCalculatorSuite(t *testing.T) {
	suite.Run(t, new(CalculatorTestSuite))
}

func cfgWith(levels int, rangePercent string) types.GridConfig {
	return types.GridConfig{
		Pair:              "BTC/USDT",
		TotalCapital:      decimal.NewFromInt(1000),
		GridLevels:        levels,
		PriceRangePercent: decimal.RequireFromString(rangePercent),
	}
}

func (suite *CalculatorTestSuite) TestLevelsReferenceScenario() {
	// 1000 capital, 4 levels, 10% range at price 100.
	ladder, err := Levels(decimal.NewFromInt(100), cfgWith(4, "10"))
	suite.Require().NoError(err)

	suite.Require().Len(ladder.BuyPrices, 2)
	suite.Require().Len(ladder.SellPrices, 2)

	suite.True(ladder.BuyPrices[0].Equal(decimal.RequireFromString("97.5")), ladder.BuyPrices[0].String())
	suite.True(ladder.BuyPrices[1].Equal(decimal.RequireFromString("95")), ladder.BuyPrices[1].String())
	suite.True(ladder.SellPrices[0].Equal(decimal.RequireFromString("102.5")), ladder.SellPrices[0].String())
	suite.True(ladder.SellPrices[1].Equal(decimal.RequireFromString("105")), ladder.SellPrices[1].String())

	suite.True(ladder.MinPrice.Equal(decimal.NewFromInt(95)))
	suite.True(ladder.MaxPrice.Equal(decimal.NewFromInt(105)))

	capital := CapitalPerOrder(decimal.NewFromInt(1000), len(ladder.BuyPrices))
	suite.True(capital.Equal(decimal.NewFromInt(250)), capital.String())
}

func (suite *CalculatorTestSuite) TestLevelsMonotonicAndPositive() {
	prices := []string{"0.004512", "1.37", "100", "64231.55"}
	configs := []types.GridConfig{
		cfgWith(2, "1"), cfgWith(5, "10"), cfgWith(7, "25"), cfgWith(100, "50"),
	}

	for _, raw := range prices {
		price := decimal.RequireFromString(raw)
		for _, cfg := range configs {
			ladder, err := Levels(price, cfg)
			suite.Require().NoError(err)

			suite.Len(ladder.BuyPrices, cfg.GridLevels/2)
			suite.Len(ladder.SellPrices, cfg.GridLevels-cfg.GridLevels/2)

			for i, buy := range ladder.BuyPrices {
				suite.True(buy.IsPositive(), "buy %s at price %s", buy, raw)
				suite.True(buy.LessThan(price))
				if i > 0 {
					suite.True(buy.LessThan(ladder.BuyPrices[i-1]),
						"buys must descend: %s then %s", ladder.BuyPrices[i-1], buy)
				}
			}

			for i, sell := range ladder.SellPrices {
				suite.True(sell.GreaterThan(price))
				if i > 0 {
					suite.True(sell.GreaterThan(ladder.SellPrices[i-1]),
						"sells must ascend: %s then %s", ladder.SellPrices[i-1], sell)
				}
			}
		}
	}
}

func (suite *CalculatorTestSuite) TestLevelsOddSplit() {
	ladder, err := Levels(decimal.NewFromInt(200), cfgWith(5, "10"))
	suite.Require().NoError(err)
	suite.Len(ladder.BuyPrices, 2)
	suite.Len(ladder.SellPrices, 3)
}

func (suite *CalculatorTestSuite) TestLevelsRejectsBadInput() {
	_, err := Levels(decimal.Zero, cfgWith(4, "10"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))

	_, err = Levels(decimal.NewFromInt(-5), cfgWith(4, "10"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))

	_, err = Levels(decimal.NewFromInt(100), cfgWith(1, "10"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidGridLevels))
}

func (suite *CalculatorTestSuite) TestOrderQuantityFloorsDown() {
	// 250 / 97.5 = 2.564102564..., floored at 6 decimal places.
	qty, err := OrderQuantity(decimal.NewFromInt(250), decimal.RequireFromString("97.5"), DefaultMinQuantity)
	suite.Require().NoError(err)
	suite.True(qty.Equal(decimal.RequireFromString("2.564102")), qty.String())
}

func (suite *CalculatorTestSuite) TestOrderQuantityClampsToMinimum() {
	qty, err := OrderQuantity(decimal.RequireFromString("0.01"), decimal.NewFromInt(100), DefaultMinQuantity)
	suite.Require().NoError(err)
	suite.True(qty.Equal(DefaultMinQuantity), qty.String())
}

func (suite *CalculatorTestSuite) TestOrderQuantityRejectsZeroPrice() {
	_, err := OrderQuantity(decimal.NewFromInt(100), decimal.Zero, DefaultMinQuantity)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))
}

func (suite *CalculatorTestSuite) TestDynamicProfitPercent() {
	// 10% range over 4 levels -> 2.5%.
	suite.True(DynamicProfitPercent(cfgWith(4, "10")).Equal(decimal.RequireFromString("0.025")))

	// 1% range over 10 levels -> clamped up to the 0.5% floor.
	suite.True(DynamicProfitPercent(cfgWith(10, "1")).Equal(decimal.RequireFromString("0.005")))

	// 100% range over 2 levels -> clamped down to the 5% cap.
	suite.True(DynamicProfitPercent(cfgWith(2, "100")).Equal(decimal.RequireFromString("0.05")))
}

func (suite *CalculatorTestSuite) TestCapitalPerOrderZeroRungs() {
	suite.True(CapitalPerOrder(decimal.NewFromInt(1000), 0).IsZero())
}
