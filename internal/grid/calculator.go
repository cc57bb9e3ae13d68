// Package grid implements the pure price ladder math used by the trading
// workers. All arithmetic uses decimals; callers are expected to validate
// configs before calling in here.
package grid

import (
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const (
	// pricePrecision is the number of decimal places ladder prices are
	// rounded to.
	pricePrecision = 8
	// quantityPrecision is the number of decimal places order quantities
	// are floored to.
	quantityPrecision = 6
)

var (
	oneHundred = decimal.NewFromInt(100)
	two        = decimal.NewFromInt(2)

	// minProfitPercent covers exchange fees on both legs.
	minProfitPercent = decimal.RequireFromString("0.005")
	maxProfitPercent = decimal.RequireFromString("0.05")

	// DefaultMinQuantity is the fallback minimum order quantity when the
	// exchange filters are unknown.
	DefaultMinQuantity = decimal.RequireFromString("0.001")
)

// Ladder is a computed set of grid levels around a reference price.
type Ladder struct {
	BuyPrices  []decimal.Decimal
	SellPrices []decimal.Decimal
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
}

// Levels computes the grid ladder for the given reference price.
//
// The total range is currentPrice * PriceRangePercent / 100, split evenly
// around the reference price. Half the levels (rounded down) become buy rungs
// below the price, the remainder sell rungs above it. Buy prices are returned
// in descending order starting just below the reference price; sell prices
// ascending starting just above it.
func Levels(currentPrice decimal.Decimal, cfg types.GridConfig) (Ladder, error) {
	if !currentPrice.IsPositive() {
		return Ladder{}, errors.Newf(errors.ErrCodeInvalidPrice,
			"reference price must be positive, got %s", currentPrice)
	}

	if cfg.GridLevels < 2 {
		return Ladder{}, errors.Newf(errors.ErrCodeInvalidGridLevels,
			"grid levels must be at least 2, got %d", cfg.GridLevels)
	}

	priceRange := currentPrice.Mul(cfg.PriceRangePercent).Div(oneHundred)
	halfRange := priceRange.Div(two)
	minPrice := currentPrice.Sub(halfRange)
	maxPrice := currentPrice.Add(halfRange)

	buyLevels := cfg.GridLevels / 2
	sellLevels := cfg.GridLevels - buyLevels

	ladder := Ladder{
		BuyPrices:  make([]decimal.Decimal, 0, buyLevels),
		SellPrices: make([]decimal.Decimal, 0, sellLevels),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
	}

	if buyLevels > 0 {
		step := currentPrice.Sub(minPrice).Div(decimal.NewFromInt(int64(buyLevels)))
		for i := 1; i <= buyLevels; i++ {
			price := currentPrice.Sub(step.Mul(decimal.NewFromInt(int64(i)))).Round(pricePrecision)
			ladder.BuyPrices = append(ladder.BuyPrices, price)
		}
	}

	if sellLevels > 0 {
		step := maxPrice.Sub(currentPrice).Div(decimal.NewFromInt(int64(sellLevels)))
		for i := 1; i <= sellLevels; i++ {
			price := currentPrice.Add(step.Mul(decimal.NewFromInt(int64(i)))).Round(pricePrecision)
			ladder.SellPrices = append(ladder.SellPrices, price)
		}
	}

	return ladder, nil
}

// CapitalPerOrder splits total capital evenly across the given number of
// rungs. Callers pass the full grid level count so buy rungs and sell-side
// inventory draw from the same per-rung allotment.
func CapitalPerOrder(totalCapital decimal.Decimal, rungs int) decimal.Decimal {
	if rungs <= 0 {
		return decimal.Zero
	}

	return totalCapital.Div(decimal.NewFromInt(int64(rungs)))
}

// OrderQuantity converts per-order capital at a price into an order quantity,
// floored to avoid overspending and clamped up to the exchange minimum.
func OrderQuantity(capitalPerOrder, price, minQuantity decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidPrice,
			"order price must be positive, got %s", price)
	}

	quantity := capitalPerOrder.Div(price).RoundDown(quantityPrecision)
	if quantity.LessThan(minQuantity) {
		quantity = minQuantity
	}

	return quantity, nil
}

// DynamicProfitPercent derives the per-rung profit target from the grid
// geometry: the range spread over the levels, clamped to [0.5%, 5%].
// The result is a fraction, e.g. 0.025 for 2.5%.
func DynamicProfitPercent(cfg types.GridConfig) decimal.Decimal {
	if cfg.GridLevels <= 0 {
		return minProfitPercent
	}

	profit := cfg.PriceRangePercent.Div(oneHundred).Div(decimal.NewFromInt(int64(cfg.GridLevels)))
	if profit.LessThan(minProfitPercent) {
		return minProfitPercent
	}

	if profit.GreaterThan(maxProfitPercent) {
		return maxProfitPercent
	}

	return profit
}
