package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// GridConfig is the per-pair trading configuration. Capital is isolated per
// pair: a worker only ever commits TotalCapital of the shared account.
type GridConfig struct {
	ID                int64           `yaml:"id" json:"id"`
	Pair              TradingPair     `yaml:"pair" json:"pair" validate:"required"`
	TotalCapital      decimal.Decimal `yaml:"total_capital" json:"total_capital"`
	GridLevels        int             `yaml:"grid_levels" json:"grid_levels" validate:"gte=2,lte=100"`
	PriceRangePercent decimal.Decimal `yaml:"price_range_percent" json:"price_range_percent"`
	StopLossPercent   decimal.Decimal `yaml:"stop_loss_percent" json:"stop_loss_percent"`
	EnableStopLoss    bool            `yaml:"enable_stop_loss" json:"enable_stop_loss"`
	EnableTrailingUp  bool            `yaml:"enable_trailing_up" json:"enable_trailing_up"`
	IsRunning         bool            `yaml:"is_running" json:"is_running"`
	LastDecision      Decision        `yaml:"last_decision" json:"last_decision"`
	StatusReason      string          `yaml:"status_reason" json:"status_reason"`
	UpdatedAt         time.Time       `yaml:"updated_at" json:"updated_at"`
}

var configValidator = validator.New()

// Validate checks structural constraints plus the numeric ranges the
// validator tags cannot express for decimal fields.
func (c GridConfig) Validate() error {
	if err := c.Pair.Validate(); err != nil {
		return err
	}

	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid grid config", err)
	}

	if c.TotalCapital.LessThan(decimal.NewFromInt(10)) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"total capital %s below minimum 10 for %s", c.TotalCapital, c.Pair)
	}

	if c.PriceRangePercent.LessThan(decimal.NewFromInt(1)) || c.PriceRangePercent.GreaterThan(decimal.NewFromInt(50)) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"price range percent %s outside [1, 50] for %s", c.PriceRangePercent, c.Pair)
	}

	if c.StopLossPercent.IsNegative() || c.StopLossPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"stop loss percent %s outside [0, 100) for %s", c.StopLossPercent, c.Pair)
	}

	if c.EnableStopLoss && !c.StopLossPercent.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"stop loss enabled without a positive stop loss percent for %s", c.Pair)
	}

	return nil
}
