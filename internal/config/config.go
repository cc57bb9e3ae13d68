// Package config loads the engine's YAML configuration file.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// PairConfig seeds one trading pair's grid parameters.
type PairConfig struct {
	Pair              types.TradingPair `yaml:"pair" validate:"required"`
	TotalCapital      decimal.Decimal   `yaml:"total_capital"`
	GridLevels        int               `yaml:"grid_levels" validate:"gte=2,lte=100"`
	PriceRangePercent decimal.Decimal   `yaml:"price_range_percent"`
	StopLossPercent   decimal.Decimal   `yaml:"stop_loss_percent"`
	EnableStopLoss    bool              `yaml:"enable_stop_loss"`
	EnableTrailingUp  bool              `yaml:"enable_trailing_up"`
}

// GridConfig converts the seed into a repository config.
func (p PairConfig) GridConfig() types.GridConfig {
	return types.GridConfig{
		Pair:              p.Pair,
		TotalCapital:      p.TotalCapital,
		GridLevels:        p.GridLevels,
		PriceRangePercent: p.PriceRangePercent,
		StopLossPercent:   p.StopLossPercent,
		EnableStopLoss:    p.EnableStopLoss,
		EnableTrailingUp:  p.EnableTrailingUp,
		LastDecision:      types.DecisionPause,
	}
}

// Config is the full engine configuration.
type Config struct {
	// Mode selects the venue: "binance", "binance-testnet" or "paper".
	Mode string `yaml:"mode" validate:"required,oneof=binance binance-testnet paper"`

	DatabasePath string `yaml:"database_path" validate:"required"`
	APIListen    string `yaml:"api_listen"`

	Binance  exchange.BinanceConfig `yaml:"binance"`
	Telegram notify.TelegramConfig  `yaml:"telegram"`

	// TelegramEnabled turns real notifications on.
	TelegramEnabled bool `yaml:"telegram_enabled"`

	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	SummaryInterval     time.Duration `yaml:"summary_interval"`
	StopTimeout         time.Duration `yaml:"stop_timeout"`

	Pairs []PairConfig `yaml:"pairs" validate:"required,min=1,dive"`
}

// Validate checks the configuration, including each pair's grid parameters.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid engine config", err)
	}

	if c.Mode != "paper" {
		if c.Binance.APIKey == "" || c.Binance.SecretKey == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration,
				"binance credentials are required outside paper mode")
		}
	}

	if c.TelegramEnabled {
		if err := validate.Struct(c.Telegram); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid telegram config", err)
		}
	}

	for _, pair := range c.Pairs {
		if err := pair.GridConfig().Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"cannot read config file %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"cannot parse config file %s", path)
	}

	if cfg.APIListen == "" {
		cfg.APIListen = "127.0.0.1:8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
