package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const validYAML = `
mode: paper
database_path: grid.db
api_listen: 127.0.0.1:9911
telegram_enabled: false
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 10
    stop_loss_percent: 5
    enable_stop_loss: true
    enable_trailing_up: true
  - pair: ETH/USDT
    total_capital: 500
    grid_levels: 6
    price_range_percent: 8
    stop_loss_percent: 4
    enable_stop_loss: true
`

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) write(name, content string) string {
	path := filepath.Join(suite.dir, name)
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestLoadValid() {
	cfg, err := Load(suite.write("config.yaml", validYAML))
	suite.Require().NoError(err)

	suite.Equal("paper", cfg.Mode)
	suite.Equal("127.0.0.1:9911", cfg.APIListen)
	suite.Require().Len(cfg.Pairs, 2)
	suite.Equal(types.TradingPair("BTC/USDT"), cfg.Pairs[0].Pair)
	suite.True(cfg.Pairs[0].TotalCapital.Equal(decimal.NewFromInt(1000)))
	suite.Equal(4, cfg.Pairs[0].GridLevels)

	suite.True(cfg.Pairs[0].EnableTrailingUp)

	grid := cfg.Pairs[1].GridConfig()
	suite.Equal(types.DecisionPause, grid.LastDecision)
	suite.True(grid.StopLossPercent.Equal(decimal.NewFromInt(4)))
	suite.True(grid.EnableStopLoss)
	suite.False(grid.EnableTrailingUp)
}

func (suite *ConfigTestSuite) TestRejectsStopLossEnabledWithoutPercent() {
	content := `
mode: paper
database_path: grid.db
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 10
    stop_loss_percent: 0
    enable_stop_loss: true
`
	_, err := Load(suite.write("stoploss.yaml", content))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(suite.dir, "missing.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestLoadMalformedYAML() {
	_, err := Load(suite.write("bad.yaml", "mode: [unclosed"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRejectsUnknownMode() {
	content := `
mode: imaginary
database_path: grid.db
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 10
    stop_loss_percent: 5
`
	_, err := Load(suite.write("mode.yaml", content))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRejectsLiveModeWithoutCredentials() {
	content := `
mode: binance
database_path: grid.db
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 10
    stop_loss_percent: 5
`
	_, err := Load(suite.write("live.yaml", content))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestRejectsBadGridParameters() {
	content := `
mode: paper
database_path: grid.db
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 80
    stop_loss_percent: 5
`
	_, err := Load(suite.write("range.yaml", content))
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestRejectsEmptyPairs() {
	content := `
mode: paper
database_path: grid.db
pairs: []
`
	_, err := Load(suite.write("empty.yaml", content))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestDefaultListenAddr() {
	content := `
mode: paper
database_path: grid.db
pairs:
  - pair: BTC/USDT
    total_capital: 1000
    grid_levels: 4
    price_range_percent: 10
    stop_loss_percent: 5
`
	cfg, err := Load(suite.write("defaults.yaml", content))
	suite.Require().NoError(err)
	suite.Equal("127.0.0.1:8080", cfg.APIListen)
}
