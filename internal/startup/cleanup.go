// Package startup contains the routines that run once at process start:
// clearing leftover state from the previous run and verifying the system is
// fit to trade.
package startup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// StatusReasonRestart is persisted on configs reset by the restart cleanup.
const StatusReasonRestart = "reset by restart cleanup"

// CleanupReport summarizes what the restart cleanup did.
type CleanupReport struct {
	OrdersCancelled  int
	AssetsLiquidated int
	ConfigsReset     int
	RecordsPurged    int
}

// Cleaner returns the account to a known-flat state after a restart. The
// previous process may have died mid-cycle, so resting orders and leftover
// base inventory cannot be trusted.
type Cleaner struct {
	exchange exchange.Client
	repo     repository.Repository
	executor *orders.Executor
	notifier notify.Notifier
	logger   *logger.Logger
}

// NewCleaner creates a restart cleaner.
func NewCleaner(client exchange.Client, repo repository.Repository, executor *orders.Executor, notifier notify.Notifier, log *logger.Logger) *Cleaner {
	return &Cleaner{
		exchange: client,
		repo:     repo,
		executor: executor,
		notifier: notifier,
		logger:   log,
	}
}

// Run cancels all resting orders, liquidates stray base inventory, resets
// every config to not-running with a pause decision and purges tracked open
// orders. Resetting the decision keeps anything from trading again until a
// fresh operate arrives. Running it twice in a row is safe and the second
// pass reports zero work.
func (c *Cleaner) Run(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	configs, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		return report, err
	}

	for _, cfg := range configs {
		cancelled, err := c.executor.CancelAll(ctx, cfg.Pair)
		if err != nil {
			return report, err
		}

		report.OrdersCancelled += cancelled
	}

	liquidated, err := c.liquidateBaseInventory(ctx, configs)
	if err != nil {
		return report, err
	}

	report.AssetsLiquidated = liquidated

	for _, cfg := range configs {
		if cfg.IsRunning || cfg.StatusReason != StatusReasonRestart || cfg.LastDecision != types.DecisionPause {
			if err := c.repo.UpdateConfigStatus(ctx, cfg.ID, false, types.DecisionPause, StatusReasonRestart); err != nil {
				return report, err
			}

			if err := c.repo.SaveDecision(ctx, types.PairDecision{
				Pair:     cfg.Pair,
				Decision: types.DecisionPause,
			}); err != nil {
				return report, err
			}

			report.ConfigsReset++
		}

		purged, err := c.repo.PurgeOpenOrders(ctx, cfg.Pair)
		if err != nil {
			return report, err
		}

		report.RecordsPurged += purged
	}

	if err := c.verifyFlat(ctx, configs); err != nil {
		return report, err
	}

	c.logger.Info("restart cleanup finished",
		zap.Int("orders_cancelled", report.OrdersCancelled),
		zap.Int("assets_liquidated", report.AssetsLiquidated),
		zap.Int("configs_reset", report.ConfigsReset),
		zap.Int("records_purged", report.RecordsPurged))

	if report.OrdersCancelled > 0 || report.AssetsLiquidated > 0 || report.RecordsPurged > 0 {
		detail := fmt.Sprintf("cancelled %d orders, liquidated %d assets, purged %d records",
			report.OrdersCancelled, report.AssetsLiquidated, report.RecordsPurged)

		if err := c.notifier.NotifySummary(ctx, "🧹 <b>Restart cleanup</b>\n"+detail); err != nil {
			c.logger.Warn("cleanup notification failed", zap.Error(err))
		}
	}

	return report, nil
}

// liquidateBaseInventory market-sells base assets left over from interrupted
// grids. Quote assets and dust below the venue minimum stay untouched.
func (c *Cleaner) liquidateBaseInventory(ctx context.Context, configs []types.GridConfig) (int, error) {
	pairByBase := make(map[string]types.TradingPair, len(configs))
	quotes := make(map[string]struct{}, len(configs))

	for _, cfg := range configs {
		pairByBase[cfg.Pair.Base()] = cfg.Pair
		quotes[cfg.Pair.Quote()] = struct{}{}
	}

	balances, err := c.exchange.GetBalances(ctx)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeBalanceFetchFailed,
			"cleanup could not read account balances", err)
	}

	liquidated := 0

	for _, balance := range balances {
		if _, isQuote := quotes[balance.Asset]; isQuote {
			continue
		}

		pair, tracked := pairByBase[balance.Asset]
		if !tracked || !balance.Free.IsPositive() {
			continue
		}

		price, err := c.exchange.GetCurrentPrice(ctx, pair)
		if err != nil {
			c.logger.Warn("cannot price leftover inventory, skipping",
				zap.String("asset", balance.Asset), zap.Error(err))

			continue
		}

		if balance.Free.Mul(price).LessThan(exchange.MinimumOrderValue(pair)) {
			c.logger.Debug("leaving dust balance",
				zap.String("asset", balance.Asset),
				zap.String("free", balance.Free.String()))

			continue
		}

		if _, err := c.executor.MarketSellBase(ctx, pair, balance.Free); err != nil {
			return liquidated, errors.Wrapf(errors.ErrCodeLiquidationFailed, err,
				"cleanup could not liquidate %s %s", balance.Free, balance.Asset)
		}

		liquidated++
	}

	return liquidated, nil
}

// verifyFlat confirms no orders are resting after cleanup.
func (c *Cleaner) verifyFlat(ctx context.Context, configs []types.GridConfig) error {
	for _, cfg := range configs {
		resting, err := c.exchange.GetOpenOrders(ctx, cfg.Pair)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeOrderFetchFailed, err,
				"cleanup verification could not list %s orders", cfg.Pair)
		}

		if len(resting) > 0 {
			return errors.Newf(errors.ErrCodeCancelFailed,
				"%d orders still resting for %s after cleanup", len(resting), cfg.Pair)
		}
	}

	return nil
}
