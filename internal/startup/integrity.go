package startup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// Health is the overall verdict of an integrity check.
type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthDegraded Health = "DEGRADED"
)

// CheckResult is the outcome of a single integrity check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// IntegrityReport is the full outcome of an integrity run.
type IntegrityReport struct {
	Health Health        `json:"health"`
	Checks []CheckResult `json:"checks"`
}

// IntegrityChecker verifies the system can trade: the venue answers, the
// repository answers, configs are sane and the tracked book matches the
// venue book.
type IntegrityChecker struct {
	exchange exchange.Client
	repo     repository.Repository
	logger   *logger.Logger
}

// NewIntegrityChecker creates an integrity checker.
func NewIntegrityChecker(client exchange.Client, repo repository.Repository, log *logger.Logger) *IntegrityChecker {
	return &IntegrityChecker{
		exchange: client,
		repo:     repo,
		logger:   log,
	}
}

// Check runs every integrity check. A single failure degrades the verdict
// but the remaining checks still run.
func (c *IntegrityChecker) Check(ctx context.Context) IntegrityReport {
	report := IntegrityReport{Health: HealthHealthy}

	report.Checks = append(report.Checks,
		c.checkExchange(ctx),
		c.checkRepository(ctx),
		c.checkConfigs(ctx),
		c.checkTrackedOrders(ctx),
		c.checkAllocatedCapital(ctx),
		c.checkRunningFlags(ctx),
	)

	for _, check := range report.Checks {
		if !check.Passed {
			report.Health = HealthDegraded

			c.logger.Warn("integrity check failed",
				zap.String("check", check.Name),
				zap.String("detail", check.Detail))
		}
	}

	return report
}

func (c *IntegrityChecker) checkExchange(ctx context.Context) CheckResult {
	result := CheckResult{Name: "exchange_reachable"}

	if _, err := c.exchange.GetBalances(ctx); err != nil {
		result.Detail = err.Error()

		return result
	}

	result.Passed = true

	return result
}

func (c *IntegrityChecker) checkRepository(ctx context.Context) CheckResult {
	result := CheckResult{Name: "repository_readable"}

	if _, err := c.repo.GetAllConfigs(ctx); err != nil {
		result.Detail = err.Error()

		return result
	}

	result.Passed = true

	return result
}

func (c *IntegrityChecker) checkConfigs(ctx context.Context) CheckResult {
	result := CheckResult{Name: "configs_valid"}

	configs, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		result.Detail = err.Error()

		return result
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			result.Detail = fmt.Sprintf("config for %s invalid: %v", cfg.Pair, err)

			return result
		}
	}

	result.Passed = true

	return result
}

// checkTrackedOrders flags tracked orders the venue no longer knows about,
// which means fills or cancels were lost.
func (c *IntegrityChecker) checkTrackedOrders(ctx context.Context) CheckResult {
	result := CheckResult{Name: "tracked_orders_consistent"}

	configs, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		result.Detail = err.Error()

		return result
	}

	for _, cfg := range configs {
		tracked, err := c.repo.GetOpenOrders(ctx, cfg.Pair)
		if err != nil {
			result.Detail = err.Error()

			return result
		}

		if len(tracked) == 0 {
			continue
		}

		resting, err := c.exchange.GetOpenOrders(ctx, cfg.Pair)
		if err != nil {
			result.Detail = err.Error()

			return result
		}

		restingIDs := make(map[string]struct{}, len(resting))
		for _, order := range resting {
			restingIDs[order.ExchangeOrderID] = struct{}{}
		}

		for _, order := range tracked {
			if _, ok := restingIDs[order.ExchangeOrderID]; !ok {
				result.Detail = fmt.Sprintf("tracked order %s for %s is not on the venue book",
					order.ExchangeOrderID, cfg.Pair)

				return result
			}
		}
	}

	result.Passed = true

	return result
}

// checkAllocatedCapital verifies the account can actually fund the configs:
// per quote asset, the quote holdings plus the value of the pairs' base
// inventories must cover the summed capital allocations.
func (c *IntegrityChecker) checkAllocatedCapital(ctx context.Context) CheckResult {
	result := CheckResult{Name: "allocated_capital_covered"}

	configs, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		result.Detail = err.Error()

		return result
	}

	byQuote := make(map[string][]types.GridConfig)
	for _, cfg := range configs {
		byQuote[cfg.Pair.Quote()] = append(byQuote[cfg.Pair.Quote()], cfg)
	}

	for quote, group := range byQuote {
		var allocated types.AllocatedBalance

		for _, cfg := range group {
			allocated.AllocatedCapital = allocated.AllocatedCapital.Add(cfg.TotalCapital)

			baseBalance, err := c.exchange.GetBalance(ctx, cfg.Pair.Base())
			if err != nil {
				result.Detail = err.Error()

				return result
			}

			if !baseBalance.Total().IsPositive() {
				continue
			}

			price, err := c.exchange.GetCurrentPrice(ctx, cfg.Pair)
			if err != nil {
				result.Detail = err.Error()

				return result
			}

			allocated.BaseQuantity = allocated.BaseQuantity.Add(baseBalance.Total())
			allocated.BaseValueQuote = allocated.BaseValueQuote.Add(baseBalance.Total().Mul(price))
		}

		quoteBalance, err := c.exchange.GetBalance(ctx, quote)
		if err != nil {
			result.Detail = err.Error()

			return result
		}

		allocated.QuoteValue = quoteBalance.Total()
		allocated.TotalValueQuote = allocated.QuoteValue.Add(allocated.BaseValueQuote)

		if allocated.TotalValueQuote.LessThan(allocated.AllocatedCapital) {
			result.Detail = fmt.Sprintf("%s holdings worth %s do not cover the %s allocated",
				quote, allocated.TotalValueQuote, allocated.AllocatedCapital)

			return result
		}
	}

	result.Passed = true

	return result
}

// checkRunningFlags flags configs whose running flag contradicts the latest
// persisted decision, which means a status update was lost.
func (c *IntegrityChecker) checkRunningFlags(ctx context.Context) CheckResult {
	result := CheckResult{Name: "running_flags_match_decisions"}

	configs, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		result.Detail = err.Error()

		return result
	}

	for _, cfg := range configs {
		decision, err := c.repo.GetLatestDecision(ctx, cfg.Pair)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeDecisionNotFound) {
				if cfg.IsRunning {
					result.Detail = fmt.Sprintf("%s is marked running without any decision", cfg.Pair)

					return result
				}

				continue
			}

			result.Detail = err.Error()

			return result
		}

		if cfg.IsRunning && decision.Decision == types.DecisionPause {
			result.Detail = fmt.Sprintf("%s is marked running but the latest decision is pause", cfg.Pair)

			return result
		}
	}

	result.Passed = true

	return result
}
