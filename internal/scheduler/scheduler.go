// Package scheduler supervises the pair workers: it starts and stops them
// from strategy decisions, restarts dead ones while their decision still says
// to trade, and tears everything down on shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/fills"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/risk"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/internal/worker"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

const (
	// DefaultHealthCheckInterval is how often dead workers are swept.
	DefaultHealthCheckInterval = 5 * time.Minute

	// DefaultSummaryInterval is how often the trade summary goes out.
	DefaultSummaryInterval = time.Hour

	// DefaultStopTimeout bounds the wait for one worker to exit during
	// shutdown.
	DefaultStopTimeout = 45 * time.Second
)

// StatusReasonPaused is persisted on a config when a pause decision lands.
const StatusReasonPaused = worker.StatusReasonPaused

// Config tunes the scheduler's background cadence.
type Config struct {
	HealthCheckInterval time.Duration
	SummaryInterval     time.Duration
	StopTimeout         time.Duration
	WorkerCycleInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}

	if c.SummaryInterval <= 0 {
		c.SummaryInterval = DefaultSummaryInterval
	}

	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}

	return c
}

// PairStatus is a point-in-time view of one pair for reporting.
type PairStatus struct {
	Pair        types.TradingPair `json:"pair"`
	WorkerState worker.State      `json:"worker_state"`
	Alive       bool              `json:"alive"`
}

// Scheduler owns the pair-to-worker map. All mutations go through its lock,
// so at most one live worker exists per pair.
type Scheduler struct {
	exchange   exchange.Client
	repo       repository.Repository
	executor   *orders.Executor
	riskMgr    *risk.Manager
	notifier   notify.Notifier
	aggregator *fills.Aggregator
	logger     *logger.Logger
	config     Config

	mu      sync.Mutex
	workers map[types.TradingPair]*worker.Worker
}

// New creates a scheduler.
func New(client exchange.Client, repo repository.Repository, notifier notify.Notifier, log *logger.Logger, config Config) *Scheduler {
	executor := orders.NewExecutor(client, repo, log)

	return &Scheduler{
		exchange:   client,
		repo:       repo,
		executor:   executor,
		riskMgr:    risk.NewManager(client, repo, executor, notifier, log),
		notifier:   notifier,
		aggregator: fills.NewAggregator(),
		logger:     log,
		config:     config.withDefaults(),
		workers:    make(map[types.TradingPair]*worker.Worker),
	}
}

// Aggregator exposes the shared trade aggregator.
func (s *Scheduler) Aggregator() *fills.Aggregator {
	return s.aggregator
}

// StartWorker launches a worker for the pair. Starting a pair whose worker
// is still alive is a no-op.
func (s *Scheduler) StartWorker(ctx context.Context, pair types.TradingPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.workers[pair]; ok && existing.Alive() {
		s.logger.Debug("worker already running", zap.String("pair", string(pair)))

		return nil
	}

	w := worker.New(pair, worker.Deps{
		Exchange:      s.exchange,
		Repo:          s.repo,
		Executor:      s.executor,
		Risk:          s.riskMgr,
		Notifier:      s.notifier,
		Aggregator:    s.aggregator,
		Logger:        s.logger,
		CycleInterval: s.config.WorkerCycleInterval,
	})

	s.workers[pair] = w
	w.Start(ctx)

	s.logger.Info("worker started", zap.String("pair", string(pair)))

	return nil
}

// StopWorker flags the pair's worker to stop. It does not wait for the
// worker to exit.
func (s *Scheduler) StopWorker(pair types.TradingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[pair]
	if !ok {
		return errors.Newf(errors.ErrCodeWorkerNotFound, "no worker for pair %s", pair)
	}

	w.Stop()

	return nil
}

// ApplyDecisions persists incoming strategy decisions and applies each one
// against the live worker state: operate starts the pair's worker unless one
// is already running, pause stops a running one. Comparing against the live
// state rather than the previous decision means a repeated operate can bring
// back a pair whose worker died, stop loss included. A summary notification
// goes out only when at least one pair changed.
func (s *Scheduler) ApplyDecisions(ctx context.Context, decisions []types.PairDecision) (int, error) {
	changed := 0

	var changedPairs []string

	for _, decision := range decisions {
		if err := decision.Decision.Validate(); err != nil {
			return changed, err
		}

		if err := decision.Pair.Validate(); err != nil {
			return changed, err
		}

		if err := s.repo.SaveDecision(ctx, decision); err != nil {
			return changed, err
		}

		applied, err := s.applyDecision(ctx, decision)
		if err != nil {
			s.logger.Error("failed to apply decision",
				zap.String("pair", string(decision.Pair)),
				zap.String("decision", string(decision.Decision)),
				zap.Error(err))

			continue
		}

		if !applied {
			continue
		}

		changed++
		changedPairs = append(changedPairs, fmt.Sprintf("%s → %s", decision.Pair, decision.Decision))
	}

	if changed > 0 {
		summary := fmt.Sprintf("🧭 <b>Decisions applied</b>\n%d pair(s) changed:", changed)
		for _, line := range changedPairs {
			summary += "\n" + line
		}

		if err := s.notifier.NotifySummary(ctx, summary); err != nil {
			s.logger.Warn("decision summary notification failed", zap.Error(err))
		}
	}

	return changed, nil
}

// applyDecision reconciles one decision with the live worker state. It
// reports whether anything actually changed.
func (s *Scheduler) applyDecision(ctx context.Context, decision types.PairDecision) (bool, error) {
	alive := s.workerAlive(decision.Pair)

	switch decision.Decision {
	case types.DecisionOperate:
		if alive {
			return false, nil
		}

		// An explicit operate overrides an earlier stop loss, so clear the
		// reason before the worker writes its own.
		cfg, err := s.repo.GetConfig(ctx, decision.Pair)
		if err == nil && strings.HasPrefix(cfg.StatusReason, risk.StatusReasonStopLoss) {
			if err := s.repo.UpdateConfigStatus(ctx, cfg.ID, false, types.DecisionOperate, ""); err != nil {
				return false, err
			}
		}

		return true, s.StartWorker(ctx, decision.Pair)
	case types.DecisionPause:
		if err := s.StopWorker(decision.Pair); err != nil && !errors.HasCode(err, errors.ErrCodeWorkerNotFound) {
			return false, err
		}

		cfg, err := s.repo.GetConfig(ctx, decision.Pair)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeConfigNotFound) {
				return alive, nil
			}

			return false, err
		}

		if !alive && !cfg.IsRunning {
			return false, nil
		}

		return true, s.repo.UpdateConfigStatus(ctx, cfg.ID, false, types.DecisionPause, StatusReasonPaused)
	}

	return false, errors.Newf(errors.ErrCodeInvalidDecision, "unknown decision %q", decision.Decision)
}

func (s *Scheduler) workerAlive(pair types.TradingPair) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[pair]

	return ok && w.Alive()
}

// HealthCheck sweeps the worker map. Dead workers are restarted when their
// latest persisted decision still says operate, and dropped otherwise.
func (s *Scheduler) HealthCheck(ctx context.Context) {
	s.mu.Lock()

	dead := make([]types.TradingPair, 0)

	for pair, w := range s.workers {
		if !w.Alive() {
			dead = append(dead, pair)
		}
	}

	for _, pair := range dead {
		delete(s.workers, pair)
	}

	s.mu.Unlock()

	for _, pair := range dead {
		decision, err := s.repo.GetLatestDecision(ctx, pair)
		if err != nil {
			s.logger.Warn("no decision for dead worker, leaving it down",
				zap.String("pair", string(pair)), zap.Error(err))

			continue
		}

		if decision.Decision != types.DecisionOperate {
			s.logger.Info("dead worker stays down per decision",
				zap.String("pair", string(pair)))

			continue
		}

		// A stop loss stops the pair until a fresh operate decision lands.
		cfg, err := s.repo.GetConfig(ctx, pair)
		if err == nil && strings.HasPrefix(cfg.StatusReason, risk.StatusReasonStopLoss) {
			s.logger.Info("dead worker stays down after stop loss",
				zap.String("pair", string(pair)))

			continue
		}

		s.logger.Warn("restarting dead worker", zap.String("pair", string(pair)))

		if err := s.StartWorker(ctx, pair); err != nil {
			s.logger.Error("failed to restart worker",
				zap.String("pair", string(pair)), zap.Error(err))
		}
	}
}

// FlushSummary sends the aggregated trade summary if there was any activity.
func (s *Scheduler) FlushSummary(ctx context.Context) {
	summary := s.aggregator.FlushSummary()
	if summary == "" {
		return
	}

	if err := s.notifier.NotifySummary(ctx, summary); err != nil {
		s.logger.Warn("trade summary notification failed", zap.Error(err))
	}
}

// Run drives the periodic health check and summary until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	healthTicker := time.NewTicker(s.config.HealthCheckInterval)
	defer healthTicker.Stop()

	summaryTicker := time.NewTicker(s.config.SummaryInterval)
	defer summaryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-healthTicker.C:
			s.HealthCheck(ctx)
		case <-summaryTicker.C:
			s.FlushSummary(ctx)
		}
	}
}

// ClearAll shuts every worker down and clears their books. Each worker gets
// StopTimeout to exit before its orders are cancelled out from under it, so
// a worker mid-cycle cannot race the cleanup.
func (s *Scheduler) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	running := make(map[types.TradingPair]*worker.Worker, len(s.workers))

	for pair, w := range s.workers {
		running[pair] = w
		w.Stop()
	}

	s.workers = make(map[types.TradingPair]*worker.Worker)
	s.mu.Unlock()

	var firstErr error

	for pair, w := range running {
		select {
		case <-w.Done():
		case <-time.After(s.config.StopTimeout):
			err := errors.Newf(errors.ErrCodeWorkerStopTimeout,
				"worker for %s did not exit within %s", pair, s.config.StopTimeout)
			s.logger.Error("proceeding with cleanup despite stuck worker", zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}
		}

		if _, err := s.executor.CancelAll(ctx, pair); err != nil {
			s.logger.Error("failed to clear book during shutdown",
				zap.String("pair", string(pair)), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}
		}

		if _, err := s.repo.PurgeOpenOrders(ctx, pair); err != nil {
			s.logger.Error("failed to purge tracked orders during shutdown",
				zap.String("pair", string(pair)), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Snapshot reports the current worker states.
func (s *Scheduler) Snapshot() []PairStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]PairStatus, 0, len(s.workers))

	for pair, w := range s.workers {
		statuses = append(statuses, PairStatus{
			Pair:        pair,
			WorkerState: w.State(),
			Alive:       w.Alive(),
		})
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Pair < statuses[j].Pair })

	return statuses
}
