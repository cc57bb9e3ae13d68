// Package worker runs the trading loop for a single pair: place the grid,
// poll for fills, keep the ladder balanced and let the risk manager pull the
// plug when the price escapes.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/exchange"
	"github.com/rxtech-lab/argo-grid/internal/fills"
	"github.com/rxtech-lab/argo-grid/internal/grid"
	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/notify"
	"github.com/rxtech-lab/argo-grid/internal/orders"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/risk"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// State is the lifecycle phase of a worker.
type State string

const (
	StateIdle         State = "IDLE"
	StateInitializing State = "INITIALIZING"
	StateTrading      State = "TRADING"
	StateStopping     State = "STOPPING"
)

// DefaultCycleInterval is the pause between trading cycles.
const DefaultCycleInterval = 30 * time.Second

// StatusReasonPaused is persisted when a pause decision stops the grid.
const StatusReasonPaused = "paused by decision"

const (
	// decisionCheckInterval is how many cycles pass between checks for a
	// fresh pause decision in the repository.
	decisionCheckInterval = 10
	// statusReportInterval is how many cycles pass between status
	// notifications.
	statusReportInterval = 120
)

// Deps bundles the collaborators a worker needs.
type Deps struct {
	Exchange   exchange.Client
	Repo       repository.Repository
	Executor   *orders.Executor
	Risk       *risk.Manager
	Notifier   notify.Notifier
	Aggregator *fills.Aggregator
	Logger     *logger.Logger

	// CycleInterval overrides DefaultCycleInterval when positive.
	CycleInterval time.Duration
}

// Worker trades one pair. Create with New, drive with Start, stop with
// Stop; the Done channel closes when the loop has fully exited.
type Worker struct {
	pair       types.TradingPair
	deps       Deps
	reconciler *fills.Reconciler

	stopFlag atomic.Bool

	mu    sync.Mutex
	state State

	done chan struct{}
}

// New creates an idle worker for the pair.
func New(pair types.TradingPair, deps Deps) *Worker {
	if deps.CycleInterval <= 0 {
		deps.CycleInterval = DefaultCycleInterval
	}

	return &Worker{
		pair:  pair,
		deps:  deps,
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// Pair returns the pair this worker trades.
func (w *Worker) Pair() types.TradingPair {
	return w.pair
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.state
}

func (w *Worker) setState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

// Done closes once the trading loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Alive reports whether the loop is still running.
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Stop requests a graceful stop. It returns immediately; the loop notices
// the flag at the top of its next cycle.
func (w *Worker) Stop() {
	w.stopFlag.Store(true)
}

// Start launches the trading loop in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateIdle)

	w.setState(StateInitializing)

	cfg, err := w.initialize(ctx)
	if err != nil {
		w.deps.Logger.Error("worker initialization failed",
			zap.String("pair", string(w.pair)), zap.Error(err))

		if notifyErr := w.deps.Notifier.NotifyError(ctx, w.pair, err); notifyErr != nil {
			w.deps.Logger.Warn("error notification failed", zap.Error(notifyErr))
		}

		return
	}

	w.setState(StateTrading)

	ticker := time.NewTicker(w.deps.CycleInterval)
	defer ticker.Stop()

	cycles := 0

	for {
		if w.stopFlag.Load() {
			w.setState(StateStopping)
			w.deps.Logger.Info("worker stopping", zap.String("pair", string(w.pair)))

			return
		}

		cycles++

		if cycles%decisionCheckInterval == 0 && w.pauseRequested(ctx, cfg) {
			return
		}

		if cycles%statusReportInterval == 0 {
			w.reportStatus(ctx)
		}

		exit, err := w.cycle(ctx, cfg)
		if err != nil {
			if errors.IsTransient(err) {
				w.deps.Logger.Warn("skipping cycle after transient error",
					zap.String("pair", string(w.pair)), zap.Error(err))
			} else {
				w.deps.Logger.Error("worker exiting on fatal error",
					zap.String("pair", string(w.pair)), zap.Error(err))

				if notifyErr := w.deps.Notifier.NotifyError(ctx, w.pair, err); notifyErr != nil {
					w.deps.Logger.Warn("error notification failed", zap.Error(notifyErr))
				}

				return
			}
		}

		if exit {
			return
		}

		select {
		case <-ctx.Done():
			w.setState(StateStopping)

			return
		case <-ticker.C:
		}
	}
}

// pauseRequested checks the repository for a pause decision and shuts the
// worker down when it finds one. The API writes decisions out of band, so a
// pause issued while the loop sleeps is picked up here.
func (w *Worker) pauseRequested(ctx context.Context, cfg types.GridConfig) bool {
	decision, err := w.deps.Repo.GetLatestDecision(ctx, w.pair)
	if err != nil {
		if !errors.HasCode(err, errors.ErrCodeDecisionNotFound) {
			w.deps.Logger.Warn("decision check failed",
				zap.String("pair", string(w.pair)), zap.Error(err))
		}

		return false
	}

	if decision.Decision != types.DecisionPause {
		return false
	}

	w.setState(StateStopping)
	w.deps.Logger.Info("pause decision found, worker stopping",
		zap.String("pair", string(w.pair)))

	if err := w.deps.Repo.UpdateConfigStatus(ctx, cfg.ID, false, types.DecisionPause, StatusReasonPaused); err != nil {
		w.deps.Logger.Warn("failed to persist pause",
			zap.String("pair", string(w.pair)), zap.Error(err))
	}

	return true
}

// reportStatus sends a periodic summary of the book and realized profit.
func (w *Worker) reportStatus(ctx context.Context) {
	open, err := w.deps.Repo.GetOpenOrders(ctx, w.pair)
	if err != nil {
		w.deps.Logger.Warn("status report failed",
			zap.String("pair", string(w.pair)), zap.Error(err))

		return
	}

	profit, err := w.deps.Repo.TotalProfit(ctx, w.pair)
	if err != nil {
		w.deps.Logger.Warn("status report failed",
			zap.String("pair", string(w.pair)), zap.Error(err))

		return
	}

	if err := w.deps.Notifier.NotifyBotStatus(ctx, w.pair, "Grid status",
		"open orders "+decimal.NewFromInt(int64(len(open))).String()+
			", total profit "+profit.String()+" "+w.pair.Quote()); err != nil {
		w.deps.Logger.Warn("status notification failed", zap.Error(err))
	}
}

// initialize validates the config and prepares the book. When the repository
// still tracks open orders from a previous run the worker resumes them as-is;
// otherwise it clears any stale venue state, buys the sell-side inventory and
// places a fresh two-sided grid.
func (w *Worker) initialize(ctx context.Context) (types.GridConfig, error) {
	cfg, err := w.deps.Repo.GetConfig(ctx, w.pair)
	if err != nil {
		return types.GridConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return types.GridConfig{}, err
	}

	tracked, err := w.deps.Repo.GetOpenOrders(ctx, w.pair)
	if err != nil {
		return types.GridConfig{}, err
	}

	if len(tracked) > 0 {
		return cfg, w.resume(ctx, cfg, len(tracked))
	}

	// Leftover orders from a previous run would double the exposure.
	if _, err := w.deps.Executor.CancelAll(ctx, w.pair); err != nil {
		return types.GridConfig{}, err
	}

	price, err := w.deps.Exchange.GetCurrentPrice(ctx, w.pair)
	if err != nil {
		return types.GridConfig{}, err
	}

	ladder, err := grid.Levels(price, cfg)
	if err != nil {
		return types.GridConfig{}, err
	}

	inventory, err := w.buySellSideInventory(ctx, cfg, ladder, price)
	if err != nil {
		return types.GridConfig{}, err
	}

	placed, err := w.deps.Executor.PlaceInitialGrid(ctx, cfg, ladder)
	if len(placed) == 0 && err != nil {
		return types.GridConfig{}, err
	}

	if _, err := w.deps.Executor.PlaceSellRungs(ctx, cfg, ladder, price, inventory); err != nil {
		w.deps.Logger.Warn("placed a partial sell grid",
			zap.String("pair", string(w.pair)), zap.Error(err))
	}

	w.reconciler = fills.NewReconciler(w.deps.Exchange, w.deps.Repo, w.deps.Logger, time.Now())

	if err := w.deps.Repo.UpdateConfigStatus(ctx, cfg.ID, true, types.DecisionOperate, "grid running"); err != nil {
		return types.GridConfig{}, err
	}

	w.deps.Logger.Info("grid started",
		zap.String("pair", string(w.pair)),
		zap.String("price", price.String()),
		zap.Int("buy_rungs", len(ladder.BuyPrices)),
		zap.Int("sell_rungs", len(ladder.SellPrices)))

	if err := w.deps.Notifier.NotifyBotStatus(ctx, w.pair, "Grid started",
		"center "+price.String()); err != nil {
		w.deps.Logger.Warn("start notification failed", zap.Error(err))
	}

	return cfg, nil
}

// resume picks up a book that survived a restart without touching it.
func (w *Worker) resume(ctx context.Context, cfg types.GridConfig, trackedCount int) error {
	w.reconciler = fills.NewReconciler(w.deps.Exchange, w.deps.Repo, w.deps.Logger, time.Now())

	if err := w.deps.Repo.UpdateConfigStatus(ctx, cfg.ID, true, types.DecisionOperate, "grid resumed"); err != nil {
		return err
	}

	w.deps.Logger.Info("grid resumed",
		zap.String("pair", string(w.pair)),
		zap.Int("open_orders", trackedCount))

	if err := w.deps.Notifier.NotifyBotStatus(ctx, w.pair, "Grid resumed",
		"tracking "+decimal.NewFromInt(int64(trackedCount)).String()+" open orders"); err != nil {
		w.deps.Logger.Warn("resume notification failed", zap.Error(err))
	}

	return nil
}

// buySellSideInventory market-buys the base needed to fund the sell rungs:
// one grid level's worth of capital per sell rung, net of the maker fee.
func (w *Worker) buySellSideInventory(ctx context.Context, cfg types.GridConfig, ladder grid.Ladder, price decimal.Decimal) (decimal.Decimal, error) {
	if len(ladder.SellPrices) == 0 {
		return decimal.Zero, nil
	}

	perRung := grid.CapitalPerOrder(cfg.TotalCapital, cfg.GridLevels)
	budget := perRung.Mul(decimal.NewFromInt(int64(len(ladder.SellPrices))))

	quantity, err := grid.OrderQuantity(budget, price, grid.DefaultMinQuantity)
	if err != nil {
		return decimal.Zero, err
	}

	bought, err := w.deps.Executor.MarketBuyBase(ctx, w.pair, quantity)
	if err != nil {
		return decimal.Zero, err
	}

	executed := bought.ExecutedQuantity
	if !executed.IsPositive() {
		executed = bought.Quantity
	}

	return exchange.NetAmountAfterFees(executed, types.OrderSideBuy,
		w.deps.Executor.MakerFee(ctx, w.pair)), nil
}

// cycle runs one iteration of the trading loop. Fills are reconciled first
// so the risk evaluation sees the book as it actually is, not as it was
// before the fills landed. It returns exit=true when the worker should shut
// down, as after a stop loss.
func (w *Worker) cycle(ctx context.Context, cfg types.GridConfig) (bool, error) {
	price, err := w.deps.Exchange.GetCurrentPrice(ctx, w.pair)
	if err != nil {
		return false, errors.NewTransient(err)
	}

	detected, err := w.reconciler.Detect(ctx, w.pair)
	if err != nil {
		return false, err
	}

	for _, fill := range detected {
		if err := w.handleFill(ctx, cfg, fill); err != nil {
			w.deps.Logger.Warn("fill handling failed",
				zap.String("pair", string(w.pair)),
				zap.String("exchange_order_id", fill.Order.ExchangeOrderID),
				zap.Error(err))
		}
	}

	openOrders, err := w.deps.Repo.GetOpenOrders(ctx, w.pair)
	if err != nil {
		return false, err
	}

	action, err := w.deps.Risk.Evaluate(ctx, cfg, price, openOrders)
	if err != nil {
		return false, err
	}

	switch action {
	case risk.ActionStopLoss:
		return true, nil
	case risk.ActionTrailingUp:
		// The book was rebuilt, fills are picked up next cycle.
		return false, nil
	}

	return false, nil
}

func (w *Worker) handleFill(ctx context.Context, cfg types.GridConfig, fill types.Fill) error {
	w.deps.Logger.Info("fill detected",
		zap.String("pair", string(w.pair)),
		zap.String("side", string(fill.Order.Side)),
		zap.String("price", fill.Order.Price.String()),
		zap.String("source", string(fill.Source)))

	if err := w.deps.Notifier.NotifyOrderFilled(ctx, fill); err != nil {
		w.deps.Logger.Warn("fill notification failed", zap.Error(err))
	}

	switch fill.Order.Side {
	case types.OrderSideBuy:
		_, err := w.deps.Executor.PlaceProfitSell(ctx, cfg, fill)

		return err
	case types.OrderSideSell:
		return w.handleSellFill(ctx, cfg, fill)
	}

	return nil
}

// handleSellFill records the completed round trip and restores the buy rung.
func (w *Worker) handleSellFill(ctx context.Context, cfg types.GridConfig, fill types.Fill) error {
	recorded, err := w.deps.Repo.HasTradeForSell(ctx, fill.Order.ExchangeOrderID)
	if err != nil {
		return err
	}

	if !recorded {
		trade := buildTrade(fill, w.deps.Executor.MakerFee(ctx, w.pair))

		if err := w.deps.Repo.SaveTrade(ctx, trade); err != nil {
			return err
		}

		w.deps.Aggregator.Record(trade)

		if err := w.deps.Notifier.NotifyTradeExecuted(ctx, trade); err != nil {
			w.deps.Logger.Warn("trade notification failed", zap.Error(err))
		}
	}

	_, err = w.deps.Executor.PlaceReplacementBuy(ctx, cfg, fill)

	return err
}

// buildTrade computes the round-trip result of a filled sell. The sell side
// pays its fee in quote, so proceeds are reduced by the maker fee before
// subtracting the cost basis.
func buildTrade(fill types.Fill, makerFee decimal.Decimal) types.GridTrade {
	quantity := fill.Order.ExecutedQuantity
	if !quantity.IsPositive() {
		quantity = fill.Order.Quantity
	}

	buyPrice, err := fill.Order.OriginBuyPrice.Take()
	if err != nil {
		buyPrice = fill.Order.Price
	}

	one := decimal.NewFromInt(1)
	proceeds := fill.Order.Price.Mul(quantity).Mul(one.Sub(makerFee))
	cost := buyPrice.Mul(quantity)
	profit := proceeds.Sub(cost)

	profitPercent := decimal.Zero
	if cost.IsPositive() {
		profitPercent = profit.Div(cost).Mul(decimal.NewFromInt(100)).Round(4)
	}

	buyOrderID, err := fill.Order.ParentOrderID.Take()
	if err != nil {
		buyOrderID = ""
	}

	filledAt := fill.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}

	return types.GridTrade{
		Pair:          fill.Order.Pair,
		BuyOrderID:    buyOrderID,
		SellOrderID:   fill.Order.ExchangeOrderID,
		BuyPrice:      buyPrice,
		SellPrice:     fill.Order.Price,
		Quantity:      quantity,
		Profit:        profit.Round(8),
		ProfitPercent: profitPercent,
		ExecutedAt:    filledAt,
	}
}
