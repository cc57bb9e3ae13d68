package fills

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-grid/internal/types"
)

// Aggregator accumulates completed trades between periodic summaries. Safe
// for concurrent use by all pair workers.
type Aggregator struct {
	mu      sync.Mutex
	byPair  map[types.TradingPair]*pairStats
	started bool
}

type pairStats struct {
	trades int
	profit decimal.Decimal
	volume decimal.Decimal
}

// NewAggregator creates an empty trade aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byPair: make(map[types.TradingPair]*pairStats)}
}

// Record adds a completed trade to the current window.
func (a *Aggregator) Record(trade types.GridTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.byPair[trade.Pair]
	if !ok {
		stats = &pairStats{profit: decimal.Zero, volume: decimal.Zero}
		a.byPair[trade.Pair] = stats
	}

	stats.trades++
	stats.profit = stats.profit.Add(trade.Profit)
	stats.volume = stats.volume.Add(trade.SellPrice.Mul(trade.Quantity))
	a.started = true
}

// HasActivity reports whether any trades were recorded this window.
func (a *Aggregator) HasActivity() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.started
}

// FlushSummary renders the current window as a human-readable summary and
// resets the window. Returns an empty string when nothing was recorded.
func (a *Aggregator) FlushSummary() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return ""
	}

	pairs := make([]types.TradingPair, 0, len(a.byPair))
	for pair := range a.byPair {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })

	var (
		builder     strings.Builder
		totalTrades int
		totalProfit = decimal.Zero
	)

	builder.WriteString("📊 <b>Trading summary</b>\n")

	for _, pair := range pairs {
		stats := a.byPair[pair]
		totalTrades += stats.trades
		totalProfit = totalProfit.Add(stats.profit)

		builder.WriteString(fmt.Sprintf("%s: %d trades, profit %s, volume %s\n",
			pair, stats.trades, stats.profit.StringFixed(4), stats.volume.StringFixed(2)))
	}

	builder.WriteString(fmt.Sprintf("Total: %d trades, profit %s", totalTrades, totalProfit.StringFixed(4)))

	a.byPair = make(map[types.TradingPair]*pairStats)
	a.started = false

	return builder.String()
}
