// Package notify delivers operator-facing alerts for fills, risk events and
// lifecycle changes.
package notify

import (
	"context"

	"github.com/rxtech-lab/argo-grid/internal/types"
)

// Notifier pushes human-readable messages about engine activity. Failures to
// deliver a notification never block trading, callers log and continue.
type Notifier interface {
	// NotifyTradeExecuted announces a completed buy/sell round trip.
	NotifyTradeExecuted(ctx context.Context, trade types.GridTrade) error

	// NotifyOrderFilled announces a single order fill.
	NotifyOrderFilled(ctx context.Context, fill types.Fill) error

	// NotifyBotStatus announces a lifecycle change for a pair, such as a grid
	// start, pause, stop-loss activation or trailing-up recenter.
	NotifyBotStatus(ctx context.Context, pair types.TradingPair, status string, detail string) error

	// NotifyError announces a fatal error for a pair.
	NotifyError(ctx context.Context, pair types.TradingPair, err error) error

	// NotifySummary delivers a periodic aggregated trading summary.
	NotifySummary(ctx context.Context, summary string) error
}

// NoopNotifier discards every notification.
type NoopNotifier struct{}

var _ Notifier = (*NoopNotifier)(nil)

// NewNoopNotifier creates a notifier that discards everything.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (n *NoopNotifier) NotifyTradeExecuted(_ context.Context, _ types.GridTrade) error { return nil }

func (n *NoopNotifier) NotifyOrderFilled(_ context.Context, _ types.Fill) error { return nil }

func (n *NoopNotifier) NotifyBotStatus(_ context.Context, _ types.TradingPair, _ string, _ string) error {
	return nil
}

func (n *NoopNotifier) NotifyError(_ context.Context, _ types.TradingPair, _ error) error {
	return nil
}

func (n *NoopNotifier) NotifySummary(_ context.Context, _ string) error { return nil }
