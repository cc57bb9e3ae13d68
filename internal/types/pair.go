package types

import (
	"strings"
	"time"

	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// TradingPair is a market pair in "BASE/QUOTE" notation, e.g. "BTC/USDT".
type TradingPair string

// Base returns the base asset of the pair.
func (p TradingPair) Base() string {
	base, _, _ := strings.Cut(string(p), "/")

	return base
}

// Quote returns the quote asset of the pair.
func (p TradingPair) Quote() string {
	_, quote, _ := strings.Cut(string(p), "/")

	return quote
}

// Symbol returns the exchange symbol form without the separator, e.g. "BTCUSDT".
func (p TradingPair) Symbol() string {
	return strings.ReplaceAll(string(p), "/", "")
}

// Validate checks that the pair has both a base and a quote asset.
func (p TradingPair) Validate() error {
	base, quote, found := strings.Cut(string(p), "/")
	if !found || base == "" || quote == "" {
		return errors.Newf(errors.ErrCodeInvalidPair, "invalid trading pair %q", string(p))
	}

	return nil
}

// Decision is a strategy decision issued for a pair by the decision engine.
type Decision string

const (
	// DecisionOperate instructs the scheduler to run a grid worker for the pair.
	DecisionOperate Decision = "OPERATE_GRID"
	// DecisionPause instructs the scheduler to stop the worker and cancel open orders.
	DecisionPause Decision = "PAUSE_GRID"
)

// Validate checks that the decision is a known value.
func (d Decision) Validate() error {
	switch d {
	case DecisionOperate, DecisionPause:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidDecision, "unknown decision %q", string(d))
	}
}

// PairDecision is a decision record for a single pair.
type PairDecision struct {
	Pair      TradingPair `json:"pair"`
	Decision  Decision    `json:"decision"`
	Timestamp time.Time   `json:"timestamp"`
}
