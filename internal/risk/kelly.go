package risk

import (
	"math"
	"sync"
)

const (
	// kellyCap bounds the fraction so noisy win-rate estimates cannot
	// over-leverage the account.
	kellyCap = 0.25

	// kellyMinTrades is the history needed before the estimate is trusted.
	kellyMinTrades = 10

	// kellyNeutralFraction is used while history is below kellyMinTrades.
	kellyNeutralFraction = 0.05
)

// tradeOutcome is one closed trade, as the sizer sees it.
type tradeOutcome struct {
	win bool
	pnl float64 // absolute magnitude
}

// TradeStats keeps a trailing window of trade outcomes and derives the
// bounded Kelly fraction from them.
type TradeStats struct {
	mu       sync.RWMutex
	window   int
	outcomes []tradeOutcome
}

// NewTradeStats creates stats over the last window trades.
func NewTradeStats(window int) *TradeStats {
	if window <= 0 {
		window = 100
	}
	return &TradeStats{window: window}
}

// Record adds a closed trade's P&L to the window.
func (s *TradeStats) Record(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, tradeOutcome{win: pnl > 0, pnl: math.Abs(pnl)})
	if len(s.outcomes) > s.window {
		s.outcomes = s.outcomes[len(s.outcomes)-s.window:]
	}
}

// Count returns the number of trades in the window.
func (s *TradeStats) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes)
}

// KellyFraction returns the clamped Kelly bet fraction from the trailing
// window. With thin history it returns a small neutral fraction so a fresh
// account can still trade; with a negative edge it returns 0.
func (s *TradeStats) KellyFraction() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.outcomes) < kellyMinTrades {
		return kellyNeutralFraction
	}

	var wins int
	var sumWin, sumLoss float64
	for _, o := range s.outcomes {
		if o.win {
			wins++
			sumWin += o.pnl
		} else {
			sumLoss += o.pnl
		}
	}

	p := float64(wins) / float64(len(s.outcomes))
	if wins == 0 {
		return 0
	}
	if sumLoss == 0 {
		// Never lost inside the window; cap rather than bet the house.
		return kellyCap
	}

	avgWin := sumWin / float64(wins)
	avgLoss := sumLoss / float64(len(s.outcomes)-wins)
	b := avgWin / avgLoss

	// f* = p - q/b
	kelly := p - (1-p)/b
	if kelly < 0 {
		return 0
	}
	if kelly > kellyCap {
		return kellyCap
	}
	return kelly
}
