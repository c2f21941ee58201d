package strategy

import (
	"sync"
)

const (
	feedbackMinTrades = 10
	feedbackFloor     = 0.5
	feedbackCeiling   = 1.5
)

// Feedback tracks trailing win/loss outcomes per strategy and turns them
// into a selection weight. With fewer than feedbackMinTrades outcomes the
// weight is neutral so new strategies are not starved.
type Feedback struct {
	mu      sync.RWMutex
	window  int
	results map[string][]bool
}

// NewFeedback creates a tracker keeping the last window outcomes per
// strategy.
func NewFeedback(window int) *Feedback {
	if window <= 0 {
		window = 100
	}
	return &Feedback{
		window:  window,
		results: make(map[string][]bool),
	}
}

// Record appends a trade outcome for a strategy.
func (f *Feedback) Record(name string, win bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := append(f.results[name], win)
	if len(r) > f.window {
		r = r[len(r)-f.window:]
	}
	f.results[name] = r
}

// Weight returns the selection multiplier in [feedbackFloor, feedbackCeiling].
// A 50% win rate maps to 1.0.
func (f *Feedback) Weight(name string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	r := f.results[name]
	if len(r) < feedbackMinTrades {
		return 1.0
	}

	wins := 0
	for _, w := range r {
		if w {
			wins++
		}
	}
	return feedbackFloor + float64(wins)/float64(len(r))
}

// Trades returns how many outcomes are currently tracked for a strategy.
func (f *Feedback) Trades(name string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.results[name])
}
