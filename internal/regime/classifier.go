// Package regime provides market regime classification for strategy
// selection. Classification is band-based over IV rank and trend strength,
// with a short lookback of prior regimes to detect transitions.
package regime

import (
	"math"

	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// Config configures the classifier bands.
type Config struct {
	// IV rank bands, in [0,100].
	LowVolBand     float64 // below = low volatility
	HighVolBand    float64 // above = high volatility
	ExtremeVolBand float64 // above = high-volatility event
	CompressionBand float64 // below = volatility compression

	// Trend strength threshold; |trend| above it means trending.
	TrendThreshold float64

	// RangeEdge is how close to the range boundary (either side) the spot
	// must sit for breakout detection, as a fraction of the range.
	RangeEdge float64

	// HistoryWindow is the number of prior classifications kept for
	// transitional detection.
	HistoryWindow int
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		LowVolBand:      30,
		HighVolBand:     60,
		ExtremeVolBand:  85,
		CompressionBand: 15,
		TrendThreshold:  0.3,
		RangeEdge:       0.1,
		HistoryWindow:   5,
	}
}

// Classifier maps market snapshots to regimes. It is deterministic given a
// snapshot and its owned history window, and has no other side effects.
type Classifier struct {
	logger  *zap.Logger
	config  Config
	history []types.Regime // most recent last, bounded to HistoryWindow
}

// NewClassifier creates a classifier.
func NewClassifier(logger *zap.Logger, config Config) *Classifier {
	if config.HistoryWindow <= 0 {
		config = DefaultConfig()
	}
	return &Classifier{
		logger:  logger.Named("regime"),
		config:  config,
		history: make([]types.Regime, 0, config.HistoryWindow),
	}
}

// Classify maps a snapshot to a regime with confidence and records the
// result in the history window.
func (c *Classifier) Classify(snap types.MarketSnapshot) types.RegimeState {
	regime, confidence := c.classify(snap)

	// Transitional: the fresh classification disagrees with the majority
	// of the last N cycles.
	if len(c.history) >= c.config.HistoryWindow {
		if majority, ok := majorityRegime(c.history); ok && majority != regime {
			regime = types.RegimeTransitional
			confidence = confidence * 0.5
		}
	}

	c.push(regime)

	c.logger.Debug("regime classified",
		zap.String("symbol", snap.Symbol),
		zap.String("regime", string(regime)),
		zap.Float64("confidence", confidence),
		zap.Float64("ivRank", snap.IVRank),
		zap.Float64("trend", snap.TrendStrength))

	return types.RegimeState{
		Regime:     regime,
		Confidence: confidence,
		ComputedAt: snap.Timestamp,
	}
}

// Peek classifies without touching the history window.
func (c *Classifier) Peek(snap types.MarketSnapshot) types.RegimeState {
	regime, confidence := c.classify(snap)
	return types.RegimeState{Regime: regime, Confidence: confidence, ComputedAt: snap.Timestamp}
}

// History returns a copy of the lookback window, most recent last.
func (c *Classifier) History() []types.Regime {
	out := make([]types.Regime, len(c.history))
	copy(out, c.history)
	return out
}

// classify is the pure band decision: no history, no mutation.
func (c *Classifier) classify(snap types.MarketSnapshot) (types.Regime, float64) {
	cfg := c.config
	trending := math.Abs(snap.TrendStrength) > cfg.TrendThreshold
	confidence := c.confidence(snap)

	// Extreme volatility dominates everything else.
	if snap.IVRank >= cfg.ExtremeVolBand {
		return types.RegimeHighVolEvent, confidence
	}

	// Compressed volatility: breakout-pending when price is coiled at a
	// range boundary, otherwise plain compression.
	if snap.IVRank < cfg.CompressionBand && !trending {
		if snap.RangePosition >= 1-cfg.RangeEdge || snap.RangePosition <= cfg.RangeEdge {
			return types.RegimeBreakoutPending, confidence
		}
		return types.RegimeLowVolCompression, confidence
	}

	if trending {
		if snap.TrendStrength > 0 {
			return types.RegimeTrendingBull, confidence
		}
		return types.RegimeTrendingBear, confidence
	}

	// Range-bound. Ties at the exact trend threshold fall through to here,
	// biasing selection toward capital preservation.
	if snap.IVRank > cfg.HighVolBand {
		return types.RegimeRangeBoundHighVol, confidence
	}
	return types.RegimeRangeBoundLowVol, confidence
}

// confidence is the normalized distance from the nearest band boundary
// across the volatility and trend dimensions, clipped to [0,1]. The weaker
// dimension bounds the result.
func (c *Classifier) confidence(snap types.MarketSnapshot) float64 {
	cfg := c.config

	volDist := math.Min(
		math.Abs(snap.IVRank-cfg.LowVolBand),
		math.Abs(snap.IVRank-cfg.HighVolBand),
	) / cfg.LowVolBand

	trendDist := math.Abs(math.Abs(snap.TrendStrength)-cfg.TrendThreshold) / cfg.TrendThreshold

	return clamp01(math.Min(volDist, trendDist))
}

func (c *Classifier) push(r types.Regime) {
	c.history = append(c.history, r)
	if len(c.history) > c.config.HistoryWindow {
		c.history = c.history[len(c.history)-c.config.HistoryWindow:]
	}
}

// majorityRegime returns the most common regime in the window, and whether
// it holds a strict majority.
func majorityRegime(window []types.Regime) (types.Regime, bool) {
	counts := make(map[types.Regime]int, len(window))
	for _, r := range window {
		counts[r]++
	}
	var best types.Regime
	bestCount := 0
	for _, r := range types.Regimes {
		if counts[r] > bestCount {
			best = r
			bestCount = counts[r]
		}
	}
	return best, bestCount*2 > len(window)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
