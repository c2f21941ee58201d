package regime_test

import (
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/regime"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func snapshot(ivRank, trend, rangePos float64) types.MarketSnapshot {
	return types.MarketSnapshot{
		Symbol:        "NIFTY",
		Spot:          decimal.NewFromInt(22000),
		IV:            18,
		IVRank:        ivRank,
		TrendStrength: trend,
		RealizedVol:   0.12,
		Volume:        500000,
		RangePosition: rangePos,
		Timestamp:     time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC),
	}
}

func TestClassifyBands(t *testing.T) {
	tests := []struct {
		name string
		snap types.MarketSnapshot
		want types.Regime
	}{
		{"trending bull", snapshot(45, 0.6, 0.5), types.RegimeTrendingBull},
		{"trending bear", snapshot(45, -0.6, 0.5), types.RegimeTrendingBear},
		{"range bound low vol", snapshot(25, 0.1, 0.5), types.RegimeRangeBoundLowVol},
		{"range bound high vol", snapshot(70, 0.1, 0.5), types.RegimeRangeBoundHighVol},
		{"high vol event", snapshot(90, 0.1, 0.5), types.RegimeHighVolEvent},
		{"low vol compression", snapshot(10, 0.05, 0.5), types.RegimeLowVolCompression},
		{"breakout pending at range top", snapshot(10, 0.05, 0.95), types.RegimeBreakoutPending},
		{"breakout pending at range bottom", snapshot(10, 0.05, 0.03), types.RegimeBreakoutPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())
			state := c.Classify(tt.snap)
			assert.Equal(t, tt.want, state.Regime)
			assert.GreaterOrEqual(t, state.Confidence, 0.0)
			assert.LessOrEqual(t, state.Confidence, 1.0)
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	snap := snapshot(42, 0.2, 0.6)

	a := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())
	b := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())

	for i := 0; i < 10; i++ {
		sa := a.Classify(snap)
		sb := b.Classify(snap)
		require.Equal(t, sa.Regime, sb.Regime)
		require.Equal(t, sa.Confidence, sb.Confidence)
	}
}

func TestTrendThresholdTieIsRangeBound(t *testing.T) {
	// Exactly at the threshold the conservative regime wins.
	c := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())
	state := c.Classify(snapshot(45, 0.3, 0.5))
	assert.Equal(t, types.RegimeRangeBoundLowVol, state.Regime)
}

func TestTransitionalAfterDisagreement(t *testing.T) {
	c := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())

	// Fill the window with range-bound classifications.
	for i := 0; i < 5; i++ {
		c.Classify(snapshot(25, 0.1, 0.5))
	}

	// A sudden trending reading disagrees with the window majority.
	state := c.Classify(snapshot(45, 0.8, 0.5))
	assert.Equal(t, types.RegimeTransitional, state.Regime)
}

func TestPeekDoesNotMutateHistory(t *testing.T) {
	c := regime.NewClassifier(zap.NewNop(), regime.DefaultConfig())
	c.Peek(snapshot(25, 0.1, 0.5))
	assert.Empty(t, c.History())
}
