package strategy_test

import (
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/strategy"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nifty() types.Instrument {
	return types.Instrument{
		Symbol:         "NIFTY",
		LotSize:        50,
		StrikeInterval: decimal.NewFromInt(50),
	}
}

func snap(ivRank, trend float64) types.MarketSnapshot {
	return types.MarketSnapshot{
		Symbol:        "NIFTY",
		Spot:          decimal.NewFromInt(22000),
		IV:            16,
		IVRank:        ivRank,
		TrendStrength: trend,
		RealizedVol:   0.11,
		Volume:        400000,
		RangePosition: 0.5,
		Timestamp:     time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}
}

func newSelector() *strategy.Selector {
	return strategy.NewSelector(zap.NewNop(), strategy.NewCatalog(), strategy.NewFeedback(100))
}

func TestSelectRangeBoundLowVol(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeRangeBoundLowVol, Confidence: 0.8}
	signals := newSelector().Select(state, snap(40, 0.05), nifty(), nil)
	require.NotEmpty(t, signals)

	names := make(map[string]bool)
	for _, sig := range signals {
		names[sig.Strategy] = true
	}

	assert.True(t, names[strategy.IronCondor], "iron condor should fire in a quiet range")
	assert.False(t, names[strategy.BullCallSpread], "directional debit spread must not fire without a trend")
	assert.False(t, names[strategy.LongStraddle], "long premium must not fire in a quiet range")

	// Iron condor carries the strongest fit so it ranks first.
	assert.Equal(t, strategy.IronCondor, signals[0].Strategy)
}

func TestSelectTrendingBull(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeTrendingBull, Confidence: 0.7}
	signals := newSelector().Select(state, snap(40, 0.6), nifty(), nil)
	require.NotEmpty(t, signals)

	assert.Equal(t, strategy.BullCallSpread, signals[0].Strategy)
	for _, sig := range signals {
		assert.NotEqual(t, strategy.IronCondor, sig.Strategy)
		assert.NotEqual(t, strategy.BearPutSpread, sig.Strategy)
	}
}

func TestSelectOnePerStrategy(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeRangeBoundHighVol, Confidence: 0.9}
	signals := newSelector().Select(state, snap(65, 0.0), nifty(), nil)

	seen := make(map[string]int)
	for _, sig := range signals {
		seen[sig.Strategy]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, "strategy %s emitted more than one signal", name)
	}
}

func TestSelectSkipsAtMaxInstances(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeRangeBoundLowVol, Confidence: 0.8}
	openCount := func(name string) int {
		if name == strategy.IronCondor {
			return 3
		}
		return 0
	}

	signals := newSelector().Select(state, snap(40, 0.05), nifty(), openCount)
	for _, sig := range signals {
		assert.NotEqual(t, strategy.IronCondor, sig.Strategy)
	}
}

func TestSelectDeterministicRanking(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeRangeBoundLowVol, Confidence: 0.8}
	s := newSelector()

	first := s.Select(state, snap(40, 0.05), nifty(), nil)
	second := s.Select(state, snap(40, 0.05), nifty(), nil)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Strategy, second[i].Strategy)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestSignalEconomics(t *testing.T) {
	state := types.RegimeState{Regime: types.RegimeRangeBoundLowVol, Confidence: 0.8}
	signals := newSelector().Select(state, snap(40, 0.05), nifty(), nil)
	require.NotEmpty(t, signals)

	for _, sig := range signals {
		assert.True(t, sig.MaxLoss.IsPositive(), "%s max loss must be positive", sig.Strategy)
		assert.True(t, sig.EntryPrice.Equal(sig.MaxLoss), "%s entry price is capital at risk", sig.Strategy)
		assert.NotEmpty(t, sig.ID)
		assert.NotEmpty(t, sig.Legs)
	}
}

func TestRiskPerShareOfCreditSpread(t *testing.T) {
	catalog := strategy.NewCatalog()
	s := snap(40, 0.05)

	premium, credit, ok := catalog.Price(strategy.IronCondor, s, nifty())
	require.True(t, ok)
	require.True(t, credit)

	atRisk, ok := catalog.RiskPerShare(strategy.IronCondor, s, nifty())
	require.True(t, ok)
	assert.True(t, atRisk.IsPositive())

	// Defined-risk credit spread: max loss is the wing width less the
	// credit, so risk plus premium reconstructs the width.
	width := nifty().StrikeInterval.Mul(decimal.NewFromInt(2))
	assert.True(t, atRisk.Add(premium).Equal(width),
		"risk %s + premium %s != width %s", atRisk, premium, width)

	_, ok = catalog.RiskPerShare("unknown", s, nifty())
	assert.False(t, ok)
}

func TestFitTableCoversAllRegimesAndStrategies(t *testing.T) {
	catalog := strategy.NewCatalog()
	for _, regime := range types.Regimes {
		for _, def := range catalog.Definitions() {
			score := catalog.FitScore(def.Name, regime)
			assert.Greater(t, score, 0.0, "regime %s strategy %s", regime, def.Name)
			assert.LessOrEqual(t, score, 1.0, "regime %s strategy %s", regime, def.Name)
		}
	}
}

func TestFeedbackWeight(t *testing.T) {
	f := strategy.NewFeedback(100)

	// Neutral until enough history accrues.
	assert.Equal(t, 1.0, f.Weight(strategy.IronCondor))
	for i := 0; i < 9; i++ {
		f.Record(strategy.IronCondor, true)
	}
	assert.Equal(t, 1.0, f.Weight(strategy.IronCondor))

	f.Record(strategy.IronCondor, true)
	assert.Equal(t, 1.5, f.Weight(strategy.IronCondor))

	for i := 0; i < 10; i++ {
		f.Record(strategy.ShortStraddle, false)
	}
	assert.Equal(t, 0.5, f.Weight(strategy.ShortStraddle))
}

func TestFeedbackWindowTrims(t *testing.T) {
	f := strategy.NewFeedback(10)
	for i := 0; i < 25; i++ {
		f.Record(strategy.IronCondor, i%2 == 0)
	}
	assert.Equal(t, 10, f.Trades(strategy.IronCondor))
}
