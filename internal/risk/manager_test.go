package risk_test

import (
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/risk"
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

func signal(strategy string, bucket types.AllocationBucket, entryPrice float64) types.Signal {
	return types.Signal{
		ID:         "sig-1",
		Strategy:   strategy,
		Bucket:     bucket,
		Symbol:     "NIFTY",
		EntryPrice: decimal.NewFromFloat(entryPrice),
		MaxLoss:    decimal.NewFromFloat(entryPrice),
		CreatedAt:  time.Now().UTC(),
	}
}

func position(symbol, strategy string, bucket types.AllocationBucket, qty int, avg float64) types.Position {
	return types.Position{
		Symbol:        symbol,
		Strategy:      strategy,
		Bucket:        bucket,
		Quantity:      qty,
		AvgEntryPrice: decimal.NewFromFloat(avg),
		Status:        types.StatusOpen,
	}
}

func newManager(t *testing.T) *risk.Manager {
	t.Helper()
	return risk.NewManager(zap.NewNop(), risk.DefaultConfig())
}

func TestValidateAndSizeAccepts(t *testing.T) {
	m := newManager(t)
	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 80), risk.AccountState{}, nifty())

	require.True(t, dec.Accepted, dec.Reason)
	assert.Positive(t, dec.Quantity)
	assert.Zero(t, dec.Quantity%nifty().LotSize, "quantity must be whole lots")
}

func TestNotionalNeverExceedsPositionCap(t *testing.T) {
	m := newManager(t)
	cfg := m.Config()
	cap := cfg.Capital.Mul(decimal.NewFromFloat(cfg.MaxPositionPct))

	for _, entry := range []float64{0.5, 10, 80, 500, 4000, 99999} {
		dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, entry), risk.AccountState{}, nifty())
		if !dec.Accepted {
			continue
		}
		notional := decimal.NewFromFloat(entry).Mul(decimal.NewFromInt(int64(dec.Quantity)))
		assert.True(t, notional.LessThanOrEqual(cap),
			"entry %v sized to notional %s above cap %s", entry, notional, cap)
	}
}

func TestRejectsWhenSizeRoundsToZero(t *testing.T) {
	m := newManager(t)
	// Per-lot risk far above the sizing budget.
	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 5000), risk.AccountState{}, nifty())
	assert.False(t, dec.Accepted)
	assert.Zero(t, dec.Quantity)
}

func TestDailyLossLockoutIsSticky(t *testing.T) {
	m := newManager(t)

	// 3% of 1,000,000 capital.
	losing := risk.AccountState{RealizedPnL: decimal.NewFromInt(-30000)}
	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 80), losing, nifty())
	require.False(t, dec.Accepted)
	assert.True(t, m.Locked())

	// Healthy account state afterwards must still be rejected for the
	// remainder of the session.
	dec = m.ValidateAndSize(signal("bull_put_spread", types.BucketConservative, 60), risk.AccountState{}, nifty())
	assert.False(t, dec.Accepted)

	m.ResetSession()
	dec = m.ValidateAndSize(signal("bull_put_spread", types.BucketConservative, 60), risk.AccountState{}, nifty())
	assert.True(t, dec.Accepted)
}

func TestLockoutCountsUnrealized(t *testing.T) {
	m := newManager(t)
	acct := risk.AccountState{
		RealizedPnL:   decimal.NewFromInt(-20000),
		UnrealizedPnL: decimal.NewFromInt(-10000),
	}
	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 80), acct, nifty())
	assert.False(t, dec.Accepted)
	assert.True(t, m.Locked())
}

func TestRejectsAtMaxOpenPositions(t *testing.T) {
	m := newManager(t)
	acct := risk.AccountState{}
	for i := 0; i < m.Config().MaxOpenPositions; i++ {
		acct.OpenPositions = append(acct.OpenPositions,
			position("BANKNIFTY", "bull_put_spread", types.BucketConservative, 25, 60))
	}

	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 80), acct, nifty())
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "max open positions")
}

func TestRejectsWhenBucketAllocationExceeded(t *testing.T) {
	m := newManager(t)
	// Aggressive bucket is 40% of 1,000,000. A 390,000 notional position
	// leaves no room for another aggressive entry.
	acct := risk.AccountState{
		OpenPositions: []types.Position{
			position("BANKNIFTY", "short_straddle", types.BucketAggressive, 1000, 390),
		},
	}

	dec := m.ValidateAndSize(signal("long_straddle", types.BucketAggressive, 400), acct, nifty())
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "aggressive bucket")
}

func TestBucketExposureMeasuresCapitalAtRisk(t *testing.T) {
	m := newManager(t)
	// A short premium structure fills at a small credit but carries a far
	// larger max loss. Measured by fill premium the conservative bucket
	// looks nearly empty; measured by capital at risk it is nearly full.
	acct := risk.AccountState{
		OpenPositions: []types.Position{
			position("BANKNIFTY", "covered_call", types.BucketConservative, -1000, 20),
		},
		BucketExposure: map[types.AllocationBucket]decimal.Decimal{
			types.BucketConservative: decimal.NewFromInt(580000),
		},
	}

	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 100), acct, nifty())
	require.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "conservative bucket")

	// The premium-notional fallback would wave the same entry through.
	acct.BucketExposure = nil
	dec = m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 100), acct, nifty())
	assert.True(t, dec.Accepted, dec.Reason)
}

func TestRejectsCorrelatedPosition(t *testing.T) {
	m := newManager(t)
	acct := risk.AccountState{
		OpenPositions: []types.Position{
			position("NIFTY", "iron_condor", types.BucketConservative, 50, 80),
		},
	}

	dec := m.ValidateAndSize(signal("iron_condor", types.BucketConservative, 80), acct, nifty())
	assert.False(t, dec.Accepted)
	assert.Contains(t, dec.Reason, "correlated")

	// A different strategy on the same underlying is allowed.
	dec = m.ValidateAndSize(signal("butterfly_spread", types.BucketConservative, 40), acct, nifty())
	assert.True(t, dec.Accepted, dec.Reason)
}

func TestKellyFractionClamped(t *testing.T) {
	stats := risk.NewTradeStats(100)

	// Thin history: neutral fraction, small but positive.
	f := stats.KellyFraction()
	assert.Greater(t, f, 0.0)
	assert.Less(t, f, 0.25)

	// All winners: clamp at the cap.
	for i := 0; i < 20; i++ {
		stats.Record(1000)
	}
	assert.Equal(t, 0.25, stats.KellyFraction())

	// All losers: no edge, no bet.
	losing := risk.NewTradeStats(100)
	for i := 0; i < 20; i++ {
		losing.Record(-500)
	}
	assert.Equal(t, 0.0, losing.KellyFraction())
}

func TestKellyWindowTrims(t *testing.T) {
	stats := risk.NewTradeStats(10)
	for i := 0; i < 50; i++ {
		stats.Record(-100)
	}
	for i := 0; i < 10; i++ {
		stats.Record(200)
	}
	assert.Equal(t, 10, stats.Count())
	// Old losses fell out of the window; only wins remain.
	assert.Equal(t, 0.25, stats.KellyFraction())
}
