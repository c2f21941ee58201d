package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/broker"
	"github.com/quantedge/options-engine/internal/marketdata"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPaper() *broker.Paper {
	builder := marketdata.NewBuilder(zap.NewNop(), marketdata.DefaultConfig())
	return broker.NewPaper(zap.NewNop(), broker.DefaultPaperConfig(), builder)
}

func order(dedup string, qty int) types.Order {
	return types.Order{
		ID:       "ord-" + dedup,
		DedupKey: dedup,
		Symbol:   "NIFTY",
		Strategy: "iron_condor",
		Bucket:   types.BucketConservative,
		Type:     types.OrderTypeMarket,
		Quantity: qty,
		Price:    decimal.NewFromInt(80),
	}
}

func TestPaperSnapshot(t *testing.T) {
	p := newPaper()

	snap, err := p.GetSnapshot(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", snap.Symbol)
	assert.True(t, snap.Spot.IsPositive())
	assert.GreaterOrEqual(t, snap.IVRank, 0.0)
	assert.LessOrEqual(t, snap.IVRank, 100.0)

	_, err = p.GetSnapshot(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestPaperDedup(t *testing.T) {
	p := newPaper()
	ctx := context.Background()

	first, err := p.PlaceOrder(ctx, order("abc", 50))
	require.NoError(t, err)

	second, err := p.PlaceOrder(ctx, order("abc", 50))
	require.NoError(t, err)
	assert.Equal(t, first, second, "same dedup key returns the original order id")

	fills, err := p.Fills(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, fills, 1, "duplicate submission must not double-fill")
}

func TestPaperFailureInjection(t *testing.T) {
	p := newPaper()
	ctx := context.Background()

	p.FailNext(types.ErrExecutionTransient, types.ErrExecutionTransient)

	_, err := p.PlaceOrder(ctx, order("x1", 50))
	assert.ErrorIs(t, err, types.ErrExecutionTransient)
	_, err = p.PlaceOrder(ctx, order("x1", 50))
	assert.ErrorIs(t, err, types.ErrExecutionTransient)

	// Third attempt succeeds and fills once.
	_, err = p.PlaceOrder(ctx, order("x1", 50))
	require.NoError(t, err)

	fills, err := p.Fills(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestPaperAdvanceUsesConfiguredVol(t *testing.T) {
	cfg := broker.DefaultPaperConfig()
	cfg.DailyVol = 0
	cfg.StartSpot = map[string]float64{"NIFTY": 22000}
	builder := marketdata.NewBuilder(zap.NewNop(), marketdata.DefaultConfig())
	p := broker.NewPaper(zap.NewNop(), cfg, builder)

	before, err := p.GetSnapshot(context.Background(), "NIFTY")
	require.NoError(t, err)

	p.Advance()
	after, err := p.GetSnapshot(context.Background(), "NIFTY")
	require.NoError(t, err)

	// Zero vol means a flat walk: the new bar closes where the last one did.
	assert.True(t, after.Spot.Equal(before.Spot), "spot moved from %s to %s", before.Spot, after.Spot)
}

func TestPaperAdvanceGrowsHistory(t *testing.T) {
	p := newPaper()
	before, err := p.GetSnapshot(context.Background(), "NIFTY")
	require.NoError(t, err)

	p.Advance()
	after, err := p.GetSnapshot(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.True(t, after.Timestamp.After(before.Timestamp))
}
