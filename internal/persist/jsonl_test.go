package persist_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/persist"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStoreAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.NewFileStore(zap.NewNop(), dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := store.AppendTrade(ctx, types.Trade{
			ID:          "t" + string(rune('1'+i)),
			Symbol:      "NIFTY",
			Strategy:    "iron_condor",
			Bucket:      types.BucketConservative,
			Quantity:    50,
			RealizedPnL: decimal.NewFromInt(int64(100 * (i + 1))),
			ExitTime:    time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	f, err := os.Open(filepath.Join(dir, "trades.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var trade types.Trade
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &trade))
		assert.Equal(t, "NIFTY", trade.Symbol)
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestFileStoreSeparatesRecordTypes(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.NewFileStore(zap.NewNop(), dir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AppendSignal(ctx, types.Signal{ID: "s1", Strategy: "iron_condor"}))
	require.NoError(t, store.AppendRiskEvent(ctx, types.RiskEvent{Type: types.RiskEventCircuitOpen}))
	require.NoError(t, store.AppendPerformance(ctx, types.PerformanceSnapshot{Period: types.PeriodDaily}))

	for _, name := range []string{"signals.jsonl", "risk_events.jsonl", "performance.jsonl"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
