// Package attribution recomputes performance metrics from the full trade
// set. Nothing is accumulated incrementally: every call derives its output
// from the trades it is given, so recomputation for the same period and
// trade set always yields identical metrics.
package attribution

import (
	"math"
	"sort"
	"time"

	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// annualization converts mean daily return to an annual Sharpe basis.
var annualization = math.Sqrt(252)

// Attributor computes performance snapshots and per-strategy breakdowns.
type Attributor struct {
	logger *zap.Logger
}

// NewAttributor creates an attributor.
func NewAttributor(logger *zap.Logger) *Attributor {
	return &Attributor{logger: logger.Named("attribution")}
}

// Compute derives the performance snapshot for a period from the trades
// whose exit time falls inside [start, end). unrealized is the current
// open-position mark, reported alongside but never mixed into the
// trade-derived metrics.
func (a *Attributor) Compute(period types.Period, start, end time.Time, trades []types.Trade, unrealized decimal.Decimal) types.PerformanceSnapshot {
	inPeriod := filter(trades, start, end)

	snap := types.PerformanceSnapshot{
		Period:        period,
		Start:         start,
		End:           end,
		TotalTrades:   len(inPeriod),
		UnrealizedPnL: unrealized,
		GeneratedAt:   time.Now().UTC(),
	}

	grossProfit := decimal.Zero
	grossLoss := decimal.Zero
	for i := range inPeriod {
		pnl := inPeriod[i].RealizedPnL
		snap.RealizedPnL = snap.RealizedPnL.Add(pnl)
		if pnl.IsPositive() {
			snap.WinningTrades++
			grossProfit = grossProfit.Add(pnl)
		} else {
			snap.LosingTrades++
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}
	snap.TotalPnL = snap.RealizedPnL.Add(unrealized)

	if snap.TotalTrades > 0 {
		snap.WinRate = float64(snap.WinningTrades) / float64(snap.TotalTrades)
	}
	snap.ProfitFactor = profitFactor(grossProfit, grossLoss, snap.WinningTrades)
	snap.SharpeRatio = sharpe(dailyReturns(inPeriod))
	snap.MaxDrawdown = maxDrawdown(inPeriod)

	return snap
}

// ByStrategy computes a snapshot per strategy over the same window.
func (a *Attributor) ByStrategy(period types.Period, start, end time.Time, trades []types.Trade) map[string]types.PerformanceSnapshot {
	groups := make(map[string][]types.Trade)
	for _, tr := range filter(trades, start, end) {
		groups[tr.Strategy] = append(groups[tr.Strategy], tr)
	}

	out := make(map[string]types.PerformanceSnapshot, len(groups))
	for strategy, group := range groups {
		out[strategy] = a.Compute(period, start, end, group, decimal.Zero)
	}
	return out
}

// ByBucket computes a snapshot per allocation bucket over the same window.
func (a *Attributor) ByBucket(period types.Period, start, end time.Time, trades []types.Trade) map[types.AllocationBucket]types.PerformanceSnapshot {
	groups := make(map[types.AllocationBucket][]types.Trade)
	for _, tr := range filter(trades, start, end) {
		groups[tr.Bucket] = append(groups[tr.Bucket], tr)
	}

	out := make(map[types.AllocationBucket]types.PerformanceSnapshot, len(groups))
	for bucket, group := range groups {
		out[bucket] = a.Compute(period, start, end, group, decimal.Zero)
	}
	return out
}

func filter(trades []types.Trade, start, end time.Time) []types.Trade {
	out := make([]types.Trade, 0, len(trades))
	for _, tr := range trades {
		if !tr.ExitTime.Before(start) && tr.ExitTime.Before(end) {
			out = append(out, tr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExitTime.Before(out[j].ExitTime) })
	return out
}

// profitFactor is gross profit over gross loss: +Inf with wins and no
// losses, 0 with no trades at all.
func profitFactor(grossProfit, grossLoss decimal.Decimal, wins int) float64 {
	if grossLoss.IsZero() {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	pf, _ := grossProfit.Div(grossLoss).Float64()
	return pf
}

// dailyReturns buckets realized P&L by exit date.
func dailyReturns(trades []types.Trade) []float64 {
	if len(trades) == 0 {
		return nil
	}

	byDay := make(map[string]decimal.Decimal)
	var days []string
	for _, tr := range trades {
		day := tr.ExitTime.UTC().Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = byDay[day].Add(tr.RealizedPnL)
	}
	sort.Strings(days)

	out := make([]float64, 0, len(days))
	for _, day := range days {
		v, _ := byDay[day].Float64()
		out = append(out, v)
	}
	return out
}

// sharpe is the annualized mean over stdev of daily P&L, 0 when stdev is
// zero or undefined.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}

	return annualization * mean / math.Sqrt(variance)
}

// maxDrawdown walks cumulative P&L in exit order and returns the deepest
// drop from the running peak as a fraction of that peak, <= 0.
func maxDrawdown(trades []types.Trade) float64 {
	cumulative := decimal.Zero
	peak := decimal.Zero
	worst := 0.0

	for i := range trades {
		cumulative = cumulative.Add(trades[i].RealizedPnL)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if peak.IsPositive() {
			dd, _ := cumulative.Sub(peak).Div(peak).Float64()
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
