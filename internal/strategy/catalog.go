package strategy

import (
	"sort"

	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// Fit-score weights. Fixed compatibility values rather than a learned
// model, so selection stays deterministic and auditable.
const (
	fitHigh       = 1.0
	fitPreferred  = 0.8
	fitNeutral    = 0.5
	fitDiscourage = 0.2
	fitAvoid      = 0.05
)

// Catalog is the registry of strategy definitions and the regime fit table.
type Catalog struct {
	defs   []Definition
	byName map[string]Definition
	fit    map[types.Regime]map[string]float64
}

// NewCatalog builds the catalog with the built-in strategy set.
func NewCatalog() *Catalog {
	defs := definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Priority < defs[j].Priority })

	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	return &Catalog{
		defs:   defs,
		byName: byName,
		fit:    fitTable(),
	}
}

// Get returns a definition by name.
func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Definitions returns all definitions in priority order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// FitScore returns the compatibility of a strategy with a regime.
func (c *Catalog) FitScore(name string, regime types.Regime) float64 {
	row, ok := c.fit[regime]
	if !ok {
		return fitAvoid
	}
	score, ok := row[name]
	if !ok {
		return fitAvoid
	}
	return score
}

// fitTable maps every regime to a score per strategy. Range-bound low vol
// strongly favors the iron condor; trends favor the matching vertical
// spreads; compression and pending breakouts favor long premium.
func fitTable() map[types.Regime]map[string]float64 {
	return map[types.Regime]map[string]float64{
		types.RegimeTrendingBull: {
			BullCallSpread: fitHigh, BullPutSpread: fitPreferred, CoveredCall: fitPreferred,
			BearCallSpread: fitDiscourage, BearPutSpread: fitAvoid,
			LongStraddle: fitDiscourage, ShortStraddle: fitNeutral,
			LongStrangle: fitDiscourage, ShortStrangle: fitNeutral,
			ButterflySpread: fitNeutral, IronCondor: fitDiscourage,
		},
		types.RegimeTrendingBear: {
			BearPutSpread: fitHigh, BearCallSpread: fitPreferred,
			BullCallSpread: fitAvoid, BullPutSpread: fitDiscourage, CoveredCall: fitAvoid,
			LongStraddle: fitDiscourage, ShortStraddle: fitNeutral,
			LongStrangle: fitDiscourage, ShortStrangle: fitNeutral,
			ButterflySpread: fitNeutral, IronCondor: fitDiscourage,
		},
		types.RegimeRangeBoundLowVol: {
			IronCondor: fitHigh, ButterflySpread: fitPreferred,
			ShortStraddle: fitPreferred, ShortStrangle: fitPreferred,
			BullPutSpread: fitNeutral, BearCallSpread: fitNeutral, CoveredCall: fitNeutral,
			LongStraddle: fitAvoid, LongStrangle: fitDiscourage,
			BullCallSpread: fitDiscourage, BearPutSpread: fitDiscourage,
		},
		types.RegimeRangeBoundHighVol: {
			ShortStraddle: fitHigh, ShortStrangle: fitPreferred, IronCondor: fitPreferred,
			ButterflySpread: fitNeutral, BullPutSpread: fitNeutral, BearCallSpread: fitNeutral,
			CoveredCall:  fitNeutral,
			LongStraddle: fitDiscourage, LongStrangle: fitDiscourage,
			BullCallSpread: fitDiscourage, BearPutSpread: fitDiscourage,
		},
		types.RegimeBreakoutPending: {
			LongStraddle: fitHigh, LongStrangle: fitPreferred,
			ShortStraddle: fitAvoid, ShortStrangle: fitDiscourage,
			IronCondor: fitDiscourage, ButterflySpread: fitDiscourage,
			BullCallSpread: fitNeutral, BearPutSpread: fitNeutral,
			BullPutSpread: fitNeutral, BearCallSpread: fitNeutral, CoveredCall: fitNeutral,
		},
		types.RegimeHighVolEvent: {
			LongStraddle: fitPreferred, LongStrangle: fitPreferred,
			ShortStraddle: fitAvoid, ShortStrangle: fitDiscourage,
			ButterflySpread: fitDiscourage, IronCondor: fitAvoid,
			BullCallSpread: fitNeutral, BearPutSpread: fitNeutral,
			BullPutSpread: fitDiscourage, BearCallSpread: fitDiscourage, CoveredCall: fitDiscourage,
		},
		types.RegimeLowVolCompression: {
			LongStraddle: fitPreferred, LongStrangle: fitPreferred,
			ButterflySpread: fitNeutral, IronCondor: fitNeutral,
			ShortStraddle: fitDiscourage, ShortStrangle: fitDiscourage,
			BullCallSpread: fitNeutral, BearPutSpread: fitNeutral,
			BullPutSpread: fitNeutral, BearCallSpread: fitNeutral, CoveredCall: fitNeutral,
		},
		types.RegimeTransitional: {
			ButterflySpread: fitPreferred, IronCondor: fitNeutral,
			ShortStraddle: fitNeutral, ShortStrangle: fitNeutral,
			LongStraddle: fitDiscourage, LongStrangle: fitDiscourage,
			BullCallSpread: fitDiscourage, BearPutSpread: fitDiscourage,
			BullPutSpread: fitDiscourage, BearCallSpread: fitDiscourage, CoveredCall: fitDiscourage,
		},
	}
}

// Price re-estimates the per-share premium of a strategy's structure under
// the current snapshot. credit reports the structure's direction: a credit
// structure is held short (premium received), a debit structure long.
// Used to mark open positions and evaluate exits.
func (c *Catalog) Price(name string, snap types.MarketSnapshot, inst types.Instrument) (premium decimal.Decimal, credit bool, ok bool) {
	def, found := c.byName[name]
	if !found {
		return decimal.Zero, false, false
	}
	net := netPremium(def.Legs(snap, inst))
	return net.Abs(), net.IsPositive(), true
}

// RiskPerShare re-derives the per-share capital at risk of a structure
// under the current snapshot. Bucket exposure aggregates on this basis:
// the fill premium of a credit structure is far below its max loss.
func (c *Catalog) RiskPerShare(name string, snap types.MarketSnapshot, inst types.Instrument) (decimal.Decimal, bool) {
	def, found := c.byName[name]
	if !found {
		return decimal.Zero, false
	}
	eco := economics(def, def.Legs(snap, inst))
	if !eco.MaxLoss.IsPositive() {
		return decimal.Zero, false
	}
	return eco.MaxLoss, true
}

// Economics summarizes one unit of a structure for risk sizing.
type Economics struct {
	NetPremium decimal.Decimal // positive = credit
	MaxProfit  decimal.Decimal // per share
	MaxLoss    decimal.Decimal // per share; modeled via stop for undefined-risk structures
	EntryPrice decimal.Decimal // per-share capital at risk
}

// economics derives the risk/reward profile of a built structure.
func economics(def Definition, legs []types.OptionLeg) Economics {
	net := netPremium(legs)
	width := spreadWidth(legs)

	var maxProfit, maxLoss decimal.Decimal
	if net.IsPositive() {
		// Credit structure: profit capped at the credit.
		maxProfit = net
		if width.IsPositive() {
			maxLoss = width.Sub(net)
		} else {
			// Undefined risk (short straddle/strangle, covered call):
			// model loss at the stop multiple.
			maxLoss = net.Mul(decimal.NewFromFloat(def.StopLoss))
		}
	} else {
		// Debit structure: loss capped at the debit paid.
		debit := net.Neg()
		maxLoss = debit
		if width.IsPositive() {
			maxProfit = width.Sub(debit)
		} else {
			// Long premium: open-ended upside, model at the target.
			maxProfit = debit.Mul(decimal.NewFromFloat(def.TargetProfit))
		}
	}

	return Economics{
		NetPremium: net,
		MaxProfit:  maxProfit,
		MaxLoss:    maxLoss,
		EntryPrice: maxLoss,
	}
}

// spreadWidth finds the strike distance of a matched buy/sell pair of the
// same option type. Zero for unpaired (undefined-risk) structures.
func spreadWidth(legs []types.OptionLeg) decimal.Decimal {
	for _, a := range legs {
		if a.Side != types.LegSell {
			continue
		}
		for _, b := range legs {
			if b.Side == types.LegBuy && b.Type == a.Type {
				return a.Strike.Sub(b.Strike).Abs()
			}
		}
	}
	return decimal.Zero
}
