// Package strategy provides the option strategy catalog and the signal
// selector. Strategies are a capability table of pure functions (entry
// predicate + leg builder) keyed by name, so each definition can be tested
// in isolation without virtual dispatch.
package strategy

import (
	"github.com/quantedge/options-engine/pkg/types"
)

// EntryFunc reports whether a strategy may enter under the given regime and
// snapshot. Pure.
type EntryFunc func(state types.RegimeState, snap types.MarketSnapshot) bool

// LegsFunc builds the option legs for one unit of the structure. Pure given
// the snapshot and instrument.
type LegsFunc func(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg

// Definition describes one strategy in the catalog.
type Definition struct {
	Name         string
	Bucket       types.AllocationBucket
	Priority     int // tie-break order, lower wins
	TargetProfit float64 // take-profit as fraction of the entry premium
	StopLoss     float64 // stop as multiple of credit received / debit paid
	MaxInstances int     // max concurrent positions for this strategy
	Entry        EntryFunc
	Legs         LegsFunc
}

// Strategy names. The set is closed; the fit table and leg builders are
// exhaustive over it.
const (
	IronCondor      = "iron_condor"
	ButterflySpread = "butterfly_spread"
	BullPutSpread   = "bull_put_spread"
	BearCallSpread  = "bear_call_spread"
	BullCallSpread  = "bull_call_spread"
	BearPutSpread   = "bear_put_spread"
	CoveredCall     = "covered_call"
	LongStraddle    = "long_straddle"
	ShortStraddle   = "short_straddle"
	LongStrangle    = "long_strangle"
	ShortStrangle   = "short_strangle"
)

func definitions() []Definition {
	return []Definition{
		{
			Name:         IronCondor,
			Bucket:       types.BucketConservative,
			Priority:     1,
			TargetProfit: 0.5,
			StopLoss:     2.0,
			MaxInstances: 3,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return isRangeBound(state.Regime) && snap.IVRank >= 20 && snap.IVRank <= 70
			},
			Legs: ironCondorLegs,
		},
		{
			Name:         ButterflySpread,
			Bucket:       types.BucketConservative,
			Priority:     2,
			TargetProfit: 0.6,
			StopLoss:     1.0,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return isRangeBound(state.Regime) || state.Regime == types.RegimeTransitional
			},
			Legs: butterflyLegs,
		},
		{
			Name:         BullPutSpread,
			Bucket:       types.BucketConservative,
			Priority:     3,
			TargetProfit: 0.5,
			StopLoss:     2.0,
			MaxInstances: 3,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				bullish := state.Regime == types.RegimeTrendingBull
				sideways := isRangeBound(state.Regime) && snap.TrendStrength > 0
				return (bullish || sideways) && snap.IVRank >= 25
			},
			Legs: bullPutSpreadLegs,
		},
		{
			Name:         BearCallSpread,
			Bucket:       types.BucketConservative,
			Priority:     4,
			TargetProfit: 0.5,
			StopLoss:     2.0,
			MaxInstances: 3,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				bearish := state.Regime == types.RegimeTrendingBear
				sideways := isRangeBound(state.Regime) && snap.TrendStrength < 0
				return (bearish || sideways) && snap.IVRank >= 25
			},
			Legs: bearCallSpreadLegs,
		},
		{
			Name:         BullCallSpread,
			Bucket:       types.BucketConservative,
			Priority:     5,
			TargetProfit: 0.8,
			StopLoss:     1.0,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				// Debit spread: wants a directional move and cheap premium.
				return state.Regime == types.RegimeTrendingBull && snap.IVRank <= 60
			},
			Legs: bullCallSpreadLegs,
		},
		{
			Name:         BearPutSpread,
			Bucket:       types.BucketConservative,
			Priority:     6,
			TargetProfit: 0.8,
			StopLoss:     1.0,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return state.Regime == types.RegimeTrendingBear && snap.IVRank <= 60
			},
			Legs: bearPutSpreadLegs,
		},
		{
			Name:         CoveredCall,
			Bucket:       types.BucketConservative,
			Priority:     7,
			TargetProfit: 0.7,
			StopLoss:     1.5,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return (state.Regime == types.RegimeTrendingBull || isRangeBound(state.Regime)) &&
					snap.TrendStrength >= 0
			},
			Legs: coveredCallLegs,
		},
		{
			Name:         LongStraddle,
			Bucket:       types.BucketAggressive,
			Priority:     8,
			TargetProfit: 1.0,
			StopLoss:     0.5,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				// Long premium wants cheap vol with an expansion catalyst.
				expansion := state.Regime == types.RegimeBreakoutPending ||
					state.Regime == types.RegimeLowVolCompression ||
					state.Regime == types.RegimeHighVolEvent
				return expansion && snap.IVRank <= 50
			},
			Legs: longStraddleLegs,
		},
		{
			Name:         ShortStraddle,
			Bucket:       types.BucketAggressive,
			Priority:     9,
			TargetProfit: 0.4,
			StopLoss:     1.5,
			MaxInstances: 1,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return isRangeBound(state.Regime) && snap.IVRank >= 50
			},
			Legs: shortStraddleLegs,
		},
		{
			Name:         LongStrangle,
			Bucket:       types.BucketAggressive,
			Priority:     10,
			TargetProfit: 1.0,
			StopLoss:     0.5,
			MaxInstances: 2,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				expansion := state.Regime == types.RegimeBreakoutPending ||
					state.Regime == types.RegimeLowVolCompression
				return expansion && snap.IVRank <= 40
			},
			Legs: longStrangleLegs,
		},
		{
			Name:         ShortStrangle,
			Bucket:       types.BucketAggressive,
			Priority:     11,
			TargetProfit: 0.4,
			StopLoss:     1.5,
			MaxInstances: 1,
			Entry: func(state types.RegimeState, snap types.MarketSnapshot) bool {
				return isRangeBound(state.Regime) && snap.IVRank >= 45
			},
			Legs: shortStrangleLegs,
		},
	}
}

func isRangeBound(r types.Regime) bool {
	return r == types.RegimeRangeBoundLowVol || r == types.RegimeRangeBoundHighVol
}
