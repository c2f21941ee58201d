package strategy

import (
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// Leg builders. Each returns the legs for exactly one unit of the
// structure; quantities are scaled later by risk sizing. Strikes snap to
// the instrument grid and distances are expressed in strike intervals.

var two = decimal.NewFromInt(2)

func leg(strike decimal.Decimal, t types.OptionType, side types.LegSide, spot decimal.Decimal, iv float64) types.OptionLeg {
	return types.OptionLeg{
		Strike:   strike,
		Type:     t,
		Side:     side,
		Quantity: 1,
		Premium:  estimatePremium(strike, spot, t, iv),
	}
}

// ironCondorLegs sells an OTM put spread and an OTM call spread around the
// current range.
func ironCondorLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	wing := inst.StrikeInterval.Mul(two)

	shortPut := atm.Sub(wing)
	longPut := shortPut.Sub(wing)
	shortCall := atm.Add(wing)
	longCall := shortCall.Add(wing)

	return []types.OptionLeg{
		leg(shortPut, types.OptionPut, types.LegSell, snap.Spot, snap.IV),
		leg(longPut, types.OptionPut, types.LegBuy, snap.Spot, snap.IV),
		leg(shortCall, types.OptionCall, types.LegSell, snap.Spot, snap.IV),
		leg(longCall, types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
	}
}

// butterflyLegs buys the wings and sells twice the body at ATM.
func butterflyLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	wing := inst.StrikeInterval.Mul(two)

	body := leg(atm, types.OptionCall, types.LegSell, snap.Spot, snap.IV)
	body.Quantity = 2

	return []types.OptionLeg{
		leg(atm.Sub(wing), types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
		body,
		leg(atm.Add(wing), types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
	}
}

// bullPutSpreadLegs sells an OTM put and buys a further OTM put for
// protection.
func bullPutSpreadLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	shortPut := atm.Sub(inst.StrikeInterval.Mul(two))
	longPut := shortPut.Sub(inst.StrikeInterval.Mul(two))

	return []types.OptionLeg{
		leg(shortPut, types.OptionPut, types.LegSell, snap.Spot, snap.IV),
		leg(longPut, types.OptionPut, types.LegBuy, snap.Spot, snap.IV),
	}
}

func bearCallSpreadLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	shortCall := atm.Add(inst.StrikeInterval.Mul(two))
	longCall := shortCall.Add(inst.StrikeInterval.Mul(two))

	return []types.OptionLeg{
		leg(shortCall, types.OptionCall, types.LegSell, snap.Spot, snap.IV),
		leg(longCall, types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
	}
}

// bullCallSpreadLegs buys near ATM and sells further out to cheapen the
// debit.
func bullCallSpreadLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	longCall := atm
	shortCall := atm.Add(inst.StrikeInterval.Mul(two))

	return []types.OptionLeg{
		leg(longCall, types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
		leg(shortCall, types.OptionCall, types.LegSell, snap.Spot, snap.IV),
	}
}

func bearPutSpreadLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	longPut := atm
	shortPut := atm.Sub(inst.StrikeInterval.Mul(two))

	return []types.OptionLeg{
		leg(longPut, types.OptionPut, types.LegBuy, snap.Spot, snap.IV),
		leg(shortPut, types.OptionPut, types.LegSell, snap.Spot, snap.IV),
	}
}

// coveredCallLegs sells an OTM call against held stock/futures. Only the
// option leg is modeled; the underlying hedge lives with the broker.
func coveredCallLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	shortCall := atm.Add(inst.StrikeInterval.Mul(two))

	return []types.OptionLeg{
		leg(shortCall, types.OptionCall, types.LegSell, snap.Spot, snap.IV),
	}
}

func longStraddleLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	return []types.OptionLeg{
		leg(atm, types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
		leg(atm, types.OptionPut, types.LegBuy, snap.Spot, snap.IV),
	}
}

func shortStraddleLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	return []types.OptionLeg{
		leg(atm, types.OptionCall, types.LegSell, snap.Spot, snap.IV),
		leg(atm, types.OptionPut, types.LegSell, snap.Spot, snap.IV),
	}
}

func longStrangleLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	wing := inst.StrikeInterval.Mul(two)
	return []types.OptionLeg{
		leg(atm.Add(wing), types.OptionCall, types.LegBuy, snap.Spot, snap.IV),
		leg(atm.Sub(wing), types.OptionPut, types.LegBuy, snap.Spot, snap.IV),
	}
}

func shortStrangleLegs(snap types.MarketSnapshot, inst types.Instrument) []types.OptionLeg {
	atm := atmStrike(snap.Spot, inst.StrikeInterval)
	wing := inst.StrikeInterval.Mul(two)
	return []types.OptionLeg{
		leg(atm.Add(wing), types.OptionCall, types.LegSell, snap.Spot, snap.IV),
		leg(atm.Sub(wing), types.OptionPut, types.LegSell, snap.Spot, snap.IV),
	}
}
