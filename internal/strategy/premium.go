package strategy

import (
	"math"

	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
)

// targetDTE is the days-to-expiry the leg builders assume when estimating
// premiums. Weekly index options.
const targetDTE = 15

// estimatePremium approximates an option premium from IV and distance from
// ATM: intrinsic value plus a time value that decays in distance bands.
// A placeholder for live option-chain quotes; good enough for structure
// comparison and sizing.
func estimatePremium(strike, spot decimal.Decimal, optType types.OptionType, iv float64) decimal.Decimal {
	strikeF, _ := strike.Float64()
	spotF, _ := spot.Float64()

	pointsFromATM := math.Abs(strikeF - spotF)
	baseTimeValue := iv * 0.3 * math.Sqrt(float64(targetDTE)/365)

	var intrinsic float64
	if optType == types.OptionCall {
		intrinsic = math.Max(0, spotF-strikeF)
	} else {
		intrinsic = math.Max(0, strikeF-spotF)
	}

	var timeValue float64
	switch {
	case pointsFromATM <= 100:
		timeValue = baseTimeValue * 80
	case pointsFromATM <= 200:
		timeValue = baseTimeValue * 50
	default:
		timeValue = baseTimeValue * 25
	}

	premium := intrinsic + timeValue
	floor := 5.0
	if pointsFromATM <= 200 {
		floor = 10.0
	}
	premium = math.Max(premium, floor)

	return decimal.NewFromFloat(premium).Round(2)
}

// atmStrike rounds the spot to the nearest strike on the instrument's grid.
func atmStrike(spot, interval decimal.Decimal) decimal.Decimal {
	return spot.Div(interval).Round(0).Mul(interval)
}

// netPremium sums leg premiums, credits positive.
func netPremium(legs []types.OptionLeg) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range legs {
		amt := leg.Premium.Mul(decimal.NewFromInt(int64(leg.Quantity)))
		if leg.Side == types.LegSell {
			total = total.Add(amt)
		} else {
			total = total.Sub(amt)
		}
	}
	return total
}
