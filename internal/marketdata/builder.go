// Package marketdata turns raw candles and implied-vol history into the
// per-cycle MarketSnapshot the classifier and selector consume.
package marketdata

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// Config sets the indicator periods behind the snapshot fields.
type Config struct {
	FastEMAPeriod int `json:"fastEmaPeriod"`
	SlowEMAPeriod int `json:"slowEmaPeriod"`
	RSIPeriod     int `json:"rsiPeriod"`
	RangeWindow   int `json:"rangeWindow"` // bars for the range position
	VolWindow     int `json:"volWindow"`   // bars for realized vol
}

// DefaultConfig returns the standard indicator periods.
func DefaultConfig() Config {
	return Config{
		FastEMAPeriod: 9,
		SlowEMAPeriod: 21,
		RSIPeriod:     14,
		RangeWindow:   20,
		VolWindow:     20,
	}
}

// Builder computes MarketSnapshots. Stateless between calls; all history
// arrives as input.
type Builder struct {
	logger *zap.Logger
	config Config
}

// NewBuilder creates a snapshot builder.
func NewBuilder(logger *zap.Logger, config Config) *Builder {
	return &Builder{
		logger: logger.Named("marketdata"),
		config: config,
	}
}

// minBars is the history needed before any snapshot can be built.
func (b *Builder) minBars() int {
	n := b.config.SlowEMAPeriod
	if b.config.RangeWindow > n {
		n = b.config.RangeWindow
	}
	if b.config.VolWindow+1 > n {
		n = b.config.VolWindow + 1
	}
	return n
}

// Build derives a snapshot from candle history and the trailing IV series
// (oldest first, last element is current). Returns ErrDataUnavailable when
// either history is too short to compute the indicators.
func (b *Builder) Build(symbol string, bars []types.OHLCV, ivHistory []float64) (types.MarketSnapshot, error) {
	if len(bars) < b.minBars() {
		return types.MarketSnapshot{}, fmt.Errorf("%s: %d bars, need %d: %w",
			symbol, len(bars), b.minBars(), types.ErrDataUnavailable)
	}
	if len(ivHistory) == 0 {
		return types.MarketSnapshot{}, fmt.Errorf("%s: no implied vol history: %w",
			symbol, types.ErrDataUnavailable)
	}

	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i], _ = bars[i].Close.Float64()
	}

	last := bars[len(bars)-1]
	iv := ivHistory[len(ivHistory)-1]
	volume, _ := last.Volume.Float64()

	snap := types.MarketSnapshot{
		Symbol:        symbol,
		Spot:          last.Close,
		IV:            iv,
		IVRank:        percentileRank(ivHistory, iv),
		TrendStrength: b.trendStrength(closes),
		RealizedVol:   b.realizedVol(closes),
		Volume:        int64(volume),
		RangePosition: b.rangePosition(bars),
		Timestamp:     last.Timestamp,
	}

	b.logger.Debug("snapshot built",
		zap.String("symbol", symbol),
		zap.String("spot", snap.Spot.String()),
		zap.Float64("ivRank", snap.IVRank),
		zap.Float64("trendStrength", snap.TrendStrength))

	return snap, nil
}

// trendStrength combines EMA separation with RSI displacement into [-1, 1].
func (b *Builder) trendStrength(closes []float64) float64 {
	fast := lastEMA(closes, b.config.FastEMAPeriod)
	slow := lastEMA(closes, b.config.SlowEMAPeriod)
	if slow == 0 {
		return 0
	}

	// EMA separation, scaled so a 2% gap saturates.
	separation := clamp((fast-slow)/slow/0.02, -1, 1)

	// RSI displacement from the 50 midline.
	rsi := lastRSI(closes, b.config.RSIPeriod)
	displacement := clamp((rsi-50)/50, -1, 1)

	return clamp(0.7*separation+0.3*displacement, -1, 1)
}

// realizedVol is the annualized standard deviation of daily log returns
// over the trailing window.
func (b *Builder) realizedVol(closes []float64) float64 {
	window := closes
	if len(window) > b.config.VolWindow+1 {
		window = window[len(window)-b.config.VolWindow-1:]
	}

	returns := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
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

	return math.Sqrt(variance) * math.Sqrt(252)
}

// rangePosition places the latest close inside the high/low range of the
// trailing window: 0 at the low, 1 at the high.
func (b *Builder) rangePosition(bars []types.OHLCV) float64 {
	window := bars
	if len(window) > b.config.RangeWindow {
		window = window[len(window)-b.config.RangeWindow:]
	}

	high, _ := window[0].High.Float64()
	low, _ := window[0].Low.Float64()
	for _, bar := range window[1:] {
		h, _ := bar.High.Float64()
		l, _ := bar.Low.Float64()
		if h > high {
			high = h
		}
		if l < low {
			low = l
		}
	}
	if high == low {
		return 0.5
	}

	closeF, _ := window[len(window)-1].Close.Float64()
	return clamp((closeF-low)/(high-low), 0, 1)
}

// percentileRank returns where value sits in the history, [0, 100].
func percentileRank(history []float64, value float64) float64 {
	if len(history) < 2 {
		return 50
	}
	below := 0
	for _, v := range history {
		if v < value {
			below++
		}
	}
	return 100 * float64(below) / float64(len(history)-1)
}

func lastEMA(closes []float64, period int) float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	values := helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func lastRSI(closes []float64, period int) float64 {
	rsi := momentum.NewRsiWithPeriod[float64](period)
	values := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return 50
	}
	last := values[len(values)-1]
	if math.IsNaN(last) {
		// A change-free series has no gains or losses to ratio.
		return 50
	}
	return last
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
