package broker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantedge/options-engine/internal/marketdata"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperConfig configures the simulated broker.
type PaperConfig struct {
	Seed     int64                `json:"seed"`
	StartSpot map[string]float64  `json:"startSpot"` // initial spot per symbol
	BarCount int                  `json:"barCount"`  // seeded history length
	DailyVol float64              `json:"dailyVol"`  // random walk step size
}

// DefaultPaperConfig seeds the two index underlyings.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		Seed: 1,
		StartSpot: map[string]float64{
			"NIFTY":     22000,
			"BANKNIFTY": 48000,
		},
		BarCount: 120,
		DailyVol: 0.008,
	}
}

// Paper is an in-memory broker: it generates a deterministic random-walk
// market, fills orders immediately at the submitted price, and honors
// dedup keys. Failure injection lets tests and dry runs exercise the
// retry and circuit breaker paths.
type Paper struct {
	logger  *zap.Logger
	config  PaperConfig
	builder *marketdata.Builder

	mu       sync.Mutex
	rng      *rand.Rand
	bars     map[string][]types.OHLCV
	ivs      map[string][]float64
	fills    []Fill
	byDedup  map[string]string // dedup key -> order id
	failures []error           // injected PlaceOrder errors, consumed FIFO
}

// NewPaper creates a paper broker with seeded history for each symbol.
func NewPaper(logger *zap.Logger, cfg PaperConfig, builder *marketdata.Builder) *Paper {
	p := &Paper{
		logger:  logger.Named("paper-broker"),
		config:  cfg,
		builder: builder,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		bars:    make(map[string][]types.OHLCV),
		ivs:     make(map[string][]float64),
		byDedup: make(map[string]string),
	}

	start := time.Now().UTC().Add(-time.Duration(cfg.BarCount) * 5 * time.Minute)
	for symbol, spot := range cfg.StartSpot {
		price := spot
		iv := 15.0
		for i := 0; i < cfg.BarCount; i++ {
			price *= 1 + cfg.DailyVol*p.rng.NormFloat64()/math.Sqrt(75)
			iv = math.Max(8, math.Min(45, iv+p.rng.NormFloat64()*0.3))
			p.bars[symbol] = append(p.bars[symbol], bar(price, start.Add(time.Duration(i)*5*time.Minute)))
			p.ivs[symbol] = append(p.ivs[symbol], iv)
		}
	}

	return p
}

func bar(price float64, ts time.Time) types.OHLCV {
	c := decimal.NewFromFloat(price)
	return types.OHLCV{
		Timestamp: ts,
		Open:      c,
		High:      c.Mul(decimal.NewFromFloat(1.001)),
		Low:       c.Mul(decimal.NewFromFloat(0.999)),
		Close:     c,
		Volume:    decimal.NewFromInt(250000),
	}
}

// Advance appends one simulated bar per symbol. Called once per cycle by
// the driver loop.
func (p *Paper) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, history := range p.bars {
		last, _ := history[len(history)-1].Close.Float64()
		next := last * (1 + p.config.DailyVol*p.rng.NormFloat64()/math.Sqrt(75))
		p.bars[symbol] = append(history, bar(next, time.Now().UTC()))

		ivHist := p.ivs[symbol]
		iv := math.Max(8, math.Min(45, ivHist[len(ivHist)-1]+p.rng.NormFloat64()*0.3))
		p.ivs[symbol] = append(ivHist, iv)
	}
}

// GetSnapshot builds a snapshot from the simulated history.
func (p *Paper) GetSnapshot(ctx context.Context, symbol string) (types.MarketSnapshot, error) {
	p.mu.Lock()
	bars := append([]types.OHLCV(nil), p.bars[symbol]...)
	ivs := append([]float64(nil), p.ivs[symbol]...)
	p.mu.Unlock()

	return p.builder.Build(symbol, bars, ivs)
}

// FailNext injects errors returned by the next PlaceOrder calls, in order.
func (p *Paper) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// PlaceOrder fills immediately at the order price. Orders repeating a seen
// dedup key return the original id with no additional fill.
func (p *Paper) PlaceOrder(ctx context.Context, order types.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return "", err
	}

	if id, ok := p.byDedup[order.DedupKey]; ok {
		p.logger.Debug("duplicate order suppressed", zap.String("dedupKey", order.DedupKey))
		return id, nil
	}

	id := uuid.NewString()
	p.byDedup[order.DedupKey] = id
	p.fills = append(p.fills, Fill{
		OrderID:  id,
		DedupKey: order.DedupKey,
		Symbol:   order.Symbol,
		Strategy: order.Strategy,
		Bucket:   order.Bucket,
		Quantity: order.Quantity,
		Price:    order.Price,
		Time:     time.Now().UTC(),
	})

	p.logger.Info("paper fill",
		zap.String("symbol", order.Symbol),
		zap.String("strategy", order.Strategy),
		zap.Int("quantity", order.Quantity),
		zap.String("price", order.Price.String()))

	return id, nil
}

// Fills returns execution reports after the given time.
func (p *Paper) Fills(ctx context.Context, since time.Time) ([]Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Fill, 0, len(p.fills))
	for _, f := range p.fills {
		if f.Time.After(since) {
			out = append(out, f)
		}
	}
	return out, nil
}
