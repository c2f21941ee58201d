package strategy

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// minScore prunes candidates whose combined score is too weak to act on.
const minScore = 0.1

// OpenCountFunc reports how many positions are currently open for a
// strategy.
type OpenCountFunc func(strategy string) int

// Selector ranks strategies for the current regime and emits at most one
// signal per strategy per cycle.
type Selector struct {
	logger   *zap.Logger
	catalog  *Catalog
	feedback *Feedback
}

// NewSelector wires the selector to a catalog and feedback tracker.
func NewSelector(logger *zap.Logger, catalog *Catalog, feedback *Feedback) *Selector {
	return &Selector{
		logger:   logger.Named("selector"),
		catalog:  catalog,
		feedback: feedback,
	}
}

// Select evaluates every catalog strategy against the regime state and
// snapshot and returns ranked signals, best first. Ties in score fall back
// to the definition's priority. The same inputs always produce the same
// ranking.
func (s *Selector) Select(state types.RegimeState, snap types.MarketSnapshot, inst types.Instrument, openCount OpenCountFunc) []types.Signal {
	var signals []types.Signal

	for _, def := range s.catalog.Definitions() {
		if !def.Entry(state, snap) {
			continue
		}

		if openCount != nil && openCount(def.Name) >= def.MaxInstances {
			s.logger.Info("strategy at max instances, skipping",
				zap.String("strategy", def.Name),
				zap.Int("maxInstances", def.MaxInstances))
			continue
		}

		fit := s.catalog.FitScore(def.Name, state.Regime)
		score := state.Confidence * fit * s.feedback.Weight(def.Name)
		if score < minScore {
			continue
		}

		legs := def.Legs(snap, inst)
		econ := economics(def, legs)
		if !econ.MaxLoss.IsPositive() {
			// Degenerate structure under the current premium model.
			s.logger.Warn("structure has no measurable risk, skipping",
				zap.String("strategy", def.Name))
			continue
		}

		signals = append(signals, types.Signal{
			ID:           uuid.NewString(),
			Strategy:     def.Name,
			Bucket:       def.Bucket,
			Symbol:       snap.Symbol,
			Legs:         legs,
			Confidence:   score,
			SuggestedQty: inst.LotSize,
			EntryPrice:   econ.EntryPrice,
			NetPremium:   econ.NetPremium,
			MaxProfit:    econ.MaxProfit,
			MaxLoss:      econ.MaxLoss,
			CreatedAt:    time.Now().UTC(),
		})
	}

	// Definitions iterate in priority order, so a stable sort on score
	// leaves equal-score signals ranked by priority.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})

	if len(signals) > 0 {
		s.logger.Debug("signals ranked",
			zap.String("regime", string(state.Regime)),
			zap.Int("count", len(signals)),
			zap.String("top", signals[0].Strategy))
	}

	return signals
}
