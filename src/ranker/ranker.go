// Package ranker scores competing entry candidates when more signals
// fire than the capital pool can accept, and picks the winners.
package ranker

import (
	"sort"

	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/model"
)

type Config struct {
	MinRiskReward float64 // candidates below this floor are dropped
	MaxRiskReward float64 // ratio is capped here before normalizing
	MaxConfluence float64 // confluence count is capped here

	WeightStrength   float64
	WeightRiskReward float64
	WeightConfluence float64
	WeightTrend      float64
	WeightVolatility float64

	// SectorOf maps symbol to sector for the diversity penalty. Symbols
	// without an entry never attract a penalty.
	SectorOf map[string]string

	// Same-sector open position counts at which the two penalty tiers
	// start, and the multipliers they apply to the composite score.
	ModerateSectorCount int
	HeavySectorCount    int
	ModeratePenalty     float64
	HeavyPenalty        float64
}

func DefaultConfig() Config {
	return Config{
		MinRiskReward:       1.5,
		MaxRiskReward:       5.0,
		MaxConfluence:       5.0,
		WeightStrength:      0.30,
		WeightRiskReward:    0.25,
		WeightConfluence:    0.20,
		WeightTrend:         0.15,
		WeightVolatility:    0.10,
		ModerateSectorCount: 2,
		HeavySectorCount:    3,
		ModeratePenalty:     0.70,
		HeavyPenalty:        0.40,
	}
}

type Ranker struct {
	cfg Config
}

func New(cfg Config) *Ranker {
	return &Ranker{cfg: cfg}
}

// riskReward returns target-distance over stop-distance for a
// candidate. The second return value is false when stop or target is
// missing, in which case the ratio is undefined and the floor does not
// apply.
func riskReward(c model.RankedSignal) (float64, bool) {
	if c.StopLoss.IsZero() || c.Target.IsZero() {
		return 0, false
	}
	risk := c.EntryPrice.Sub(c.StopLoss).Abs()
	if risk.IsZero() {
		return 0, false
	}
	reward := c.Target.Sub(c.EntryPrice).Abs()
	rr, _ := reward.Div(risk).Float64()
	return rr, true
}

func (r *Ranker) score(c model.RankedSignal, rr float64, hasRR bool) float64 {
	cfg := r.cfg

	strength := c.Signal.Strength()
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}

	rrScore := 0.0
	if hasRR {
		if rr > cfg.MaxRiskReward {
			rr = cfg.MaxRiskReward
		}
		rrScore = rr / cfg.MaxRiskReward
	}

	confluence := 0.0
	if count, ok := c.Signal.ConfluenceCount(); ok && cfg.MaxConfluence > 0 {
		if count > cfg.MaxConfluence {
			count = cfg.MaxConfluence
		}
		confluence = count / cfg.MaxConfluence
	}

	trend := 0.0
	if ts, ok := c.Signal.TrendScore(); ok {
		trend = ts
	}

	// lower volatility scores higher
	invVol := 0.5
	if vol, ok := c.Signal.Volatility(); ok && vol >= 0 {
		invVol = 1.0 / (1.0 + vol)
	}

	return cfg.WeightStrength*strength +
		cfg.WeightRiskReward*rrScore +
		cfg.WeightConfluence*confluence +
		cfg.WeightTrend*trend +
		cfg.WeightVolatility*invVol
}

// diversityMultiplier discounts a candidate whose sector already holds
// open positions. Two tiers: moderate and heavy.
func (r *Ranker) diversityMultiplier(symbol string, open map[string]model.Position) float64 {
	sector, ok := r.cfg.SectorOf[symbol]
	if !ok || sector == "" {
		return 1.0
	}

	sameSector := 0
	for sym := range open {
		if r.cfg.SectorOf[sym] == sector {
			sameSector++
		}
	}

	switch {
	case r.cfg.HeavySectorCount > 0 && sameSector >= r.cfg.HeavySectorCount:
		return r.cfg.HeavyPenalty
	case r.cfg.ModerateSectorCount > 0 && sameSector >= r.cfg.ModerateSectorCount:
		return r.cfg.ModeratePenalty
	default:
		return 1.0
	}
}

// Rank filters candidates below the risk/reward floor, scores the
// survivors, and returns them sorted by descending score. The sort is
// stable, so ties keep their input order.
func (r *Ranker) Rank(candidates []model.RankedSignal, open map[string]model.Position) []model.RankedSignal {
	ranked := make([]model.RankedSignal, 0, len(candidates))

	for _, c := range candidates {
		rr, hasRR := riskReward(c)
		if hasRR && rr < r.cfg.MinRiskReward {
			logger.WithFields(map[string]interface{}{
				"symbol": c.Signal.Symbol,
				"rr":     rr,
				"floor":  r.cfg.MinRiskReward,
			}).Debug("Candidate below risk/reward floor, dropped")
			continue
		}

		c.Score = r.score(c, rr, hasRR) * r.diversityMultiplier(c.Signal.Symbol, open)
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

// SelectTopSignals returns at most maxCount of the already-ranked
// candidates. The caller passes the lesser of the remaining position
// capacity and the per-timestep admission cap.
func (r *Ranker) SelectTopSignals(ranked []model.RankedSignal, maxCount int) []model.RankedSignal {
	if maxCount <= 0 || len(ranked) == 0 {
		return nil
	}
	if maxCount > len(ranked) {
		maxCount = len(ranked)
	}
	return ranked[:maxCount]
}
