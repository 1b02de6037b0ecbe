package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"portfoliosim/src/indicators"
	"portfoliosim/src/model"
)

type MomentumConfig struct {
	RSIOverbought float64 // exit longs above this
	RSIFloor      float64 // entries need RSI above this
	StopATRs      float64 // stop distance in ATR multiples
	TargetATRs    float64 // target distance in ATR multiples
	TrailLookback int     // bars in the trailing-stop window
}

func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		RSIOverbought: 70,
		RSIFloor:      45,
		StopATRs:      2,
		TargetATRs:    4,
		TrailLookback: 10,
	}
}

// Momentum is a long-only trend-following strategy: it enters when the
// fast average leads the slow one with RSI in a healthy band, and
// trails a stop under recent lows while the position is open. Trail
// levels are per-symbol state owned by the strategy instance, never
// shared globals.
type Momentum struct {
	cfg MomentumConfig

	trailStops map[string]decimal.Decimal
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{
		cfg:        cfg,
		trailStops: make(map[string]decimal.Decimal),
	}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Prepare(bars map[string][]model.Bar) {
	// fresh run, drop any trail state from a previous one
	m.trailStops = make(map[string]decimal.Decimal, len(bars))
}

func (m *Momentum) OnBar(ctx Context) []model.Signal {
	if ctx.Position != nil {
		return m.manageOpen(ctx)
	}
	return m.lookForEntry(ctx)
}

func (m *Momentum) lookForEntry(ctx Context) []model.Signal {
	ind := ctx.Indicators
	if ind == nil {
		return nil
	}

	smaFast := ind[indicators.KeySMAFast]
	smaSlow := ind[indicators.KeySMASlow]
	rsi := ind[indicators.KeyRSI]
	atr := ind[indicators.KeyATR]

	if smaFast <= smaSlow || atr <= 0 {
		return nil
	}
	if ctx.Bar.IsBearish() {
		// trend filters can lag a reversal; never enter off a down candle
		return nil
	}
	if rsi < m.cfg.RSIFloor || rsi > m.cfg.RSIOverbought {
		return nil
	}

	close := ctx.Bar.Close
	atrDec := decimal.NewFromFloat(atr)
	stop := close.Sub(atrDec.Mul(decimal.NewFromFloat(m.cfg.StopATRs)))
	target := close.Add(atrDec.Mul(decimal.NewFromFloat(m.cfg.TargetATRs)))
	if stop.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	// strength: how far the fast average leads the slow one, saturated
	// at 2%
	lead := (smaFast - smaSlow) / smaSlow
	strength := lead / 0.02
	if strength > 1 {
		strength = 1
	}

	confidence := ind[indicators.KeyTrendScore]

	m.trailStops[ctx.Symbol] = stop

	return []model.Signal{{
		Symbol:    ctx.Symbol,
		Type:      model.SignalEnterLong,
		Timestamp: ctx.Bar.Timestamp,
		Metadata: map[string]string{
			model.MetaStopLoss:   stop.String(),
			model.MetaTarget:     target.String(),
			model.MetaConfidence: fmt.Sprintf("%.4f", confidence),
			model.MetaStrength:   fmt.Sprintf("%.4f", strength),
			model.MetaConfluence: fmt.Sprintf("%.0f", ind[indicators.KeyConfluence]),
			model.MetaTrendScore: fmt.Sprintf("%.4f", ind[indicators.KeyTrendScore]),
			model.MetaVolatility: fmt.Sprintf("%.6f", ind[indicators.KeyVolatility]),
		},
	}}
}

func (m *Momentum) manageOpen(ctx Context) []model.Signal {
	trail, ok := m.trailStops[ctx.Symbol]
	if !ok {
		trail = ctx.Position.StopLoss
	}

	if next, moved := nextTrailStop(trail, ctx.History, m.cfg.TrailLookback); moved {
		m.trailStops[ctx.Symbol] = next
		trail = next
	}

	if !trail.IsZero() && ctx.Bar.Close.LessThan(trail) {
		delete(m.trailStops, ctx.Symbol)
		return []model.Signal{{
			Symbol:    ctx.Symbol,
			Type:      model.SignalExitLong,
			Timestamp: ctx.Bar.Timestamp,
		}}
	}

	return nil
}

// nextTrailStop raises a long trailing stop toward the average low of
// the lookback window. The previous bar must be bullish to move, the
// candidate is clamped at the previous bar's low, and the stop only
// ever rises.
func nextTrailStop(current decimal.Decimal, history []model.Bar, lookback int) (decimal.Decimal, bool) {
	if len(history) < 2 {
		return current, false
	}
	if lookback <= 0 {
		lookback = 10
	}
	if lookback > len(history) {
		lookback = len(history)
	}

	prev := history[len(history)-2]
	if !prev.IsBullish() {
		return current, false
	}

	window := history[len(history)-lookback:]
	sum := decimal.Zero
	for _, bar := range window {
		sum = sum.Add(bar.Low)
	}
	candidate := sum.Div(decimal.NewFromInt(int64(len(window))))

	if candidate.GreaterThan(prev.Low) {
		candidate = prev.Low
	}
	if candidate.GreaterThan(current) {
		return candidate, true
	}
	return current, false
}
