package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SignalType string

const (
	SignalEnterLong  SignalType = "enter_long"
	SignalEnterShort SignalType = "enter_short"
	SignalExitLong   SignalType = "exit_long"
	SignalExitShort  SignalType = "exit_short"
	SignalLiquidate  SignalType = "liquidate"
)

// Metadata keys a strategy may attach to a signal. Values are encoded
// as strings; use the accessors below to decode them.
const (
	MetaStopLoss   = "stop_loss"
	MetaTarget     = "target"
	MetaConfidence = "confidence"
	MetaStrength   = "strength"
	MetaConfluence = "confluence"
	MetaTrendScore = "trend_score"
	MetaVolatility = "volatility"
)

// Signal is an intent emitted by a strategy on one bar. It is consumed
// the same timestep it is produced and executed on the following bar.
type Signal struct {
	Symbol    string            `json:"symbol"`
	Type      SignalType        `json:"type"`
	Quantity  decimal.Decimal   `json:"quantity"` // zero means "let the engine size it"
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s Signal) IsEntry() bool {
	return s.Type == SignalEnterLong || s.Type == SignalEnterShort
}

func (s Signal) IsExit() bool {
	return s.Type == SignalExitLong || s.Type == SignalExitShort || s.Type == SignalLiquidate
}

// metaDecimal decodes a metadata value as a decimal. The second return
// value is false when the key is absent or not parseable.
func (s Signal) metaDecimal(key string) (decimal.Decimal, bool) {
	raw, ok := s.Metadata[key]
	if !ok {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func (s Signal) StopLoss() (decimal.Decimal, bool) { return s.metaDecimal(MetaStopLoss) }
func (s Signal) Target() (decimal.Decimal, bool)   { return s.metaDecimal(MetaTarget) }

// Confidence returns the strategy's confidence in [0,1], defaulting to
// 1 when the signal does not carry one.
func (s Signal) Confidence() float64 {
	v, ok := s.metaDecimal(MetaConfidence)
	if !ok {
		return 1.0
	}
	f, _ := v.Float64()
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Strength returns the normalized signal strength in [0,1], defaulting
// to 0.5 when absent.
func (s Signal) Strength() float64 {
	v, ok := s.metaDecimal(MetaStrength)
	if !ok {
		return 0.5
	}
	f, _ := v.Float64()
	return f
}

func (s Signal) metaFloat(key string) (float64, bool) {
	v, ok := s.metaDecimal(key)
	if !ok {
		return 0, false
	}
	f, _ := v.Float64()
	return f, true
}

func (s Signal) ConfluenceCount() (float64, bool) { return s.metaFloat(MetaConfluence) }
func (s Signal) TrendScore() (float64, bool)      { return s.metaFloat(MetaTrendScore) }
func (s Signal) Volatility() (float64, bool)      { return s.metaFloat(MetaVolatility) }

// RankedSignal is a candidate entry enriched with fill levels and a
// ranking score. It exists only during one timestep's selection phase.
type RankedSignal struct {
	Signal     Signal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	Target     decimal.Decimal
	Quantity   decimal.Decimal
	RiskAmount decimal.Decimal
	Score      float64
}
