// Package indicators computes the per-symbol, per-timestamp analysis
// snapshot the engine hands to strategies. The engine treats the result
// as an opaque key/value map; only strategies interpret the keys.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"portfoliosim/src/model"
)

// Keys present in the snapshot produced by the default provider.
const (
	KeySMAFast    = "sma_fast"
	KeySMASlow    = "sma_slow"
	KeyRSI        = "rsi"
	KeyATR        = "atr"
	KeyVolatility = "volatility"
	KeyTrendScore = "trend_score"
	KeyConfluence = "confluence"
)

var ErrInsufficientHistory = errors.New("not enough bars for indicator computation")

// Provider computes an indicator snapshot from one symbol's rolling
// history, oldest bar first. Implementations must be safe for
// concurrent use across different symbols.
type Provider interface {
	Compute(symbol string, history []model.Bar) (map[string]float64, error)
}

type Config struct {
	FastPeriod int
	SlowPeriod int
	RSIPeriod  int
	ATRPeriod  int
}

func DefaultConfig() Config {
	return Config{
		FastPeriod: 10,
		SlowPeriod: 30,
		RSIPeriod:  14,
		ATRPeriod:  14,
	}
}

// Default is the built-in Provider. It holds no mutable state, so one
// instance serves all worker goroutines.
type Default struct {
	cfg Config
}

func NewDefault(cfg Config) *Default {
	return &Default{cfg: cfg}
}

func (p *Default) Compute(symbol string, history []model.Bar) (map[string]float64, error) {
	need := p.cfg.SlowPeriod
	if p.cfg.RSIPeriod+1 > need {
		need = p.cfg.RSIPeriod + 1
	}
	if p.cfg.ATRPeriod+1 > need {
		need = p.cfg.ATRPeriod + 1
	}
	if len(history) < need {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientHistory, symbol, len(history), need)
	}

	closes := make([]float64, len(history))
	for i, bar := range history {
		closes[i], _ = bar.Close.Float64()
	}

	smaFast := SMA(closes, p.cfg.FastPeriod)
	smaSlow := SMA(closes, p.cfg.SlowPeriod)
	rsi := RSI(closes, p.cfg.RSIPeriod)
	atr := ATR(history, p.cfg.ATRPeriod)
	vol := Volatility(closes, p.cfg.SlowPeriod)

	last := closes[len(closes)-1]

	return map[string]float64{
		KeySMAFast:    smaFast,
		KeySMASlow:    smaSlow,
		KeyRSI:        rsi,
		KeyATR:        atr,
		KeyVolatility: vol,
		KeyTrendScore: trendScore(last, smaFast, smaSlow),
		KeyConfluence: confluence(last, smaFast, smaSlow, rsi),
	}, nil
}

// SMA is the simple moving average over the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// RSI is a basic Relative Strength Index without smoothing.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	gain := 0.0
	loss := 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}

	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

// ATR is the average true range over the last period bars.
func ATR(bars []model.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		high, _ := bars[i].High.Float64()
		low, _ := bars[i].Low.Float64()
		prevClose, _ := bars[i-1].Close.Float64()

		tr := high - low
		if hc := math.Abs(high - prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(low - prevClose); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// Volatility is the standard deviation of close-to-close returns over
// the last period values.
func Volatility(values []float64, period int) float64 {
	if period <= 1 || len(values) < period+1 {
		return 0
	}

	returns := make([]float64, 0, period)
	for i := len(values) - period; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance)
}

// trendScore maps the fast/slow alignment into [0,1]: 1 when price sits
// above both averages and fast leads slow, 0 in the mirrored bearish
// case.
func trendScore(last, smaFast, smaSlow float64) float64 {
	score := 0.0
	if last > smaFast {
		score += 1
	}
	if last > smaSlow {
		score += 1
	}
	if smaFast > smaSlow {
		score += 1
	}
	return score / 3.0
}

// confluence counts independent bullish agreements; the ranker caps it.
func confluence(last, smaFast, smaSlow, rsi float64) float64 {
	count := 0.0
	if last > smaFast {
		count++
	}
	if last > smaSlow {
		count++
	}
	if smaFast > smaSlow {
		count++
	}
	if rsi > 50 && rsi < 70 {
		count++
	}
	return count
}
