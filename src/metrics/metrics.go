// Package metrics computes post-run performance statistics from the
// engine's trade log and equity curve. It runs strictly after a
// simulation; nothing here feeds back into execution.
package metrics

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"portfoliosim/src/model"
)

// Report summarizes one completed run.
type Report struct {
	TotalReturn    float64         `json:"total_return"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	WinRate        float64         `json:"win_rate"`
	ProfitFactor   float64         `json:"profit_factor"`
	TotalNetProfit decimal.Decimal `json:"total_net_profit"`
}

// MarshalJSON encodes an undefined profit factor (no losing trades) as
// null, since JSON has no representation for +Inf.
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	aux := struct {
		alias
		ProfitFactor interface{} `json:"profit_factor"`
	}{alias: alias(r)}
	if !math.IsInf(r.ProfitFactor, 0) {
		aux.ProfitFactor = r.ProfitFactor
	}
	return json.Marshal(aux)
}

// periodsPerYear assumes daily bars when annualizing the Sharpe ratio.
const periodsPerYear = 252

// Compute builds a Report from trades and the equity curve.
func Compute(trades []model.Trade, curve []model.PortfolioSnapshot) Report {
	report := Report{TotalTrades: len(trades), TotalNetProfit: decimal.Zero}

	grossWins := decimal.Zero
	grossLosses := decimal.Zero
	for _, trade := range trades {
		report.TotalNetProfit = report.TotalNetProfit.Add(trade.NetProfit)
		if trade.IsWinner() {
			report.WinningTrades++
			grossWins = grossWins.Add(trade.NetProfit)
		} else {
			grossLosses = grossLosses.Add(trade.NetProfit.Abs())
		}
	}

	if report.TotalTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.TotalTrades)
	}
	if grossLosses.GreaterThan(decimal.Zero) {
		report.ProfitFactor, _ = grossWins.Div(grossLosses).Float64()
	} else if grossWins.GreaterThan(decimal.Zero) {
		report.ProfitFactor = math.Inf(1)
	}

	if len(curve) < 2 {
		return report
	}

	first, _ := curve[0].Equity.Float64()
	last, _ := curve[len(curve)-1].Equity.Float64()
	if first != 0 {
		report.TotalReturn = last/first - 1
	}

	returns := periodReturns(curve)
	report.SharpeRatio = sharpe(returns)
	report.MaxDrawdown = maxDrawdown(curve)

	return report
}

func periodReturns(curve []model.PortfolioSnapshot) []float64 {
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	return returns
}

// sharpe is the annualized mean/stddev of period returns, risk-free
// rate assumed zero.
func sharpe(returns []float64) float64 {
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

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// maxDrawdown is the worst peak-to-trough equity decline, as a
// positive fraction.
func maxDrawdown(curve []model.PortfolioSnapshot) float64 {
	peak, _ := curve[0].Equity.Float64()
	worst := 0.0

	for _, snap := range curve[1:] {
		equity, _ := snap.Equity.Float64()
		if equity > peak {
			peak = equity
			continue
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
