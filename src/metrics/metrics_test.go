package metrics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfoliosim/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func snap(day int, equity string) model.PortfolioSnapshot {
	return model.PortfolioSnapshot{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Equity:    d(equity),
		Cash:      d(equity),
	}
}

func trade(net string) model.Trade {
	return model.Trade{Symbol: "AAPL", Side: model.SideLong, NetProfit: d(net)}
}

func TestComputeTradeStats(t *testing.T) {
	trades := []model.Trade{trade("100"), trade("-50"), trade("200"), trade("-25")}

	report := Compute(trades, nil)

	if report.TotalTrades != 4 || report.WinningTrades != 2 {
		t.Fatalf("trade counting wrong: %+v", report)
	}
	if report.WinRate != 0.5 {
		t.Fatalf("expected win rate 0.5, got %f", report.WinRate)
	}
	// 300 / 75
	if math.Abs(report.ProfitFactor-4.0) > 1e-9 {
		t.Fatalf("expected profit factor 4, got %f", report.ProfitFactor)
	}
	if !report.TotalNetProfit.Equal(d("225")) {
		t.Fatalf("expected net 225, got %s", report.TotalNetProfit.String())
	}
}

func TestProfitFactorNoLosses(t *testing.T) {
	report := Compute([]model.Trade{trade("100")}, nil)
	if !math.IsInf(report.ProfitFactor, 1) {
		t.Fatalf("expected +Inf profit factor with no losses, got %f", report.ProfitFactor)
	}
}

func TestReportMarshalUndefinedProfitFactor(t *testing.T) {
	report := Compute([]model.Trade{trade("100")}, nil)

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"profit_factor":null`) {
		t.Fatalf("expected null profit factor, got %s", string(data))
	}
}

func TestReportMarshalFiniteProfitFactor(t *testing.T) {
	report := Compute([]model.Trade{trade("100"), trade("-50")}, nil)

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"profit_factor":2`) {
		t.Fatalf("expected profit factor 2, got %s", string(data))
	}
}

func TestTotalReturnAndDrawdown(t *testing.T) {
	curve := []model.PortfolioSnapshot{
		snap(0, "100000"),
		snap(1, "110000"),
		snap(2, "99000"), // 10% drawdown from the 110k peak
		snap(3, "121000"),
	}

	report := Compute(nil, curve)

	if math.Abs(report.TotalReturn-0.21) > 1e-9 {
		t.Fatalf("expected total return 0.21, got %f", report.TotalReturn)
	}
	if math.Abs(report.MaxDrawdown-0.1) > 1e-9 {
		t.Fatalf("expected max drawdown 0.1, got %f", report.MaxDrawdown)
	}
}

func TestFlatCurveSharpeZero(t *testing.T) {
	curve := []model.PortfolioSnapshot{snap(0, "100000"), snap(1, "100000"), snap(2, "100000")}

	report := Compute(nil, curve)
	if report.SharpeRatio != 0 {
		t.Fatalf("flat curve should have zero Sharpe, got %f", report.SharpeRatio)
	}
}
