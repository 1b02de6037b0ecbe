package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfoliosim/src/executor"
	"portfoliosim/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestLedger(mutate func(*model.BacktestConfig)) *Ledger {
	cfg := model.DefaultBacktestConfig()
	cfg.SlippageBps = decimal.Zero
	cfg.CommissionRate = decimal.Zero
	cfg.AllowShort = true
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, executor.New(cfg))
}

var at = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

func TestCalculatePositionSizeExample(t *testing.T) {
	// capital 100k, risk 2%, entry 100, stop 98 => 2000 / 2 = 1000 shares
	l := newTestLedger(nil)

	qty := l.CalculatePositionSize(d("100"), d("98"), d("100000"))
	if !qty.Equal(d("1000")) {
		t.Fatalf("expected 1000 shares, got %s", qty.String())
	}
}

func TestCalculatePositionSizeZeroRiskPerUnit(t *testing.T) {
	l := newTestLedger(nil)

	qty := l.CalculatePositionSize(d("100"), d("100"), d("100000"))
	if !qty.IsZero() {
		t.Fatalf("expected zero quantity when entry == stop, got %s", qty.String())
	}
}

func TestCalculatePositionSizeCashCap(t *testing.T) {
	// tight stop would size to 20000 shares, far beyond what cash buys
	l := newTestLedger(nil)

	qty := l.CalculatePositionSize(d("100"), d("99.90"), d("100000"))
	if !qty.Equal(d("1000")) {
		t.Fatalf("expected cash-capped 1000 shares, got %s", qty.String())
	}
}

func TestCalculatePositionSizeFloorsToStep(t *testing.T) {
	l := newTestLedger(func(cfg *model.BacktestConfig) {
		cfg.QuantityStep = d("10")
	})

	// budget 2000, risk-per-unit 3 => 666.66.. -> 660
	qty := l.CalculatePositionSize(d("100"), d("97"), d("100000"))
	if !qty.Equal(d("660")) {
		t.Fatalf("expected 660, got %s", qty.String())
	}
}

func TestFloorToStepIdempotent(t *testing.T) {
	once := FloorToStep(d("123.7"), d("1"))
	twice := FloorToStep(once, d("1"))
	if !once.Equal(twice) || !once.Equal(d("123")) {
		t.Fatalf("expected idempotent floor to 123, got %s then %s", once.String(), twice.String())
	}
}

func TestOpenPositionMovesCashAndRisk(t *testing.T) {
	l := newTestLedger(nil)

	pos, err := l.OpenPosition("AAPL", model.SideLong, d("100"), d("100"), at, d("98"), d("106"), d("200"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !l.Cash().Equal(d("90000")) {
		t.Fatalf("expected cash 90000, got %s", l.Cash().String())
	}
	if !l.PortfolioRisk().Equal(d("200")) {
		t.Fatalf("expected risk 200, got %s", l.PortfolioRisk().String())
	}
	if pos.Symbol != "AAPL" || l.OpenPositionCount() != 1 {
		t.Fatalf("position not inserted")
	}
}

func TestOpenShortCreditsProceeds(t *testing.T) {
	l := newTestLedger(nil)

	_, err := l.OpenPosition("TSLA", model.SideShort, d("10"), d("200"), at, d("210"), d("180"), d("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// short proceeds credited immediately: 100000 + 2000
	if !l.Cash().Equal(d("102000")) {
		t.Fatalf("expected cash 102000, got %s", l.Cash().String())
	}
}

func TestOpenShortRejectedWhenDisabled(t *testing.T) {
	l := newTestLedger(func(cfg *model.BacktestConfig) {
		cfg.AllowShort = false
	})

	_, err := l.OpenPosition("TSLA", model.SideShort, d("10"), d("200"), at, d("210"), d("180"), d("100"))
	if err == nil {
		t.Fatalf("expected rejection of short entry")
	}
}

func TestAdmissionChecks(t *testing.T) {
	l := newTestLedger(func(cfg *model.BacktestConfig) {
		cfg.MaxPositions = 2
		cfg.MaxPortfolioRisk = d("0.05") // cap 5000
	})

	mustOpen := func(symbol string) {
		t.Helper()
		if _, err := l.OpenPosition(symbol, model.SideLong, d("10"), d("100"), at, d("98"), decimal.Zero, d("2000")); err != nil {
			t.Fatalf("open %s: %v", symbol, err)
		}
	}

	mustOpen("AAPL")

	if err := l.CanOpenPosition("AAPL", d("100")); !errors.Is(err, ErrSymbolHeld) {
		t.Fatalf("expected ErrSymbolHeld, got %v", err)
	}
	if err := l.CanOpenPosition("MSFT", d("4000")); !errors.Is(err, ErrRiskBudget) {
		t.Fatalf("expected ErrRiskBudget, got %v", err)
	}

	mustOpen("MSFT")

	if err := l.CanOpenPosition("NVDA", d("100")); !errors.Is(err, ErrMaxPositions) {
		t.Fatalf("expected ErrMaxPositions, got %v", err)
	}

	if !IsAdmissionError(ErrRiskBudget) || IsAdmissionError(ErrNoPosition) {
		t.Fatalf("IsAdmissionError misclassifies")
	}
}

func TestClosePositionRoundTrip(t *testing.T) {
	l := newTestLedger(nil)

	if _, err := l.OpenPosition("AAPL", model.SideLong, d("100"), d("100"), at, d("98"), decimal.Zero, d("200")); err != nil {
		t.Fatalf("open: %v", err)
	}

	trade, err := l.ClosePosition("AAPL", d("110"), at.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if !trade.NetProfit.Equal(d("1000")) {
		t.Fatalf("expected net 1000, got %s", trade.NetProfit.String())
	}
	if !l.Cash().Equal(d("101000")) {
		t.Fatalf("expected cash 101000, got %s", l.Cash().String())
	}
	if l.OpenPositionCount() != 0 {
		t.Fatalf("position not removed")
	}
	if !l.PortfolioRisk().IsZero() {
		t.Fatalf("risk not released, got %s", l.PortfolioRisk().String())
	}
	if len(l.ClosedTrades()) != 1 {
		t.Fatalf("trade not recorded")
	}
}

func TestCloseUnknownSymbol(t *testing.T) {
	l := newTestLedger(nil)

	if _, err := l.ClosePosition("GOOG", d("100"), at); !errors.Is(err, ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}
}

func TestTotalEquityIdentity(t *testing.T) {
	l := newTestLedger(nil)

	if _, err := l.OpenPosition("AAPL", model.SideLong, d("100"), d("100"), at, d("98"), decimal.Zero, d("200")); err != nil {
		t.Fatalf("open long: %v", err)
	}
	if _, err := l.OpenPosition("TSLA", model.SideShort, d("10"), d("200"), at, d("210"), decimal.Zero, d("100")); err != nil {
		t.Fatalf("open short: %v", err)
	}

	prices := map[string]decimal.Decimal{
		"AAPL": d("105"),
		"TSLA": d("190"),
	}

	// equity = cash + sum(direction * qty * mark)
	want := l.Cash().Add(d("105").Mul(d("100"))).Add(d("190").Mul(d("10")).Neg())
	got := l.TotalEquity(prices)
	if !got.Equal(want) {
		t.Fatalf("equity identity broken: want %s, got %s", want.String(), got.String())
	}
}

func TestUpdatePositionsTracksExcursions(t *testing.T) {
	l := newTestLedger(nil)

	if _, err := l.OpenPosition("AAPL", model.SideLong, d("100"), d("100"), at, d("98"), decimal.Zero, d("200")); err != nil {
		t.Fatalf("open: %v", err)
	}

	cashBefore := l.Cash()
	l.UpdatePositions(map[string]decimal.Decimal{"AAPL": d("110")})
	l.UpdatePositions(map[string]decimal.Decimal{"AAPL": d("95")})

	pos, _ := l.Position("AAPL")
	if !pos.MaxFavorable.Equal(d("1000")) {
		t.Fatalf("expected max favorable 1000, got %s", pos.MaxFavorable.String())
	}
	if !pos.MaxAdverse.Equal(d("-500")) {
		t.Fatalf("expected max adverse -500, got %s", pos.MaxAdverse.String())
	}
	if !l.Cash().Equal(cashBefore) {
		t.Fatalf("mark-to-market must not move cash")
	}
}
