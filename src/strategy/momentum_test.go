package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfoliosim/src/indicators"
	"portfoliosim/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bar(dt time.Time, o, h, l, cl string) model.Bar {
	return model.Bar{
		Symbol:    "AAPL",
		Timestamp: dt,
		Open:      d(o),
		High:      d(h),
		Low:       d(l),
		Close:     d(cl),
		Volume:    d("1000"),
	}
}

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func bullishContext() Context {
	return Context{
		Symbol: "AAPL",
		Bar:    bar(t0, "99", "101", "98.5", "100"),
		Cash:   d("100000"),
		Equity: d("100000"),
		Indicators: map[string]float64{
			indicators.KeySMAFast:    100.5,
			indicators.KeySMASlow:    99.0,
			indicators.KeyRSI:        58,
			indicators.KeyATR:        1.5,
			indicators.KeyVolatility: 0.01,
			indicators.KeyTrendScore: 1.0,
			indicators.KeyConfluence: 4,
		},
	}
}

func TestMomentumEmitsEntryWithLevels(t *testing.T) {
	m := NewMomentum(DefaultMomentumConfig())
	m.Prepare(nil)

	signals := m.OnBar(bullishContext())
	if len(signals) != 1 {
		t.Fatalf("expected one entry signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.Type != model.SignalEnterLong {
		t.Fatalf("expected enter_long, got %s", sig.Type)
	}

	stop, ok := sig.StopLoss()
	if !ok || !stop.Equal(d("97")) { // 100 - 2*1.5
		t.Fatalf("expected stop 97, got %s (ok=%v)", stop.String(), ok)
	}
	target, ok := sig.Target()
	if !ok || !target.Equal(d("106")) { // 100 + 4*1.5
		t.Fatalf("expected target 106, got %s (ok=%v)", target.String(), ok)
	}
	if sig.Confidence() != 1.0 {
		t.Fatalf("expected confidence 1.0, got %f", sig.Confidence())
	}
}

func TestMomentumStaysOutOfBearishMarket(t *testing.T) {
	m := NewMomentum(DefaultMomentumConfig())

	ctx := bullishContext()
	ctx.Indicators[indicators.KeySMAFast] = 98.0 // fast below slow

	if signals := m.OnBar(ctx); len(signals) != 0 {
		t.Fatalf("expected no signals in a downtrend, got %d", len(signals))
	}
}

func TestMomentumSkipsBearishCandle(t *testing.T) {
	m := NewMomentum(DefaultMomentumConfig())

	ctx := bullishContext()
	ctx.Bar = bar(t0, "101", "101.5", "98.5", "99") // close below open

	if signals := m.OnBar(ctx); len(signals) != 0 {
		t.Fatalf("expected no entry off a bearish candle, got %d", len(signals))
	}
}

func TestMomentumSkipsOverboughtRSI(t *testing.T) {
	m := NewMomentum(DefaultMomentumConfig())

	ctx := bullishContext()
	ctx.Indicators[indicators.KeyRSI] = 82

	if signals := m.OnBar(ctx); len(signals) != 0 {
		t.Fatalf("expected no entry when overbought")
	}
}

func TestMomentumExitsWhenCloseBreaksTrail(t *testing.T) {
	m := NewMomentum(DefaultMomentumConfig())
	m.Prepare(nil)

	pos := &model.Position{
		Symbol:     "AAPL",
		Side:       model.SideLong,
		Quantity:   d("100"),
		EntryPrice: d("100"),
		StopLoss:   d("97"),
	}

	ctx := Context{
		Symbol:   "AAPL",
		Bar:      bar(t0.AddDate(0, 0, 5), "96", "96.5", "95", "95.5"),
		Position: pos,
		History: []model.Bar{
			bar(t0.AddDate(0, 0, 3), "99", "100", "98", "99.5"),
			bar(t0.AddDate(0, 0, 4), "99.5", "100", "96", "97"), // bearish
			bar(t0.AddDate(0, 0, 5), "96", "96.5", "95", "95.5"),
		},
	}

	signals := m.OnBar(ctx)
	if len(signals) != 1 || signals[0].Type != model.SignalExitLong {
		t.Fatalf("expected exit_long below the trail, got %+v", signals)
	}
}

func TestNextTrailStopOnlyRises(t *testing.T) {
	history := []model.Bar{
		bar(t0, "100", "101", "99", "100.5"),
		bar(t0.AddDate(0, 0, 1), "100.5", "102", "100", "101.5"), // bullish prev
		bar(t0.AddDate(0, 0, 2), "101.5", "103", "101", "102.5"),
	}

	// candidate avg low = (99+100+101)/3 = 100, clamped at prev.Low 100
	next, moved := nextTrailStop(d("95"), history, 3)
	if !moved || !next.Equal(d("100")) {
		t.Fatalf("expected trail raised to 100, got %s (moved=%v)", next.String(), moved)
	}

	// a stop already above the candidate never falls back
	same, moved := nextTrailStop(d("101"), history, 3)
	if moved || !same.Equal(d("101")) {
		t.Fatalf("trail must only rise, got %s (moved=%v)", same.String(), moved)
	}
}
