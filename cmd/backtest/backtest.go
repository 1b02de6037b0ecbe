package backtest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"portfoliosim/src/connectors"
	"portfoliosim/src/engine"
	"portfoliosim/src/indicators"
	"portfoliosim/src/metrics"
	"portfoliosim/src/model"
	"portfoliosim/src/ranker"
	"portfoliosim/src/repository"
	"portfoliosim/src/strategy"
)

// Backtest loads bars from the database, replays them through the
// portfolio engine and persists the run with its trades and equity
// curve.
type Backtest struct {
	Log    *logger.Entry
	DB     *gorm.DB
	Config *Config
}

func (b *Backtest) Start() error {
	if b.Config == nil {
		b.Config = GetConfig()
	}

	ctx := context.Background()
	symbols := b.symbols()
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	cfg, err := b.buildBacktestConfig()
	if err != nil {
		return err
	}

	strat, err := b.buildStrategy()
	if err != nil {
		return err
	}

	barRepo := (&repository.BarRepository{}).WithDB(b.DB)
	series, err := barRepo.FetchSeries(ctx, symbols, b.Config.StartDt, b.Config.EndDt)
	if err != nil {
		return err
	}

	rankerConfig := ranker.DefaultConfig()
	if b.Config.UseSectorAPI {
		client := connectors.NewSectorClient(connectors.GetConfig())
		sectors, err := client.FetchSectorMap(ctx, symbols)
		if err != nil {
			return err
		}
		rankerConfig.SectorOf = sectors
	}

	eng := engine.NewPortfolio(
		cfg,
		strat,
		indicators.NewDefault(indicators.DefaultConfig()),
		ranker.New(rankerConfig),
	)
	eng.SetWorkers(b.Config.Workers)

	b.Log.WithFields(logger.Fields{
		"strategy": b.Config.Strategy,
		"symbols":  symbols,
		"from":     b.Config.StartDt,
		"to":       b.Config.EndDt,
	}).Info("Starting backtest")

	result, err := eng.Run(series)
	if err != nil {
		return err
	}

	report := metrics.Compute(result.Trades, result.EquityCurve)

	run := &model.BacktestRun{
		ID:             uuid.NewString(),
		Strategy:       b.Config.Strategy,
		Symbols:        strings.Join(symbols, ","),
		StartTime:      b.Config.StartDt,
		EndTime:        b.Config.EndDt,
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    finalEquity(result, cfg.InitialCapital),
		FinalCash:      result.FinalCash,
		TotalTrades:    len(result.Trades),
		OpenPositions:  len(result.FinalPositions),
	}

	runRepo := (&repository.RunRepository{}).WithDB(b.DB)
	if err := runRepo.SaveRun(ctx, run, result.Trades, result.EquityCurve); err != nil {
		return err
	}

	b.Log.WithFields(logger.Fields{
		"run_id":        run.ID,
		"total_trades":  report.TotalTrades,
		"win_rate":      report.WinRate,
		"total_return":  report.TotalReturn,
		"max_drawdown":  report.MaxDrawdown,
		"sharpe_ratio":  report.SharpeRatio,
		"net_profit":    report.TotalNetProfit,
		"final_equity":  run.FinalEquity,
		"profit_factor": report.ProfitFactor,
	}).Info("Backtest completed")

	return nil
}

func (b *Backtest) symbols() []string {
	raw := strings.Split(b.Config.Symbols, ",")
	symbols := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// buildBacktestConfig layers the env overrides over the defaults.
func (b *Backtest) buildBacktestConfig() (model.BacktestConfig, error) {
	cfg := model.DefaultBacktestConfig()

	capital, err := decimal.NewFromString(b.Config.InitialCapital)
	if err != nil {
		return cfg, fmt.Errorf("invalid INITIAL_CAPITAL %q: %w", b.Config.InitialCapital, err)
	}
	cfg.InitialCapital = capital

	risk, err := decimal.NewFromString(b.Config.RiskPerTrade)
	if err != nil {
		return cfg, fmt.Errorf("invalid RISK_PER_TRADE %q: %w", b.Config.RiskPerTrade, err)
	}
	cfg.RiskPerTrade = risk

	cfg.MaxPositions = b.Config.MaxPositions
	cfg.AllowShort = b.Config.AllowShort

	return cfg, nil
}

func (b *Backtest) buildStrategy() (strategy.Strategy, error) {
	switch b.Config.Strategy {
	case "momentum":
		return strategy.NewMomentum(strategy.DefaultMomentumConfig()), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", b.Config.Strategy)
	}
}

func finalEquity(result *engine.Result, initial decimal.Decimal) decimal.Decimal {
	if len(result.EquityCurve) == 0 {
		return initial
	}
	return result.EquityCurve[len(result.EquityCurve)-1].Equity
}
