package ohlcv

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"

	"portfoliosim/src/model"
	"portfoliosim/src/repository"
)

// OHLCVDaily pulls daily candles from Binance and upserts them into
// the bars table so backtests replay from local data.
type OHLCVDaily struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (o *OHLCVDaily) Start() error {
	o.Config = GetConfig()

	o.exchange = o.newBinanceInstance()

	repo := (&repository.BarRepository{}).WithDB(o.DB)

	for _, symbol := range o.symbols() {
		if o.Config.AutoMode {
			if err := o.determineStartPoint(symbol); err != nil {
				return err
			}
		}

		bars, err := o.fetchDailyBars(symbol)
		if err != nil {
			o.Log.WithError(err).WithField("symbol", symbol).Error("Failed to fetch daily bars")
			return err
		}

		if err := repo.UpsertBars(context.Background(), bars); err != nil {
			o.Log.WithError(err).WithField("symbol", symbol).Error("Failed to upsert daily bars")
			return err
		}

		o.Log.WithFields(logger.Fields{
			"symbol": symbol,
			"rows":   len(bars),
		}).Info("Daily OHLCV ingested")
	}

	return nil
}

func (o *OHLCVDaily) symbols() []string {
	raw := strings.Split(o.Config.Symbols, ",")
	symbols := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func (*OHLCVDaily) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (o *OHLCVDaily) fetchDailyBars(symbol string) ([]model.Bar, error) {
	klines, err := o.fetchKlines(symbol)
	if err != nil {
		return nil, err
	}

	pair := symbol + "_" + o.Config.Quote
	bars := make([]model.Bar, 0, len(klines))
	for i := range klines {
		k := klines[i]
		bars = append(bars, model.Bar{
			Symbol:    pair,
			Timestamp: time.Unix(k.Timestamp, 0).UTC(),
			Open:      decimal.NewFromFloat(k.Open),
			High:      decimal.NewFromFloat(k.High),
			Low:       decimal.NewFromFloat(k.Low),
			Close:     decimal.NewFromFloat(k.Close),
			Volume:    decimal.NewFromFloat(k.Vol),
		})
	}
	return bars, nil
}

func (o *OHLCVDaily) fetchKlines(symbol string) ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: symbol}, goex.Currency{Symbol: o.Config.Quote})

	const millis = 1000
	klines, err := o.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1DAY,
		o.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", o.Config.StartDt.Unix()*millis).
			Optional("endTime", o.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

// determineStartPoint resumes ingestion from the last stored bar of a
// symbol instead of the configured start date.
func (o *OHLCVDaily) determineStartPoint(symbol string) error {
	o.Config.StartDt = o.Config.StartDt.Add(-24 * time.Hour)
	o.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := o.DB.Model(&model.Bar{}).
		Select("MAX(timestamp)").
		Where("symbol = ?", symbol+"_"+o.Config.Quote).
		Take(&latestTime)

	o.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			o.Log.
				WithError(result.Error).
				WithField("StartDt", o.Config.StartDt.String()).
				WithField("EndDt", o.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			o.Log.
				WithError(result.Error).
				Error("Failed to query latest timestamp")
			return result.Error
		}
	}

	if latestTime.Valid {
		// Re-fetch the last stored day too, in case it was partial.
		o.Config.StartDt = latestTime.Time.Add(-24 * time.Hour)
		o.Log.
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		err := errors.New("no existing MAX(timestamp) found")
		o.Log.
			WithError(err).
			WithField("StartDt", o.Config.StartDt.String()).
			WithField("EndDt", o.Config.EndDt.String()).
			Error("determineStartPoint invalid date found")
	}

	return nil
}
