package ohlcv

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDBMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func setupMockBinanceServer() *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`[
			[1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815", 1499644799999, "2434.19055334", 308, "1756.87402397", "28.46694368", "17928899.62484339"]
		]`))
		if err != nil {
			return
		}
	})
	return httptest.NewServer(handler)
}

func TestOHLCVDaily_fetchDailyBars(t *testing.T) {
	server := setupMockBinanceServer()
	defer server.Close()

	// Redirect API calls to the mock server
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   server.URL,
	}

	db, _ := setupDBMock(t)
	ingest := OHLCVDaily{
		DB: db,
		Config: &Config{
			Symbols: "BTC",
			Quote:   "USDT",
			StartDt: time.Now().Add(-72 * time.Hour),
			EndDt:   time.Now(),
			Limit:   1000,
		},
		exchange: binance.NewWithConfig(apiConfig),
	}

	bars, err := ingest.fetchDailyBars("BTC")
	require.NoError(t, err)
	require.Len(t, bars, 1, "Should fetch exactly one daily bar")
	require.Equal(t, "BTC_USDT", bars[0].Symbol)
	require.True(t, bars[0].Open.Equal(decimal.NewFromFloat(0.01634790)), "Open price should match")
}

// Test determineStartPoint for valid start point retrieval.
func TestOHLCVDaily_determineStartPoint(t *testing.T) {
	db, mock := setupDBMock(t)

	latest := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	config := &Config{
		Symbols: "BTC",
		Quote:   "USDT",
		StartDt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDt:   time.Now(),
	}

	ingest := OHLCVDaily{
		Log:    logrus.NewEntry(logrus.New()),
		DB:     db,
		Config: config,
	}
	ingest.exchange = ingest.newBinanceInstance()

	mock.ExpectQuery(`SELECT MAX\(timestamp\)`).WillReturnRows(sqlmock.NewRows([]string{"MAX(timestamp)"}).
		AddRow(sql.NullTime{Time: latest, Valid: true}))

	err := ingest.determineStartPoint("BTC")
	require.NoError(t, err, "Expected determineStartPoint to complete without error")
	require.Equal(t, latest.Add(-24*time.Hour), config.StartDt, "Start date should resume from the last stored bar")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOHLCVDaily_symbols(t *testing.T) {
	ingest := OHLCVDaily{Config: &Config{Symbols: " BTC, ETH ,,SOL"}}
	require.Equal(t, []string{"BTC", "ETH", "SOL"}, ingest.symbols())
}
