package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfoliosim/src/database"
	"portfoliosim/src/model"
)

// BarRepository handles read/write operations for daily OHLCV bars.
type BarRepository struct {
	db *gorm.DB
}

// NewBarRepository creates a new repository instance using the main read/write database.
func NewBarRepository() *BarRepository {
	logger.WithField("component", "BarRepository").
		Info("Creating new BarRepository with MainDB")

	return &BarRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *BarRepository) WithDB(db *gorm.DB) *BarRepository {
	logger.WithField("component", "BarRepository").
		Debug("Creating BarRepository with custom DB instance")

	return &BarRepository{db: db}
}

// UpsertBars inserts the given bars, replacing any existing row for the
// same symbol and timestamp. Ingestion re-runs are therefore idempotent.
func (r *BarRepository) UpsertBars(
	ctx context.Context,
	bars []model.Bar,
) error {

	if len(bars) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"repo": "BarRepository",
		"op":   "UpsertBars",
		"rows": len(bars),
	}).Debug("Upserting bars")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "timestamp"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open", "high", "low", "close", "volume",
			}),
		}).
		CreateInBatches(bars, 500).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "BarRepository",
			"op":   "UpsertBars",
		}).WithError(err).Error("Failed to upsert bars")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "BarRepository",
		"op":   "UpsertBars",
		"rows": len(bars),
	}).Info("Bars upserted successfully")

	return nil
}

// FetchBars returns the bars of a symbol inside [from, to] in ascending
// chronological order.
func (r *BarRepository) FetchBars(
	ctx context.Context,
	symbol string,
	from time.Time,
	to time.Time,
) ([]model.Bar, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "BarRepository",
		"op":     "FetchBars",
		"symbol": symbol,
		"from":   from,
		"to":     to,
	}).Debug("Fetching bars for symbol")

	var bars []model.Bar

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp <= ?", symbol, from, to).
		Order("timestamp ASC").
		Find(&bars).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "BarRepository",
			"op":     "FetchBars",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch bars")

		return nil, err
	}

	return bars, nil
}

// FetchRecentBars returns up to limit of the most recent bars of a
// symbol at or before the given time, in ascending chronological order.
func (r *BarRepository) FetchRecentBars(
	ctx context.Context,
	symbol string,
	to time.Time,
	limit int,
) ([]model.Bar, error) {

	if limit <= 0 {
		limit = 200
	}

	var rows []model.Bar
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timestamp <= ?", symbol, to).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// reverse to ascending chronological order for easier logic
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// FetchSeries loads the bar series of every requested symbol inside
// [from, to], keyed by symbol. Symbols without rows map to an empty slice.
func (r *BarRepository) FetchSeries(
	ctx context.Context,
	symbols []string,
	from time.Time,
	to time.Time,
) (map[string][]model.Bar, error) {

	series := make(map[string][]model.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := r.FetchBars(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		series[symbol] = bars
	}
	return series, nil
}
