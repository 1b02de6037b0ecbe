package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"portfoliosim/src/database"
	"portfoliosim/src/model"
)

// RunRepository handles read/write operations for backtest runs and
// their associated trades and equity snapshots.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new repository instance using the main read/write database.
func NewRunRepository() *RunRepository {
	logger.WithField("component", "RunRepository").
		Info("Creating new RunRepository with MainDB")

	return &RunRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RunRepository) WithDB(db *gorm.DB) *RunRepository {
	logger.WithField("component", "RunRepository").
		Debug("Creating RunRepository with custom DB instance")

	return &RunRepository{db: db}
}

// SaveRun persists a completed run together with its trades and
// snapshots in a single transaction. The run ID is stamped onto every
// child row before the insert.
func (r *RunRepository) SaveRun(
	ctx context.Context,
	run *model.BacktestRun,
	trades []model.Trade,
	snapshots []model.PortfolioSnapshot,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "RunRepository",
		"op":        "SaveRun",
		"run_id":    run.ID,
		"trades":    len(trades),
		"snapshots": len(snapshots),
	}).Info("Persisting backtest run")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			logger.WithError(err).Error("Failed to create run inside transaction")
			return err
		}

		for i := range trades {
			trades[i].RunID = run.ID
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 200).Error; err != nil {
				logger.WithError(err).Error("Failed to create trades inside transaction")
				return err
			}
		}

		for i := range snapshots {
			snapshots[i].RunID = run.ID
		}
		if len(snapshots) > 0 {
			if err := tx.CreateInBatches(snapshots, 500).Error; err != nil {
				logger.WithError(err).Error("Failed to create snapshots inside transaction")
				return err
			}
		}

		return nil
	})
}

// FindByID fetches a single run by its UUID.
// Returns (nil, nil) if the run is not found.
func (r *RunRepository) FindByID(
	ctx context.Context,
	id string,
) (*model.BacktestRun, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "FindByID",
		"run_id": id,
	}).Debug("Fetching run by ID")

	var run model.BacktestRun

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":   "RunRepository",
				"op":     "FindByID",
				"run_id": id,
			}).Info("Run not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "FindByID",
			"run_id": id,
		}).WithError(err).Error("Failed to fetch run by ID")

		return nil, err
	}

	return &run, nil
}

// FindLatest returns the latest runs ordered from newest to oldest.
func (r *RunRepository) FindLatest(
	ctx context.Context,
	limit int,
) ([]model.BacktestRun, error) {

	if limit <= 0 {
		limit = 20
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "RunRepository",
		"op":    "FindLatest",
		"limit": limit,
	}).Debug("Fetching latest runs")

	var runs []model.BacktestRun

	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "RunRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch latest runs")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "RunRepository",
		"op":          "FindLatest",
		"limit":       limit,
		"rows_return": len(runs),
	}).Info("Latest runs fetched")

	return runs, nil
}

// FindTradesByRunID returns all trades of a run in exit order.
func (r *RunRepository) FindTradesByRunID(
	ctx context.Context,
	runID string,
) ([]model.Trade, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "FindTradesByRunID",
		"run_id": runID,
	}).Debug("Fetching trades for run")

	var trades []model.Trade

	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("exit_time ASC, id ASC").
		Find(&trades).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "FindTradesByRunID",
			"run_id": runID,
		}).WithError(err).Error("Failed to fetch trades for run")

		return nil, err
	}

	return trades, nil
}

// FindSnapshotsByRunID returns the equity curve of a run in chronological order.
func (r *RunRepository) FindSnapshotsByRunID(
	ctx context.Context,
	runID string,
) ([]model.PortfolioSnapshot, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "FindSnapshotsByRunID",
		"run_id": runID,
	}).Debug("Fetching snapshots for run")

	var snapshots []model.PortfolioSnapshot

	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("timestamp ASC, id ASC").
		Find(&snapshots).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RunRepository",
			"op":     "FindSnapshotsByRunID",
			"run_id": runID,
		}).WithError(err).Error("Failed to fetch snapshots for run")

		return nil, err
	}

	return snapshots, nil
}

// DeleteRun removes a run together with its trades and snapshots.
func (r *RunRepository) DeleteRun(
	ctx context.Context,
	runID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "RunRepository",
		"op":     "DeleteRun",
		"run_id": runID,
	}).Info("Deleting backtest run")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).
			Delete(&model.Trade{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete trades inside transaction")
			return err
		}

		if err := tx.Where("run_id = ?", runID).
			Delete(&model.PortfolioSnapshot{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete snapshots inside transaction")
			return err
		}

		if err := tx.Where("id = ?", runID).
			Delete(&model.BacktestRun{}).Error; err != nil {
			logger.WithError(err).Error("Failed to delete run inside transaction")
			return err
		}

		return nil
	})
}
