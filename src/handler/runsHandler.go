package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/metrics"
	"portfoliosim/src/model"
)

type runReader interface {
	FindLatest(ctx context.Context, limit int) ([]model.BacktestRun, error)
	FindByID(ctx context.Context, id string) (*model.BacktestRun, error)
	FindTradesByRunID(ctx context.Context, runID string) ([]model.Trade, error)
	FindSnapshotsByRunID(ctx context.Context, runID string) ([]model.PortfolioSnapshot, error)
}

type runDeleter interface {
	FindByID(ctx context.Context, id string) (*model.BacktestRun, error)
	DeleteRun(ctx context.Context, runID string) error
}

// ListRunsHandler returns a handler that lists the latest backtest runs.
func ListRunsHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		runs, err := repo.FindLatest(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list runs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, runs)
	}
}

// GetRunHandler returns a single run by its UUID.
func GetRunHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		run, err := repo.FindByID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		writeJSON(w, run)
	}
}

// RunTradesHandler lists the trades of a run in exit order.
func RunTradesHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		trades, err := repo.FindTradesByRunID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, trades)
	}
}

// RunEquityHandler returns the equity curve of a run.
func RunEquityHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		snapshots, err := repo.FindSnapshotsByRunID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run snapshots")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, snapshots)
	}
}

// RunMetricsHandler recomputes the performance report of a run from its
// persisted trades and equity curve.
func RunMetricsHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		run, err := repo.FindByID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		trades, err := repo.FindTradesByRunID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		snapshots, err := repo.FindSnapshotsByRunID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run snapshots")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, metrics.Compute(trades, snapshots))
	}
}

// DeleteRunHandler removes a run together with its trades and snapshots.
func DeleteRunHandler(repo runDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		run, err := repo.FindByID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if run == nil {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}

		if err := repo.DeleteRun(r.Context(), runID); err != nil {
			logger.WithError(err).Error("failed to delete run")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
