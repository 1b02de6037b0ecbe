package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"portfoliosim/src/model"
)

type mockRunRepo struct {
	runs      []model.BacktestRun
	run       *model.BacktestRun
	trades    []model.Trade
	snapshots []model.PortfolioSnapshot
	err       error

	deleted     []string
	calledCount int
}

func (m *mockRunRepo) FindLatest(ctx context.Context, limit int) ([]model.BacktestRun, error) {
	m.calledCount++
	return m.runs, m.err
}

func (m *mockRunRepo) FindByID(ctx context.Context, id string) (*model.BacktestRun, error) {
	m.calledCount++
	return m.run, m.err
}

func (m *mockRunRepo) FindTradesByRunID(ctx context.Context, runID string) ([]model.Trade, error) {
	m.calledCount++
	return m.trades, m.err
}

func (m *mockRunRepo) FindSnapshotsByRunID(ctx context.Context, runID string) ([]model.PortfolioSnapshot, error) {
	m.calledCount++
	return m.snapshots, m.err
}

func (m *mockRunRepo) DeleteRun(ctx context.Context, runID string) error {
	m.deleted = append(m.deleted, runID)
	return m.err
}

func withRunID(req *http.Request, runID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runID", runID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListRunsHandler_Success(t *testing.T) {
	mockRepo := &mockRunRepo{runs: []model.BacktestRun{{ID: "run-1", Strategy: "momentum"}}}
	handler := ListRunsHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var runs []model.BacktestRun
	if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("unexpected runs payload: %+v", runs)
	}
}

func TestListRunsHandler_InvalidLimit(t *testing.T) {
	handler := ListRunsHandler(&mockRunRepo{})

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=abc", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListRunsHandler_RepoError(t *testing.T) {
	mockRepo := &mockRunRepo{err: assert.AnError}
	handler := ListRunsHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
}

func TestGetRunHandler_NotFound(t *testing.T) {
	handler := GetRunHandler(&mockRunRepo{})

	req := withRunID(httptest.NewRequest(http.MethodGet, "/runs/missing", nil), "missing")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestGetRunHandler_Success(t *testing.T) {
	mockRepo := &mockRunRepo{run: &model.BacktestRun{ID: "run-1", Strategy: "momentum"}}
	handler := GetRunHandler(mockRepo)

	req := withRunID(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil), "run-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "momentum") {
		t.Fatalf("expected run payload, got %s", rr.Body.String())
	}
}

func TestRunMetricsHandler_Success(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mockRepo := &mockRunRepo{
		run: &model.BacktestRun{ID: "run-1"},
		trades: []model.Trade{
			{Symbol: "AAA", NetProfit: decimal.RequireFromString("100")},
			{Symbol: "BBB", NetProfit: decimal.RequireFromString("-40")},
		},
		snapshots: []model.PortfolioSnapshot{
			{Timestamp: day, Equity: decimal.RequireFromString("100000")},
			{Timestamp: day.Add(24 * time.Hour), Equity: decimal.RequireFromString("100060")},
		},
	}
	handler := RunMetricsHandler(mockRepo)

	req := withRunID(httptest.NewRequest(http.MethodGet, "/runs/run-1/metrics", nil), "run-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var report map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report["total_trades"] != float64(2) {
		t.Fatalf("expected 2 total trades, got %v", report["total_trades"])
	}
}

func TestDeleteRunHandler_Success(t *testing.T) {
	mockRepo := &mockRunRepo{run: &model.BacktestRun{ID: "run-1"}}
	handler := DeleteRunHandler(mockRepo)

	req := withRunID(httptest.NewRequest(http.MethodDelete, "/runs/run-1", nil), "run-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if len(mockRepo.deleted) != 1 || mockRepo.deleted[0] != "run-1" {
		t.Fatalf("expected run-1 to be deleted, got %v", mockRepo.deleted)
	}
}

func TestDeleteRunHandler_NotFound(t *testing.T) {
	mockRepo := &mockRunRepo{}
	handler := DeleteRunHandler(mockRepo)

	req := withRunID(httptest.NewRequest(http.MethodDelete, "/runs/missing", nil), "missing")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if len(mockRepo.deleted) != 0 {
		t.Fatalf("expected no deletion, got %v", mockRepo.deleted)
	}
}

func TestEquityStreamHandler_StreamsSnapshots(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mockRepo := &mockRunRepo{
		snapshots: []model.PortfolioSnapshot{
			{Timestamp: day, Equity: decimal.RequireFromString("100000"), Cash: decimal.RequireFromString("100000")},
			{Timestamp: day.Add(24 * time.Hour), Equity: decimal.RequireFromString("100500"), Cash: decimal.RequireFromString("99000")},
		},
	}

	router := chi.NewRouter()
	router.Get("/runs/{runID}/equity/ws", EquityStreamHandler(mockRepo))
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/runs/run-1/equity/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	var received []model.PortfolioSnapshot
	for {
		var snapshot model.PortfolioSnapshot
		if err := conn.ReadJSON(&snapshot); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("unexpected websocket read error: %v", err)
		}
		received = append(received, snapshot)
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(received))
	}
	if !received[1].Equity.Equal(decimal.RequireFromString("100500")) {
		t.Fatalf("expected second equity 100500, got %s", received[1].Equity)
	}
}
