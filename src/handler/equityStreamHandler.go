package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard clients connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// EquityStreamHandler streams the equity curve of a run over a
// websocket, one snapshot per frame, then closes the connection. This
// lets dashboards replay a backtest without loading the whole curve
// in a single response.
func EquityStreamHandler(repo runReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		snapshots, err := repo.FindSnapshotsByRunID(r.Context(), runID)
		if err != nil {
			logger.WithError(err).Error("failed to fetch run snapshots for stream")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Error("websocket upgrade failed")
			return
		}
		defer conn.Close()

		for _, snapshot := range snapshots {
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				logger.WithError(err).Warn("failed to set websocket write deadline")
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				logger.WithFields(map[string]interface{}{
					"run_id": runID,
				}).WithError(err).Warn("websocket write failed, closing stream")
				return
			}
		}

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of curve")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout)); err != nil {
			logger.WithError(err).Debug("failed to send websocket close message")
		}
	}
}
