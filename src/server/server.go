package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"portfoliosim/src/auth"
	"portfoliosim/src/handler"
	"portfoliosim/src/repository"
	"portfoliosim/src/security"
)

// NewRouter builds the results API. Everything except the healthcheck
// sits behind the admin token guard.
func NewRouter() chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	repo := repository.NewRunRepository()
	securityConfig := security.GetConfig()

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminOnly(securityConfig.AdminTokenHash))

		r.Get("/runs", handler.ListRunsHandler(repo))
		r.Get("/runs/{runID}", handler.GetRunHandler(repo))
		r.Get("/runs/{runID}/trades", handler.RunTradesHandler(repo))
		r.Get("/runs/{runID}/equity", handler.RunEquityHandler(repo))
		r.Get("/runs/{runID}/equity/ws", handler.EquityStreamHandler(repo))
		r.Get("/runs/{runID}/metrics", handler.RunMetricsHandler(repo))
		r.Delete("/runs/{runID}", handler.DeleteRunHandler(repo))
	})

	return r
}

func StartServer(port string) {
	r := NewRouter()

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
