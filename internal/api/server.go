// Package api exposes a small read-only HTTP API over the store for the
// customer web cabinet.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/usmnv/gdbot/internal/database"
)

// Server serves the read-only API. All endpoints are unauthenticated and
// never mutate the store.
type Server struct {
	store  database.Store
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(addr string, store database.Store, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/user/{telegramID}", s.handleGetUser)
		r.Get("/orders/{telegramID}", s.handleGetOrders)
		r.Get("/exchange_rates", s.handleGetRates)
		r.Get("/track/{trackCode}", s.handleTrack)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API shutdown failed", "error", err)
		return err
	}
	s.logger.Info("API stopped.")
	return <-errCh
}
