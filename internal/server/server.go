// Package server wires the HTTP router and owns the listener lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palletline-systems/palletline-stack/internal/config"
	"github.com/palletline-systems/palletline-stack/internal/handlers"
	"github.com/palletline-systems/palletline-stack/internal/logging"
	"github.com/palletline-systems/palletline-stack/internal/middleware"
)

// Server is the HTTP front end.
type Server struct {
	http *http.Server
	log  *logging.Logger
}

// New builds the router and the server around it.
func New(cfg config.ServerConfig, h *handlers.Handler, log *logging.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/receipts", h.CreateReceipt)
	mux.HandleFunc("POST /api/v1/orders", h.CreateOrder)
	mux.HandleFunc("POST /api/v1/movements", h.CreateMovement)

	mux.HandleFunc("GET /api/v1/stock-levels", h.ListStockLevels)
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/events/{id}/chain", h.GetEventChain)

	mux.HandleFunc("GET /api/v1/outbox/stats", h.OutboxStats)
	mux.HandleFunc("POST /api/v1/outbox/{id}/requeue", h.RequeueOutboxEntry)

	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      middleware.Correlation(mux),
			ReadTimeout:  cfg.ReadTimeout(),
			WriteTimeout: cfg.WriteTimeout(),
			IdleTimeout:  cfg.IdleTimeout(),
		},
		log: log.With(logging.Component("http-server")),
	}
}

// Handler exposes the configured root handler. Test hook.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
