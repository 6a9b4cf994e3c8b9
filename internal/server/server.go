// Package server exposes the websocket alert feed and the inventory
// mutation API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"stockpilot/internal/alert"
	apperrors "stockpilot/internal/errors"
	"stockpilot/internal/models"
	"stockpilot/internal/store"
	"stockpilot/internal/stream"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8385",
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server wires the store, the alert emitter, and the broadcast hub behind an
// HTTP surface. It owns the http.Server lifecycle; the hub and store are
// owned by the composition root.
type Server struct {
	config  Config
	hub     *stream.Hub
	emitter *alert.Emitter
	store   store.DataStore
	logger  zerolog.Logger
	http    *http.Server
}

// New creates a server.
func New(config Config, hub *stream.Hub, emitter *alert.Emitter, dataStore store.DataStore, logger zerolog.Logger) *Server {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultConfig().PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Server{
		config:  config,
		hub:     hub,
		emitter: emitter,
		store:   dataStore,
		logger:  logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws/alerts", s.handleAlertFeed)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.Post("/", s.handleCreateProduct)
		r.Post("/{id}/adjust", s.handleAdjustQuantity)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled, then drains it.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("Server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.SubscriberCount(),
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context(), store.ProductFilter{})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product payload"})
		return
	}
	if p.Name == "" || p.SKU == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and sku are required"})
		return
	}
	if p.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be non-negative"})
		return
	}

	if err := s.store.SaveProduct(r.Context(), &p); err != nil {
		s.writeError(w, err)
		return
	}

	// Creation with initial stock is an inventory mutation like any other.
	// An item created empty was never stocked, so no alert fires for it.
	if p.Quantity != 0 {
		s.emitter.EvaluateAndEmit(p)
	}

	writeJSON(w, http.StatusCreated, p)
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (s *Server) handleAdjustQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product id"})
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid adjust payload"})
		return
	}

	p, err := s.store.AdjustQuantity(r.Context(), id, req.Delta, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Products without an explicit consumption rate are evaluated with the
	// rate observed in their movement history, when there is one.
	snapshot := *p
	if snapshot.AvgDailyConsumption <= 0 {
		if rate, err := s.store.ConsumptionRate(r.Context(), p.ID, 30*24*time.Hour); err == nil {
			snapshot.AvgDailyConsumption = rate
		}
	}

	s.emitter.EvaluateAndEmit(snapshot)

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, apperrors.ErrDuplicateSKU):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
