package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caglarilhan/borsailhanos-sub000/internal/journal"
	"github.com/caglarilhan/borsailhanos-sub000/internal/paper"
)

// StatsStore is the slice of the journal the statistics endpoint reads.
type StatsStore interface {
	Stats(now time.Time) (journal.Statistics, error)
}

// APIServer marshals the engine's operations to JSON over HTTP. It is thin
// glue: every decision lives in the engine, the handlers only translate.
type APIServer struct {
	server *http.Server
	engine *paper.Engine
	stats  StatsStore
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on the given port.
func NewAPIServer(port int, engine *paper.Engine, stats StatsStore, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		stats:  stats,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/api/orders", s.ordersHandler)
	mux.HandleFunc("/api/portfolio", s.portfolioHandler)
	mux.HandleFunc("/api/positions", s.positionsHandler)
	mux.HandleFunc("/api/trades", s.tradesHandler)
	mux.HandleFunc("/api/circuit-breaker/reset", s.resetBreakerHandler)
	mux.HandleFunc("/api/statistics", s.statisticsHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID         string `json:"uuid"`
		Name         string `json:"name"`
		StartTime    string `json:"start_time"`
		Uptime       string `json:"uptime"`
		BreakerState string `json:"breaker_state"`
	}{
		UUID:         s.engine.ID(),
		Name:         s.engine.Name(),
		StartTime:    s.engine.StartTime().Format(time.RFC3339),
		Uptime:       time.Since(s.engine.StartTime()).String(),
		BreakerState: string(s.engine.BreakerState()),
	}
	s.writeJSON(w, http.StatusOK, status)
}

// ordersHandler is the inbound surface for the external signal producer.
func (s *APIServer) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req paper.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	req.Side = paper.OrderSide(strings.ToUpper(string(req.Side)))

	order, err := s.engine.PlaceOrder(r.Context(), req)
	if err != nil {
		if reason := rejectReason(err); reason != "" {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error(), reason)
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

func (s *APIServer) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.PortfolioSummary())
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Positions())
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "")
			return
		}
		limit = parsed
	}
	s.writeJSON(w, http.StatusOK, s.engine.Trades(limit))
}

func (s *APIServer) resetBreakerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.engine.ResetCircuitBreaker()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"breaker_state": string(s.engine.BreakerState()),
	})
}

func (s *APIServer) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, http.StatusServiceUnavailable, "statistics journal not configured", "")
		return
	}
	stats, err := s.stats.Stats(time.Now())
	if err != nil {
		s.logger.Error("Failed to compute statistics", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to compute statistics", "")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// rejectReason maps the engine's rejection taxonomy to wire codes. An empty
// string means the error is not a structured rejection.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, paper.ErrPriceUnavailable):
		return "PRICE_UNAVAILABLE"
	case errors.Is(err, paper.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, paper.ErrCircuitBreakerActive):
		return "CIRCUIT_BREAKER_ACTIVE"
	case errors.Is(err, paper.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, paper.ErrDuplicatePosition):
		return "DUPLICATE_POSITION"
	}
	return ""
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, message, reason string) {
	body := map[string]string{"error": message}
	if reason != "" {
		body["reason"] = reason
	}
	s.writeJSON(w, status, body)
}
