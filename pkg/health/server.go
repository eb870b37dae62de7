// Package health exposes health, readiness and operational status endpoints
// alongside the Prometheus metrics handler.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proofline-hq/proofline/pkg/circuitbreaker"
	"github.com/proofline-hq/proofline/pkg/config"
	"github.com/proofline-hq/proofline/pkg/database"
	"github.com/proofline-hq/proofline/pkg/intentstore"
	"github.com/proofline-hq/proofline/pkg/logger"
)

// Server represents the health check HTTP server
type Server struct {
	port          string
	chains        map[int]config.ChainConfig
	store         *intentstore.Store
	db            *database.OrderDatabase
	breaker       *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	httpServer    *http.Server
	log           logger.Logger
}

// NewServer creates a new health check server
func NewServer(port string, chains map[int]config.ChainConfig, store *intentstore.Store,
	db *database.OrderDatabase, breaker *circuitbreaker.CircuitBreaker, log logger.Logger,
) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		chains:        chains,
		store:         store,
		db:            db,
		breaker:       breaker,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
		log:           log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the health check server and blocks until it stops
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	s.httpServer = &http.Server{Addr: ":" + s.port, Handler: mux}
	s.log.Info("Starting health and metrics server on port %s", s.port)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the health server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Fast store not reachable: " + err.Error()))
		return
	}
	if err := s.db.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Durable store not reachable: " + err.Error()))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	chains := make(map[string]interface{}, len(s.chains))
	for chainID, chainConfig := range s.chains {
		chains[chainConfig.Network] = map[string]interface{}{
			"chain_id":      chainID,
			"token_address": chainConfig.TokenAddress,
			"poll_interval": chainConfig.PollInterval.String(),
		}
	}
	status["chains"] = chains
	status["circuit_breaker"] = s.breaker.GetState()

	if active, err := s.store.ActiveCount(r.Context()); err == nil {
		status["active_intents"] = active
	}
	if settled, err := s.store.SettledCount(r.Context()); err == nil {
		status["settled_backlog"] = settled
	}
	if counts, err := s.db.CountByStatus(r.Context()); err == nil {
		byStatus := make(map[string]int64, len(counts))
		for orderStatus, count := range counts {
			byStatus[string(orderStatus)] = count
		}
		status["orders"] = byStatus
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Error("Error encoding status JSON: %v", err)
	}
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.breaker.Reset()
	s.log.Notice("Durable store circuit breaker reset by operator")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Circuit breaker reset"))
}
