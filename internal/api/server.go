package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/coordinator"
	"github.com/wallet-back/internal/database"
	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/internal/stream"
	"github.com/wallet-back/pkg/config"
	"github.com/wallet-back/pkg/logger"
)

// HistoryReader reads the trigger audit log
type HistoryReader interface {
	RecentTriggers(ctx context.Context, limit int) ([]database.TriggerRecord, error)
}

// Server exposes coordinator state to presentation layers
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	states   *statestore.Store
	coord    *coordinator.Coordinator
	consumer *stream.Consumer
	history  HistoryReader
	hub      *Hub
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	log *logrus.Logger,
	states *statestore.Store,
	coord *coordinator.Coordinator,
	consumer *stream.Consumer,
	history HistoryReader,
	hub *Hub,
) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   log,
		states:   states,
		coord:    coord,
		consumer: consumer,
		history:  history,
		hub:      hub,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(logger.Middleware(s.logger))
	s.router.Use(s.recoveryMiddleware)

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()

	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	apiV1.HandleFunc("/sync/status", s.handleGetStatus).Methods("GET")
	apiV1.HandleFunc("/sync/status", s.handleClearAll).Methods("DELETE")
	apiV1.HandleFunc("/sync/status/{walletId}", s.handleGetWalletStatus).Methods("GET")
	apiV1.HandleFunc("/sync/status/{walletId}", s.handleClearWallet).Methods("DELETE")
	apiV1.HandleFunc("/sync/connection", s.handleGetConnection).Methods("GET")
	apiV1.HandleFunc("/sync/history", s.handleGetHistory).Methods("GET")
	apiV1.HandleFunc("/sync/trigger", s.handleTrigger).Methods("POST")
	apiV1.HandleFunc("/sync/visibility", s.handleVisibility).Methods("POST")

	apiV1.HandleFunc("/ws", s.hub.HandleWebSocket).Methods("GET")
}

// Handler returns the configured HTTP handler, CORS included
func (s *Server) Handler() http.Handler {
	if !s.cfg.Security.CORSEnabled {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
		handlers.AllowedMethods(s.cfg.Security.CORSMethods),
		handlers.AllowedHeaders(s.cfg.Security.CORSHeaders),
	)(s.router)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.GetServerAddr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// recoveryMiddleware recovers from handler panics
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithField("panic", rec).Error("Handler panic recovered")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	conn := s.states.Connection()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"time":             time.Now().UTC(),
		"stream_connected": conn.Connected,
		"active_syncs":     s.states.ActiveCount(),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets":    s.states.Snapshot(),
		"connection": s.states.Connection(),
	})
}

func (s *Server) handleGetWalletStatus(w http.ResponseWriter, r *http.Request) {
	walletID := mux.Vars(r)["walletId"]

	state, ok := s.states.Get(walletID)
	if !ok {
		http.Error(w, fmt.Sprintf("no sync state for wallet %s", walletID), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleClearWallet(w http.ResponseWriter, r *http.Request) {
	walletID := mux.Vars(r)["walletId"]
	s.states.Clear(walletID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.states.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.states.Connection())
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "trigger history is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := s.history.RecentTriggers(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read trigger history")
		http.Error(w, "failed to read trigger history", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"triggers": records})
}

// handleTrigger runs the coordinator guard chain on demand. The same gates
// apply as for the automatic path; a skip is a 200 with the reason, an
// accepted trigger is a 202.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		http.Error(w, "coordinator is disabled", http.StatusServiceUnavailable)
		return
	}

	outcome := s.coord.MaybeTriggerAutoSync(r.Context(), true)
	status := http.StatusOK
	if outcome.Triggered {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, outcome)
}

// handleVisibility lets a presentation surface report it regained
// visibility, prompting an immediate reconnect attempt if the stream is
// down.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	if s.consumer != nil {
		s.consumer.NotifyVisible()
	}
	w.WriteHeader(http.StatusNoContent)
}
