// Package api provides the HTTP and WebSocket surface of the engine:
// status, positions, trades, performance, risk state and operator
// controls. The API observes and steers; it never trades directly.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantedge/options-engine/internal/attribution"
	"github.com/quantedge/options-engine/internal/engine"
	"github.com/quantedge/options-engine/internal/events"
	"github.com/quantedge/options-engine/internal/position"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Config holds the listener settings.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
}

// DefaultConfig returns the standard listener settings.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger     *zap.Logger
	config     Config
	router     *mux.Router
	httpServer *http.Server

	engine     *engine.Engine
	tracker    *position.Tracker
	risk       *risk.Manager
	attributor *attribution.Attributor
	bus        *events.Bus

	hub     *Hub
	metrics *Metrics

	sessionStart time.Time
}

// NewServer wires the API around a running engine.
func NewServer(logger *zap.Logger, config Config, eng *engine.Engine, tracker *position.Tracker, riskMgr *risk.Manager, attributor *attribution.Attributor, bus *events.Bus) *Server {
	s := &Server{
		logger:       logger.Named("api"),
		config:       config,
		router:       mux.NewRouter(),
		engine:       eng,
		tracker:      tracker,
		risk:         riskMgr,
		attributor:   attributor,
		bus:          bus,
		hub:          NewHub(logger),
		metrics:      NewMetrics(),
		sessionStart: time.Now().UTC(),
	}

	s.hub.Attach(bus)
	s.metrics.Attach(bus)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/positions", s.handlePositions).Methods("GET")
	v1.HandleFunc("/trades", s.handleTrades).Methods("GET")
	v1.HandleFunc("/performance", s.handlePerformance).Methods("GET")
	v1.HandleFunc("/performance/strategies", s.handlePerformanceByStrategy).Methods("GET")
	v1.HandleFunc("/performance/buckets", s.handlePerformanceByBucket).Methods("GET")
	v1.HandleFunc("/risk", s.handleRisk).Methods("GET")
	v1.HandleFunc("/control/pause", s.handlePause).Methods("POST")
	v1.HandleFunc("/control/resume", s.handleResume).Methods("POST")
	v1.HandleFunc("/control/emergency-stop", s.handleEmergencyStop).Methods("POST")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	s.router.HandleFunc("/ws", s.hub.HandleUpgrade)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the listener until the server is stopped.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop drains websocket clients and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Open())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Trades())
}

// performanceWindow resolves the query period to a concrete window ending
// now. Unknown values fall back to daily.
func (s *Server) performanceWindow(r *http.Request) (types.Period, time.Time, time.Time) {
	end := time.Now().UTC().Add(time.Second)
	switch r.URL.Query().Get("period") {
	case string(types.PeriodWeekly):
		return types.PeriodWeekly, end.AddDate(0, 0, -7), end
	case string(types.PeriodMonthly):
		return types.PeriodMonthly, end.AddDate(0, -1, 0), end
	default:
		return types.PeriodDaily, s.sessionStart, end
	}
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	period, start, end := s.performanceWindow(r)
	snap := s.attributor.Compute(period, start, end, s.tracker.Trades(), s.tracker.UnrealizedPnL())
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handlePerformanceByStrategy(w http.ResponseWriter, r *http.Request) {
	period, start, end := s.performanceWindow(r)
	s.writeJSON(w, http.StatusOK, s.attributor.ByStrategy(period, start, end, s.tracker.Trades()))
}

func (s *Server) handlePerformanceByBucket(w http.ResponseWriter, r *http.Request) {
	period, start, end := s.performanceWindow(r)
	s.writeJSON(w, http.StatusOK, s.attributor.ByBucket(period, start, end, s.tracker.Trades()))
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	breaker := s.risk.Breaker()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"locked":          s.risk.Locked(),
		"breakerState":    breaker.State(),
		"breakerFailures": breaker.Failures(),
		"kellyFraction":   s.risk.Stats().KellyFraction(),
		"trailingTrades":  s.risk.Stats().Count(),
		"limits":          s.risk.Config(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Control().Pause()
	s.logger.Info("engine paused via API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.engine.Control().Resume()
	s.logger.Info("engine resumed via API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

type emergencyStopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	s.engine.Control().EmergencyStop(req.Reason)
	s.logger.Warn("emergency stop via API", zap.String("reason", req.Reason))
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "stopped",
		"reason": req.Reason,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
