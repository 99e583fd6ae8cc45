// Package api provides the HTTP and WebSocket server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/atlas-desktop/strategy-simulator/internal/data"
	"github.com/atlas-desktop/strategy-simulator/internal/repository"
	"github.com/atlas-desktop/strategy-simulator/internal/strategy"
	"github.com/atlas-desktop/strategy-simulator/internal/workers"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/atlas-desktop/strategy-simulator/pkg/utils"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const maxMonteCarloIterations = 20000

// Server is the HTTP/WebSocket API server
type Server struct {
	logger     *zap.Logger
	config     *types.ServerConfig
	router     *mux.Router
	httpServer *http.Server
	provider   data.Provider
	registry   *strategy.StrategyRegistry
	sims       *SimulationManager
	hub        *Hub
	metrics    *Metrics
	validator  *data.QualityValidator
	started    time.Time
}

// Deps are the collaborators a server routes requests to
type Deps struct {
	Provider    data.Provider
	Registry    *strategy.StrategyRegistry
	Simulations *SimulationManager
	Hub         *Hub
	Metrics     *Metrics
}

// NewServer creates a new API server
func NewServer(logger *zap.Logger, config *types.ServerConfig, deps Deps) *Server {
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}
	s := &Server{
		logger:    logger,
		config:    config,
		router:    mux.NewRouter(),
		provider:  deps.Provider,
		registry:  deps.Registry,
		sims:      deps.Simulations,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		validator: data.NewQualityValidator(logger),
		started:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// Router exposes the route table, mainly for tests
func (s *Server) Router() *mux.Router { return s.router }

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", s.handleHealth).Methods("GET")
	v1.HandleFunc("/strategies", s.handleListStrategies).Methods("GET")
	v1.HandleFunc("/strategies/{type}", s.handleGetStrategy).Methods("GET")

	v1.HandleFunc("/data/history/{symbol}", s.handleGetHistory).Methods("GET")

	v1.HandleFunc("/simulations", s.handleListSimulations).Methods("GET")
	v1.HandleFunc("/simulations", s.handleSubmitSimulation).Methods("POST")
	v1.HandleFunc("/simulations/run", s.handleRunSimulation).Methods("POST")
	v1.HandleFunc("/simulations/{id}", s.handleGetSimulation).Methods("GET")
	v1.HandleFunc("/simulations/{id}/trades", s.handleGetSimulationTrades).Methods("GET")
	v1.HandleFunc("/simulations/{id}/cancel", s.handleCancelSimulation).Methods("POST")
	v1.HandleFunc("/simulations/{id}/montecarlo", s.handleMonteCarlo).Methods("GET")

	if s.metrics != nil && s.config.EnableMetrics {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	if s.hub != nil {
		s.router.HandleFunc(s.config.WebSocketPath, s.hub.ServeWS)
	}
}

// Handler wraps the router with CORS
func (s *Server) Handler() http.Handler {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, backtester.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrSimulationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateSimulation),
		errors.Is(err, ErrSimulationNotComplete),
		errors.Is(err, ErrSimulationFinished):
		return http.StatusConflict
	case errors.Is(err, workers.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, workers.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, backtester.ErrNoHistoricalData),
		errors.Is(err, backtester.ErrNoClosedTrades):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Unix(),
		"uptime": utils.FormatDuration(time.Since(s.started)),
	}
	if s.sims != nil {
		resp["activeSimulations"] = s.sims.Active()
	}
	if s.hub != nil {
		resp["websocketClients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListStrategies returns every strategy type with its parameter schema
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": list,
		"count":      len(list),
	})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Describe(types.StrategyType(mux.Vars(r)["type"]))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown strategy type %q", mux.Vars(r)["type"]))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleGetHistory returns candles for a symbol with a quality report.
// The window is start/end, or a lookback such as range=30d ending now.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	q := r.URL.Query()

	timeframe := types.Timeframe(q.Get("timeframe"))
	if timeframe == "" {
		timeframe = types.Timeframe1h
	}

	end, err := utils.ParseTime(q.Get("end"), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	lookback := 30 * 24 * time.Hour
	if raw := q.Get("range"); raw != "" {
		if lookback, err = utils.ParseLookback(raw); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	start, err := utils.ParseTime(q.Get("start"), end.Add(-lookback))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, errors.New("start must be before end"))
		return
	}

	bars, err := s.provider.LoadOHLCV(r.Context(), symbol, timeframe, start, end)
	if err != nil {
		s.logger.Warn("History load failed", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"start":     start,
		"end":       end,
		"bars":      bars,
		"count":     len(bars),
		"quality":   s.validator.Validate(bars, symbol, timeframe),
	})
}

func decodeRequest(r *http.Request) (*types.SimulationRequest, error) {
	var req types.SimulationRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", backtester.ErrInvalidRequest, err)
	}
	if req.EndDate.IsZero() {
		req.EndDate = time.Now().UTC()
	}
	if req.StartDate.IsZero() {
		req.StartDate = req.EndDate.AddDate(0, -1, 0)
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, fmt.Errorf("%w: startDate must be before endDate", backtester.ErrInvalidRequest)
	}
	return &req, nil
}

// handleSubmitSimulation queues a simulation on the worker pool
func (s *Server) handleSubmitSimulation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	view, err := s.sims.Submit(req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleRunSimulation runs a simulation within the request and returns the result
func (s *Server) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	result, err := s.sims.Run(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	results, err := s.sims.List(r.Context(), limit)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"simulations": results,
		"count":       len(results),
	})
}

// handleGetSimulation returns status, progress and, once complete, the result
func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	view, err := s.sims.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetSimulationTrades returns the trade log of a finished simulation
func (s *Server) handleGetSimulationTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trades, err := s.sims.Trades(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"trades": trades,
		"count":  len(trades),
	})
}

// handleCancelSimulation cancels a queued or running simulation
func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	view, err := s.sims.Cancel(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMonteCarlo reshuffles the closed trades of a finished simulation.
// Query: iterations (default 1000, max 20000), seed.
func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	cfg := backtester.DefaultMonteCarloConfig()
	q := r.URL.Query()
	if raw := q.Get("iterations"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMonteCarloIterations {
			writeError(w, http.StatusBadRequest, fmt.Errorf("iterations must be between 1 and %d", maxMonteCarloIterations))
			return
		}
		cfg.Iterations = n
	}
	if raw := q.Get("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("seed must be an integer"))
			return
		}
		cfg.Seed = seed
	}

	report, err := s.sims.MonteCarlo(r.Context(), mux.Vars(r)["id"], cfg)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
