// Package api exposes the engine's HTTP control surface: status reporting
// and the decision intake used by the external strategy brain.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-grid/internal/logger"
	"github.com/rxtech-lab/argo-grid/internal/repository"
	"github.com/rxtech-lab/argo-grid/internal/scheduler"
	"github.com/rxtech-lab/argo-grid/internal/startup"
	"github.com/rxtech-lab/argo-grid/internal/types"
	"github.com/rxtech-lab/argo-grid/pkg/errors"
)

// Server serves the control API.
type Server struct {
	scheduler  *scheduler.Scheduler
	repo       repository.Repository
	integrity  *startup.IntegrityChecker
	logger     *logger.Logger
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the API server bound to addr.
func NewServer(addr string, sched *scheduler.Scheduler, repo repository.Repository, integrity *startup.IntegrityChecker, log *logger.Logger) *Server {
	s := &Server{
		scheduler: sched,
		repo:      repo,
		integrity: integrity,
		logger:    log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/api/v1/pairs/{pair}/status", s.handlePairStatus).Methods("GET")
	router.HandleFunc("/api/v1/decisions", s.handleDecisions).Methods("POST")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start begins listening. It returns once the listener is bound so callers
// can read the address; serving continues in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"api server could not bind %s", s.httpServer.Addr)
	}

	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("api server listening", zap.String("addr", listener.Addr().String()))

	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}

	return s.listener.Addr().String()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.integrity.Check(r.Context())

	status := http.StatusOK
	if report.Health != startup.HealthHealthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, report)
}

type pairStatusResponse struct {
	Pair         types.TradingPair `json:"pair"`
	IsRunning    bool              `json:"is_running"`
	LastDecision types.Decision    `json:"last_decision"`
	StatusReason string            `json:"status_reason,omitempty"`
	WorkerState  string            `json:"worker_state"`
	OpenOrders   int               `json:"open_orders"`
	TotalProfit  decimal.Decimal   `json:"total_profit"`
}

type statusResponse struct {
	Pairs []pairStatusResponse `json:"pairs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	configs, err := s.repo.GetAllConfigs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	workerStates := make(map[types.TradingPair]string)
	for _, status := range s.scheduler.Snapshot() {
		workerStates[status.Pair] = string(status.WorkerState)
	}

	response := statusResponse{Pairs: make([]pairStatusResponse, 0, len(configs))}

	for _, cfg := range configs {
		status, err := s.pairStatus(r.Context(), cfg, workerStates[cfg.Pair])
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)

			return
		}

		response.Pairs = append(response.Pairs, status)
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	pair := parsePair(mux.Vars(r)["pair"])
	if err := pair.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	cfg, err := s.repo.GetConfig(r.Context(), pair)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeConfigNotFound) {
			s.writeError(w, http.StatusNotFound, err)

			return
		}

		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	workerState := ""

	for _, status := range s.scheduler.Snapshot() {
		if status.Pair == pair {
			workerState = string(status.WorkerState)
		}
	}

	status, err := s.pairStatus(r.Context(), cfg, workerState)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) pairStatus(ctx context.Context, cfg types.GridConfig, workerState string) (pairStatusResponse, error) {
	open, err := s.repo.GetOpenOrders(ctx, cfg.Pair)
	if err != nil {
		return pairStatusResponse{}, err
	}

	profit, err := s.repo.TotalProfit(ctx, cfg.Pair)
	if err != nil {
		return pairStatusResponse{}, err
	}

	if workerState == "" {
		workerState = "IDLE"
	}

	return pairStatusResponse{
		Pair:         cfg.Pair,
		IsRunning:    cfg.IsRunning,
		LastDecision: cfg.LastDecision,
		StatusReason: cfg.StatusReason,
		WorkerState:  workerState,
		OpenOrders:   len(open),
		TotalProfit:  profit,
	}, nil
}

type decisionRequest struct {
	Pair     types.TradingPair `json:"pair"`
	Decision types.Decision    `json:"decision"`
}

type decisionsRequest struct {
	Decisions []decisionRequest `json:"decisions"`
}

type decisionsResponse struct {
	Applied int `json:"applied"`
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	var request decisionsRequest

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest,
			errors.Wrap(errors.ErrCodeInvalidParameter, "malformed decision payload", err))

		return
	}

	if len(request.Decisions) == 0 {
		s.writeError(w, http.StatusBadRequest,
			errors.New(errors.ErrCodeMissingParameter, "no decisions in payload"))

		return
	}

	now := time.Now().UTC()
	decisions := make([]types.PairDecision, 0, len(request.Decisions))

	for _, d := range request.Decisions {
		decisions = append(decisions, types.PairDecision{
			Pair:      d.Pair,
			Decision:  d.Decision,
			Timestamp: now,
		})
	}

	applied, err := s.scheduler.ApplyDecisions(r.Context(), decisions)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeInvalidDecision) || errors.HasCode(err, errors.ErrCodeInvalidPair) {
			s.writeError(w, http.StatusBadRequest, err)

			return
		}

		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, decisionsResponse{Applied: applied})
}

// parsePair accepts both BTC/USDT and its URL-safe BTC-USDT form.
func parsePair(raw string) types.TradingPair {
	return types.TradingPair(strings.ReplaceAll(raw, "-", "/"))
}
