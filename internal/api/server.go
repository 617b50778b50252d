// Package api exposes the collector's HTTP surface: manual run triggering,
// run inspection, health, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/observability"
)

// BatchRunner executes one batch run.
type BatchRunner interface {
	RunBatch(ctx context.Context, params collector.Params) (*models.RunSummary, error)
}

// RunStore reads batch run records.
type RunStore interface {
	GetLatestBatchRun(ctx context.Context) (*models.BatchRun, error)
}

// RunLock serializes runs across replicas. Optional.
type RunLock interface {
	AcquireRunLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, token string) error
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger  *zap.Logger
	Runner  BatchRunner
	Runs    RunStore
	Lock    RunLock
	LockTTL time.Duration
	Metrics observability.MetricsRegistry
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, runner BatchRunner, runs RunStore, metrics observability.MetricsRegistry) *Server {
	return &Server{
		Logger:  logger,
		Runner:  runner,
		Runs:    runs,
		LockTTL: 2 * time.Hour,
		Metrics: metrics,
	}
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/runs", s.TriggerRunHandler).Methods("POST")
	r.HandleFunc("/runs/latest", s.LatestRunHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// HealthHandler responds with a simple status check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// triggerRequest is the optional POST /runs body.
type triggerRequest struct {
	Mode   string `json:"mode,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// TriggerRunHandler starts a batch run synchronously and returns its summary.
// Returns 409 when another run already holds the lock.
func (s *Server) TriggerRunHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "runs"
	const method = "POST"

	var req triggerRequest
	if r.Body != nil {
		// An empty body is a valid trigger.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, endpoint, method, start, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	switch req.Mode {
	case "", "full", "incremental":
	default:
		s.writeError(w, endpoint, method, start, http.StatusBadRequest, "mode must be full or incremental")
		return
	}

	ctx := r.Context()
	if s.Lock != nil && !req.DryRun {
		token := uuid.NewString()
		ok, err := s.Lock.AcquireRunLock(ctx, token, s.LockTTL)
		if err != nil {
			s.Logger.Error("run lock acquire failed", zap.Error(err))
			s.writeError(w, endpoint, method, start, http.StatusInternalServerError, "lock unavailable")
			return
		}
		if !ok {
			s.writeError(w, endpoint, method, start, http.StatusConflict, "a run is already in flight")
			return
		}
		defer func() {
			if err := s.Lock.ReleaseRunLock(ctx, token); err != nil {
				s.Logger.Warn("run lock release failed", zap.Error(err))
			}
		}()
	}

	summary, err := s.Runner.RunBatch(ctx, collector.Params{
		TriggerType: "api",
		Mode:        req.Mode,
		DryRun:      req.DryRun,
		Domain:      req.Domain,
	})
	if err != nil {
		s.Logger.Error("triggered run failed", zap.Error(err))
		s.writeError(w, endpoint, method, start, http.StatusInternalServerError, "run failed")
		return
	}
	s.writeJSON(w, endpoint, method, start, http.StatusOK, summary)
}

// LatestRunHandler returns the most recent batch run, 404 when none exists.
func (s *Server) LatestRunHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "runs_latest"
	const method = "GET"

	run, err := s.Runs.GetLatestBatchRun(r.Context())
	if err != nil {
		s.Logger.Error("latest run query failed", zap.Error(err))
		s.writeError(w, endpoint, method, start, http.StatusInternalServerError, "query failed")
		return
	}
	if run == nil {
		s.writeError(w, endpoint, method, start, http.StatusNotFound, "no runs yet")
		return
	}
	s.writeJSON(w, endpoint, method, start, http.StatusOK, run)
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint, method string, start time.Time, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("encode response", zap.Error(err))
	}
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func (s *Server) writeError(w http.ResponseWriter, endpoint, method string, start time.Time, status int, msg string) {
	s.writeJSON(w, endpoint, method, start, status, map[string]string{"error": msg})
}
