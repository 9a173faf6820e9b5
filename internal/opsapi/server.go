// Package opsapi is the supplemental operational HTTP surface: liveness,
// Prometheus scraping, a per-run status lookup, run cancellation, and a
// recent-runs listing over the archive. The pipeline
// engine's job intake / result publication surface is explicitly out of
// scope (spec.md Non-goals); this exists only for operators, not clients.
//
// Grounded on the teacher's infrastructure/service.Runner +
// infrastructure/middleware (gorilla/mux.Router, a metrics middleware
// wrapping every route, promhttp.Handler mounted directly).
package opsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bridgelab/reportpipeline/internal/archive"
	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/state"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// Canceller is the narrow surface Server needs to expose run cancellation
// operationally; satisfied structurally by *runner.Runner without opsapi
// importing internal/runner (which itself imports opsapi for Metrics).
type Canceller interface {
	Cancel(ctx context.Context, reportID string) error
}

// Server is the ops HTTP surface. It does not hold the Metrics it mounts
// under /metrics: NewMetrics registers its collectors against a
// prometheus.Registerer up front, and promhttp.Handler scrapes whatever is
// registered against the matching Gatherer — the Runner is what actually
// updates Metrics's counters/gauges as it runs (see runner.Runner).
type Server struct {
	router      *mux.Router
	store       state.Store
	canceller   Canceller
	archive     archive.Archive
	descriptors []core.Descriptor
	log         *logger.Logger
}

// NewServer builds the ops API router over an existing state.Store.
// canceller and arc may be nil; the routes they back (POST
// /runs/{id}/cancel and GET /runs) respond 503 until attached. descriptors
// is the worker's component inventory (internal/lifecycle.CollectDescriptors)
// echoed back on /healthz; it may be nil.
func NewServer(store state.Store, canceller Canceller, arc archive.Archive, descriptors []core.Descriptor, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("opsapi")
	}
	s := &Server{router: mux.NewRouter(), store: store, canceller: canceller, archive: arc, descriptors: descriptors, log: log}
	s.router.Use(requestLoggingMiddleware(log))
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{reportId}", s.handleGetRun).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{reportId}/cancel", s.handleCancelRun).Methods(http.MethodPost)
	s.router.HandleFunc("/runs", s.handleListRecentRuns).Methods(http.MethodGet)
	return s
}

// ServeHTTP lets Server be passed directly to http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzView{Status: "ok", Components: s.descriptors})
}

// healthzView reports liveness plus the worker's wired component inventory,
// so an operator can see which optional capabilities (metrics, bridging,
// archive) are attached without cross-referencing the deployment config.
type healthzView struct {
	Status     string           `json:"status"`
	Components []core.Descriptor `json:"components,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportId"]
	st, err := s.store.Get(r.Context(), reportID)
	if err != nil {
		if err == state.ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such run"})
			return
		}
		s.log.WithField("report_id", reportID).Errorf("opsapi: load state: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, toRunStatusView(st))
}

// handleCancelRun requests cancellation of a running report (spec.md §4.F
// "Cancellation") — an operational kill switch, not job submission.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if s.canceller == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cancellation not configured"})
		return
	}
	reportID := mux.Vars(r)["reportId"]
	if err := s.canceller.Cancel(r.Context(), reportID); err != nil {
		s.log.WithField("report_id", reportID).Errorf("opsapi: cancel run: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleListRecentRuns serves the operational dashboard read path over the
// run-analytics archive (spec.md supplemental "Run Analytics Archive"):
// never consulted by the Runner itself, only by operators.
func (s *Server) handleListRecentRuns(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive not configured"})
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId query parameter required"})
		return
	}
	limit := core.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	recs, err := s.archive.ListRecentRuns(r.Context(), userID, limit)
	if err != nil {
		s.log.WithField("user_id", userID).Errorf("opsapi: list recent runs: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// runStatusView is the read-only projection returned by GET /runs/{id}: it
// omits the completed stage payloads (clients don't poll this surface for
// results, only progress) and reports only summary fields.
type runStatusView struct {
	ReportID     string           `json:"reportId"`
	Status       report.Status    `json:"status"`
	CurrentStage report.StageName `json:"currentStage,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	TotalTokens  int64            `json:"totalTokens"`
	TotalCost    float64          `json:"totalCost"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}

func toRunStatusView(st *report.State) runStatusView {
	v := runStatusView{
		ReportID:     st.ReportID,
		Status:       st.Status,
		CurrentStage: st.CurrentStage,
		UpdatedAt:    st.UpdatedAt,
		TotalTokens:  st.TotalTokens,
		TotalCost:    st.TotalCost,
	}
	if st.Error != nil {
		v.ErrorMessage = st.Error.Message
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLoggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithField("path", r.URL.Path).WithField("method", r.Method).
				Debugf("opsapi request handled in %s", time.Since(start))
		})
	}
}
