package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/hls"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
)

const shutdownGrace = 5 * time.Second

// Server exposes the worker's operational surface: job lookups, health
// and Prometheus metrics. It only ever reads the job record store.
type Server struct {
	jobs   *jobstore.Store
	logger logger.Logger
	router *mux.Router
}

// New builds the operational HTTP surface over the job record store.
func New(jobs *jobstore.Store, log logger.Logger) (*Server, error) {
	if jobs == nil {
		return nil, errors.New(errors.ConfigError, "API server requires a job store", "", errors.ErrConfigInvalid)
	}
	if log == nil {
		log = logger.NewLogger()
	}
	s := &Server{jobs: jobs, logger: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	r.HandleFunc("/jobs/{asset_id}", s.handleGetJob).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router = r
	return s, nil
}

// Handler returns the root handler, usable with any http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe runs the server until ctx is cancelled, then drains it
// with a short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	s.logger.Info("API server listening", "api", map[string]interface{}{"addr": addr})

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// jobView is the wire shape of a job record.
type jobView struct {
	AssetID        string            `json:"asset_id"`
	InputRef       string            `json:"input_ref"`
	Status         string            `json:"status"`
	Probed         *jobstore.Probe   `json:"probed,omitempty"`
	Plan           []hls.Variant     `json:"plan,omitempty"`
	VariantState   map[string]string `json:"variant_state,omitempty"`
	MasterKey      string            `json:"master_key,omitempty"`
	ThumbnailKey   string            `json:"thumbnail_key,omitempty"`
	GlobalProgress float64           `json:"global_progress"`
	ErrorType      string            `json:"error_type,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func viewOf(job *jobstore.Job) jobView {
	states := make(map[string]string, len(job.VariantState))
	for label, st := range job.VariantState {
		states[label] = string(st)
	}
	return jobView{
		AssetID:        job.AssetID,
		InputRef:       job.InputRef,
		Status:         string(job.Status),
		Probed:         job.Probed,
		Plan:           job.Plan,
		VariantState:   states,
		MasterKey:      job.MasterKey,
		ThumbnailKey:   job.ThumbnailKey,
		GlobalProgress: job.GlobalProgress,
		ErrorType:      job.ErrorType,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset_id"]

	job, err := s.jobs.Get(r.Context(), assetID)
	if err != nil {
		s.logger.Error("Job lookup failed", "api", map[string]interface{}{
			"asset_id": assetID,
			"error":    err.Error(),
		})
		http.Error(w, "Failed to load the job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(viewOf(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []jobstore.Status
	for _, raw := range r.URL.Query()["status"] {
		statuses = append(statuses, jobstore.Status(raw))
	}

	jobs, err := s.jobs.List(r.Context(), statuses...)
	if err != nil {
		s.logger.Error("Job listing failed", "api", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// The probe should notice a wedged job database, not just a live port.
	if _, err := s.jobs.List(r.Context(), jobstore.StatusRunning); err != nil {
		http.Error(w, "job store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
