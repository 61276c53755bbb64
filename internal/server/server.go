// Package server exposes the batch job queue over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
	"github.com/xkilldash9x/inbox-sweeper/internal/batch"
	"github.com/xkilldash9x/inbox-sweeper/internal/config"
)

// MsgStarted is returned when a batch has been queued.
const MsgStarted = "Unsubscribe process started"

// EmailBatchRunner runs an unsubscribe batch over stored emails.
type EmailBatchRunner interface {
	RunEmailBatch(ctx context.Context, userID string, emailIDs []string, reporter schemas.ProgressReporter) (schemas.BatchResult, error)
}

// JobQueue accepts batch work and reports on it.
type JobQueue interface {
	Submit(fn batch.JobFunc) (string, error)
	Get(id string) (batch.Job, bool)
}

// Server is the job status API.
type Server struct {
	cfg        config.ServerConfig
	runner     EmailBatchRunner
	jobs       JobQueue
	logger     *zap.Logger
	httpServer *http.Server
}

// New creates a server. Call ListenAndServe to start it.
func New(cfg config.ServerConfig, runner EmailBatchRunner, jobs JobQueue, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		jobs:   jobs,
		logger: logger.Named("http_server"),
	}
}

type unsubscribeRequest struct {
	EmailIDs []string `json:"emailIds"`
	UserID   string   `json:"userId"`
}

type unsubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId,omitempty"`
}

type statusResponse struct {
	Status   string               `json:"status"`
	Progress int                  `json:"progress"`
	Result   *schemas.BatchResult `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/unsubscribe", func(r chi.Router) {
		r.Post("/", s.handleUnsubscribe)
		r.Get("/status/{jobID}", s.handleStatus)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Job API listening.", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Graceful shutdown failed.", zap.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Job API stopped.")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, unsubscribeResponse{Message: "Invalid request body"})
		return
	}
	if req.UserID == "" || len(req.EmailIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, unsubscribeResponse{Message: "userId and emailIds are required"})
		return
	}

	userID, emailIDs := req.UserID, append([]string(nil), req.EmailIDs...)
	jobID, err := s.jobs.Submit(func(ctx context.Context, reporter schemas.ProgressReporter) (schemas.BatchResult, error) {
		return s.runner.RunEmailBatch(ctx, userID, emailIDs, reporter)
	})
	if err != nil {
		s.logger.Error("Failed to queue unsubscribe job.", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, unsubscribeResponse{Message: err.Error()})
		return
	}

	s.logger.Info("Queued unsubscribe job.", zap.String("job_id", jobID), zap.String("user_id", userID), zap.Int("emails", len(emailIDs)))
	writeJSON(w, http.StatusAccepted, unsubscribeResponse{Success: true, Message: MsgStarted, JobID: jobID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := s.jobs.Get(jobID)
	if !ok {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "not_found", Message: "Job not found"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   string(job.State),
		Progress: job.Progress,
		Result:   job.Result,
		Error:    job.Error,
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Handled request.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
