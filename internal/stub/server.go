// Package stub hosts a local stand-in for the remote inference endpoint
// so the probe can be exercised end to end with no credentials and no
// GPU behind it. Jobs move IN_QUEUE -> IN_PROGRESS -> terminal on a
// configurable schedule, and a completed job echoes the submitted image
// back as its output.
package stub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"runpod-probe/internal/config"
	"runpod-probe/internal/domain"
	"runpod-probe/internal/domain/model"
	"runpod-probe/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type jobRecord struct {
	id        string
	input     model.JobInput
	createdAt time.Time
}

type Server struct {
	cfg config.StubConfig
	log *zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*jobRecord
}

func NewServer(cfg config.StubConfig, log *zerolog.Logger) *Server {
	return &Server{
		cfg:  cfg,
		log:  log,
		jobs: make(map[string]*jobRecord),
	}
}

// Routes builds the endpoint surface. The {endpoint} segment is accepted
// but ignored, the stub serves any endpoint id.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/v2/{endpoint}", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/run", s.handleRun)
		r.Get("/status/{jobID}", s.handleStatus)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

// authMiddleware enforces bearer-token auth. With no api_key configured
// any non-empty token passes, which is what a local dev stub wants.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}
		if s.cfg.APIKey != "" && parts[1] != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Input.Image == "" {
		writeError(w, http.StatusBadRequest, "input.image is required")
		return
	}

	job := &jobRecord{
		id:        uuid.NewString(),
		input:     req.Input,
		createdAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.id] = job
	s.mu.Unlock()

	metrics.IncJobReceived()
	s.log.Info().Str("job_id", job.id).Int("image_b64_len", len(req.Input.Image)).Msg("job accepted")

	writeJSON(w, http.StatusOK, model.SubmitResponse{ID: job.id, Status: model.JobStatusInQueue})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrJobNotFound.Error())
		return
	}

	st := s.statusFor(job)
	metrics.IncStatusRequest(string(st.Status))
	writeJSON(w, http.StatusOK, st)
}

// statusFor derives the job's state from its age: queued first, then
// running, then the configured terminal status.
func (s *Server) statusFor(job *jobRecord) model.StatusResponse {
	elapsed := time.Since(job.createdAt)
	st := model.StatusResponse{ID: job.id}

	switch {
	case elapsed < s.cfg.QueueDelay:
		st.Status = model.JobStatusInQueue
	case elapsed < s.cfg.QueueDelay+s.cfg.RunDelay:
		st.Status = model.JobStatusInProgress
	default:
		switch model.JobStatus(s.cfg.FinalStatus) {
		case model.JobStatusFailed:
			st.Status = model.JobStatusFailed
			st.Error = "forced failure (stub final_status)"
		case model.JobStatusCancelled:
			st.Status = model.JobStatusCancelled
		default:
			st.Status = model.JobStatusCompleted
			st.Output = &model.JobOutput{ImageBase64: job.input.Image}
		}
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
