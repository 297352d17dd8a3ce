package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genforge/forgeq"
	"github.com/genforge/forgeq/job"
)

type submitRequest struct {
	UserID  string          `json:"user_id"`
	Tier    string          `json:"tier"`
	Payload json.RawMessage `json:"payload"`
}

type submitResponse struct {
	JobID                string     `json:"job_id"`
	Status               job.Status `json:"status"`
	QueuePosition        int64      `json:"queue_position"`
	EstimatedStart       *time.Time `json:"estimated_start,omitempty"`
	EstimatedWaitMinutes float64    `json:"estimated_wait_minutes"`
}

type cancelResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body", Code: "INVALID_REQUEST"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required", Code: "INVALID_REQUEST"})
		return
	}
	ctx := r.Context()
	j, err := s.admission.Admit(ctx, req.UserID, job.Tier(req.Tier), req.Payload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.manager.Submit(ctx, j); err != nil {
		s.writeError(w, err)
		return
	}
	resp := submitResponse{
		JobID:  j.ID.String(),
		Status: j.Status,
	}
	if pos, err := s.estimator.Position(ctx, j.ID.String()); err == nil {
		resp.QueuePosition = pos
		start := s.estimator.EstimatedStart(ctx, pos)
		resp.EstimatedStart = &start
		resp.EstimatedWaitMinutes = s.estimator.WaitMinutes(ctx, pos)
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, forgeq.ErrJobNotFound)
		return
	}
	view, err := s.manager.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, forgeq.ErrJobNotFound)
		return
	}
	j, err := s.manager.Cancel(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{JobID: j.ID.String(), Status: j.Status})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.estimator.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, forgeq.ErrInvalidTier):
		status, code = http.StatusBadRequest, "INVALID_TIER"
	case errors.Is(err, forgeq.ErrInvalidPayload):
		status, code = http.StatusBadRequest, "INVALID_PAYLOAD"
	case errors.Is(err, forgeq.ErrJobNotFound):
		status, code = http.StatusNotFound, "JOB_NOT_FOUND"
	case errors.Is(err, forgeq.ErrIllegalTransition):
		status, code = http.StatusConflict, "ILLEGAL_TRANSITION"
	case errors.Is(err, forgeq.ErrQueueFull):
		status, code = http.StatusTooManyRequests, "QUEUE_FULL"
	case errors.Is(err, forgeq.ErrQuotaExceeded):
		status, code = http.StatusTooManyRequests, "QUOTA_EXCEEDED"
	default:
		status, code = http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
		s.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
