// Package httpx provides the HTTP handlers and middleware for the batch job API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/cyano-batch/internal/domain/model"
	apperrors "github.com/target/cyano-batch/internal/errors"
	"github.com/target/cyano-batch/internal/service"
)

// BatchAPI is the orchestrator surface the handlers call. *service.BatchService implements it.
type BatchAPI interface {
	StartBatchJob(ctx context.Context, req model.StartBatchJobRequest) (*service.StartBatchJobResult, error)
	GetBatchStatus(ctx context.Context, username, jobID string) (*service.BatchStatusResult, error)
	GetAllBatchJobs(ctx context.Context, username string) (*service.BatchJobsResult, error)
	GetBatchJob(ctx context.Context, username, jobID string) (*service.BatchJobsResult, error)
	CancelBatchJob(ctx context.Context, username, jobID string) (*service.CancelBatchJobResult, error)
}

var _ BatchAPI = (*service.BatchService)(nil)

// BatchHandlers provides HTTP handlers for batch job operations.
type BatchHandlers struct {
	Svc    BatchAPI
	Logger *slog.Logger
}

// jobRequest is the body of the status, cancel and job endpoints.
// Missing keys decode to empty strings and resolve to "not found".
type jobRequest struct {
	Username string `json:"username"`
	JobID    string `json:"job_id"`
}

// StartBatchJob handles POST /api/batch.
// Accepted jobs answer 202, business rule refusals (including unknown users) 200,
// malformed requests 400 and queue failures 500.
func (h *BatchHandlers) StartBatchJob(w http.ResponseWriter, r *http.Request) {
	var req model.StartBatchJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if user, ok := UsernameFromContext(r.Context()); ok {
		req.Username = user
	}

	res, err := h.Svc.StartBatchJob(r.Context(), req)
	if err != nil {
		h.writeStartError(w, r, err)
		return
	}

	code := http.StatusAccepted
	switch res.Outcome {
	case service.StartRejected:
		code = http.StatusOK
	case service.StartFailed:
		code = http.StatusInternalServerError
	case service.StartAccepted:
	}
	WriteJSON(w, code, res)
}

func (h *BatchHandlers) writeStartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, msgInvalidKey)
	case errors.Is(err, model.ErrInvalidFilename):
		WriteError(w, http.StatusBadRequest, model.ErrInvalidFilename.Error())
	default:
		h.serviceError(w, r, "start batch job", err)
	}
}

// GetAllBatchJobs handles GET /api/batch.
func (h *BatchHandlers) GetAllBatchJobs(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(r, r.URL.Query().Get("username"))
	if !ok {
		WriteError(w, http.StatusBadRequest, msgInvalidKey)
		return
	}
	res, err := h.Svc.GetAllBatchJobs(r.Context(), username)
	if err != nil {
		h.serviceError(w, r, "list batch jobs", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// GetBatchStatus handles POST /api/batch/status.
func (h *BatchHandlers) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	username, jobID, ok := h.decodeJobRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.GetBatchStatus(r.Context(), username, jobID)
	if err != nil {
		h.serviceError(w, r, "get batch status", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// CancelBatchJob handles POST /api/batch/cancel.
// An unknown job answers 200 with an error key, matching the web client's expectations.
func (h *BatchHandlers) CancelBatchJob(w http.ResponseWriter, r *http.Request) {
	username, jobID, ok := h.decodeJobRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.CancelBatchJob(r.Context(), username, jobID)
	if err != nil {
		h.serviceError(w, r, "cancel batch job", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// GetBatchJob handles POST /api/batch/job.
func (h *BatchHandlers) GetBatchJob(w http.ResponseWriter, r *http.Request) {
	username, jobID, ok := h.decodeJobRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.GetBatchJob(r.Context(), username, jobID)
	if err != nil {
		h.serviceError(w, r, "get batch job", err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func (h *BatchHandlers) decodeJobRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req jobRequest
	if !DecodeJSON(w, r, &req) {
		return "", "", false
	}
	username, ok := h.username(r, req.Username)
	if !ok {
		WriteError(w, http.StatusBadRequest, msgInvalidKey)
		return "", "", false
	}
	return username, strings.TrimSpace(req.JobID), true
}

// username prefers the token subject over a client supplied name.
func (h *BatchHandlers) username(r *http.Request, fallback string) (string, bool) {
	if user, ok := UsernameFromContext(r.Context()); ok {
		return user, true
	}
	fallback = strings.TrimSpace(fallback)
	return fallback, fallback != ""
}

// serviceError answers a store or broker failure. Database errors carry a code
// (timeout, conflict, canceled) that picks the status; anything else is a 500.
func (h *BatchHandlers) serviceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	status := apperrors.HTTPStatus(apperrors.GetCode(err))
	logger.ErrorContext(r.Context(), op+" failed", "path", r.URL.Path, "status", status, "error", err)

	var appErr *apperrors.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	WriteJSON(w, status, errorBody{Error: appErr.Message, Field: apperrors.GetField(err)})
}
