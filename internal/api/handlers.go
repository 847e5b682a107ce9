package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/voicebox/internal/jobs"
	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/references"
	"github.com/bobarin/voicebox/internal/services"
	"github.com/bobarin/voicebox/internal/worker"
)

// StatusClientClosedRequest answers a cancelled synthesis; it is not a server error.
const StatusClientClosedRequest = 499

type Handler struct {
	worker         *worker.Worker
	store          *references.Store
	defaults       models.RequestDefaults
	tools          []string
	maxUploadBytes int64
}

type HandlerConfig struct {
	Defaults       models.RequestDefaults
	Tools          []string // binaries reported by /health
	MaxUploadBytes int64
}

func NewHandler(w *worker.Worker, store *references.Store, cfg HandlerConfig) *Handler {
	return &Handler{
		worker:         w,
		store:          store,
		defaults:       cfg.Defaults,
		tools:          cfg.Tools,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// Synthesize handles POST /tts
// Streams the synthesized WAV; X-Seed carries the seed that was actually used.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req models.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			respondTooLarge(w, "Request body too large")
			return
		}
		respondFailure(w, "", models.NewValidationError("Invalid request body: %v", err))
		return
	}

	result, err := h.worker.Synthesize(r.Context(), req.ToJobRequest(h.defaults))
	if err != nil {
		respondFailure(w, result.RequestID, err)
		return
	}

	f, err := os.Open(result.Path)
	if err != nil {
		respondFailure(w, result.RequestID, models.NewSynthesisFailed("Generated audio file could not be read", "", err))
		return
	}
	defer f.Close()

	header := w.Header()
	header.Set("X-Request-ID", result.RequestID)
	header.Set("X-Seed", strconv.FormatUint(uint64(result.Seed), 10))
	header.Set("X-Reference-Text-Source", string(result.Reference.Source))
	header.Set("X-Speed-Applied", strconv.FormatBool(result.Post.Applied))
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(result.Path)))
	streamFile(w, f, "audio/wav")
}

// ListJobs handles GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	running := h.worker.Running()
	resp := models.ListJobsResponse{
		Jobs:  make([]models.JobResponse, 0, len(running)),
		Total: len(running),
	}
	for _, snap := range running {
		resp.Jobs = append(resp.Jobs, jobResponse(snap))
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{requestId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")
	snap, ok := h.worker.Status(requestID)
	if !ok {
		respondJSON(w, http.StatusNotFound, models.JobResponse{
			RequestID: requestID,
			Status:    string(jobs.CancelOutcomeNotFound),
		})
		return
	}
	respondJSON(w, http.StatusOK, jobResponse(snap))
}

// CancelJob handles POST /jobs/{requestId}/cancel and DELETE /jobs/{requestId}
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	if h.worker.Cancel(requestID) == jobs.CancelOutcomeNotFound {
		respondJSON(w, http.StatusNotFound, models.CancelJobResponse{
			RequestID: requestID,
			Status:    string(jobs.CancelOutcomeNotFound),
			Message:   "No running job with this request_id",
		})
		return
	}

	respondJSON(w, http.StatusOK, models.CancelJobResponse{
		RequestID: requestID,
		Status:    string(jobs.CancelOutcomeCancelled),
		Message:   "Job cancelled",
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:      "ok",
		Tools:       make(map[string]bool, len(h.tools)),
		RunningJobs: len(h.worker.Running()),
	}
	for _, tool := range h.tools {
		available := services.ToolAvailable(tool)
		resp.Tools[tool] = available
		if !available {
			resp.Status = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func jobResponse(snap jobs.Snapshot) models.JobResponse {
	return models.JobResponse{
		RequestID: snap.RequestID,
		Status:    string(snap.State),
		PID:       snap.PID,
		StartedAt: snap.StartedAt,
		Timestamp: snap.Timestamp,
		ElapsedMs: time.Since(snap.StartedAt).Milliseconds(),
	}
}

// statusForKind maps each failure kind to its own status code.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindAccessDenied:
		return http.StatusForbidden
	case models.KindToolUnavailable:
		return http.StatusServiceUnavailable
	case models.KindCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure writes err as an ErrorResponse. Errors that are not *models.Error are
// logged and reported without internals.
func respondFailure(w http.ResponseWriter, requestID string, err error) {
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}

	var merr *models.Error
	if !errors.As(err, &merr) {
		log.Printf("[API] Unexpected error (request %s): %v", requestID, err)
		respondJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:     "Internal server error",
			RequestID: requestID,
		})
		return
	}

	detail := merr.Detail
	if detail == "" {
		detail = merr.Message
	}
	respondJSON(w, statusForKind(merr.Kind), models.ErrorResponse{
		Error:     merr.Message,
		Code:      merr.Kind,
		Detail:    detail,
		RequestID: requestID,
	})
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func respondTooLarge(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{
		Error: message,
		Code:  models.KindValidation,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

func streamFile(w http.ResponseWriter, f *os.File, contentType string) {
	w.Header().Set("Content-Type", contentType)
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("[API] Failed to stream %s: %v", filepath.Base(f.Name()), err)
	}
}
