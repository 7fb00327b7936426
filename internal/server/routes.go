package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rollscan/rollscan/internal/ingest"
	"github.com/rollscan/rollscan/internal/orchestrator"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/documents/upload", s.handleUpload)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /api/documents/{id}/voters", s.handleDocumentVoters)
	mux.HandleFunc("POST /api/documents/{id}/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/documents/{id}/runs", s.handleListRuns)

	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /api/runs/{id}/retry", s.handleRetryRun)

	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UploadResponse is returned after a successful document upload.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	PageCount  int    `json:"page_count"`
}

// StartRunRequest carries optional run configuration overrides.
type StartRunRequest struct {
	MaxPagesPerCall int    `json:"max_pages_per_call,omitempty"`
	MaxRetries      int    `json:"max_retries,omitempty"`
	CallTimeoutSecs int    `json:"call_timeout_seconds,omitempty"`
	PromptVersion   string `json:"prompt_version,omitempty"`
}

// handleHealth returns basic server health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleUpload accepts a multipart PDF upload and ingests it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not configured")
		return
	}

	const maxMemory = 500 << 20 // 500MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	fh := files[0]
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", fh.Filename))
		return
	}

	src, err := fh.Open()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to open upload: %v", err))
		return
	}
	defer src.Close()

	tempDir, err := os.MkdirTemp("", "rollscan-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create temp dir: %v", err))
		return
	}
	defer os.RemoveAll(tempDir)

	tempPath := filepath.Join(tempDir, filepath.Base(fh.Filename))
	dst, err := os.Create(tempPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to stage upload: %v", err))
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save upload: %v", err))
		return
	}
	dst.Close()

	result, err := ingest.Ingest(r.Context(), s.store, s.homeDir, ingest.Request{
		PDFPath: tempPath,
		Logger:  s.logger,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("ingest failed: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		DocumentID: result.DocumentID,
		PageCount:  result.PageCount,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDocumentVoters returns the document's voters with duplicate
// serial numbers reconciled.
func (s *Server) handleDocumentVoters(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	voters, err := s.aggregator.DocumentVoters(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voters": voters, "count": len(voters)})
}

// handleStartRun starts an extraction run for a document.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	run, err := s.orchestrator.StartRun(r.Context(), r.PathValue("id"), types.RunConfig{
		MaxPagesPerCall: req.MaxPagesPerCall,
		MaxRetries:      req.MaxRetries,
		CallTimeout:     time.Duration(req.CallTimeoutSecs) * time.Second,
		PromptVersion:   req.PromptVersion,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRunConflict):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetRun returns the run with per-segment attempt state.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orchestrator.GetRunStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.CancelRun(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

// handleRetryRun starts a new run covering only the failed segments of a
// finished run.
func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.orchestrator.RetryFailedSegments(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrRunNotTerminal):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, orchestrator.ErrNoFailedSegments):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, store.ErrRunConflict):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Metrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeStoreError maps store sentinel errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
