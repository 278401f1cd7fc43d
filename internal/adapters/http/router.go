package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mariankugiel/labintake/internal/core/domain"
	"github.com/mariankugiel/labintake/internal/core/ports"
	"github.com/mariankugiel/labintake/internal/observability/metrics"
)

type Options struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
	MaxUploadBytes   int64
}

func (o Options) withDefaults() Options {
	out := o
	if out.Service == "" {
		out.Service = "api"
	}
	if out.BackpressureWait <= 0 {
		out.BackpressureWait = 2 * time.Second
	}
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = 26 << 20
	}
	return out
}

type Router struct {
	intake  ports.IntakeService
	editor  ports.DocumentEditor
	reports ports.ReportBuilder
	metrics *metrics.HTTPServerMetrics
	opts    Options
}

func NewRouter(
	intake ports.IntakeService,
	editor ports.DocumentEditor,
	reports ports.ReportBuilder,
	m *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	return &Router{
		intake:  intake,
		editor:  editor,
		reports: reports,
		metrics: m,
		opts:    opts.withDefaults(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("GET /v1/sessions/{session_id}", rt.getSession)
	mux.HandleFunc("DELETE /v1/sessions/{session_id}", rt.closeSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/file", rt.analyzeFile)
	mux.HandleFunc("PATCH /v1/sessions/{session_id}/metrics/{metric_id}", rt.editMetric)
	mux.HandleFunc("DELETE /v1/sessions/{session_id}/metrics/{metric_id}", rt.removeMetric)
	mux.HandleFunc("POST /v1/sessions/{session_id}/confirm", rt.confirmSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/reject", rt.rejectSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/submit", rt.submitSession)
	mux.HandleFunc("POST /v1/sessions/{session_id}/cancel-duplicate", rt.cancelDuplicate)
	mux.HandleFunc("GET /v1/sessions/{session_id}/export", rt.exportSession)

	mux.HandleFunc("PUT /v1/documents/{document_id}", rt.updateDocument)
	mux.HandleFunc("PUT /v1/documents/{document_id}/file", rt.replaceDocumentFile)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName     string `json:"file_name"`
		Description  string `json:"description"`
		DocumentType string `json:"document_type"`
		Provider     string `json:"provider"`
		LabTestDate  string `json:"lab_test_date"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}

	snap, err := rt.intake.CreateSession(r.Context(), domain.Document{
		FileName:     req.FileName,
		Description:  req.Description,
		DocumentType: req.DocumentType,
		Provider:     req.Provider,
		LabTestDate:  req.LabTestDate,
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.GetSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.intake.Close(r.Context(), r.PathValue("session_id")); err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) analyzeFile(w http.ResponseWriter, r *http.Request) {
	filename, content, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	snap, err := rt.intake.AnalyzeFile(r.Context(), r.PathValue("session_id"), filename, content)
	if rt.metrics != nil {
		ocrUsed := snap != nil && snap.OCRUsed
		metricCount := 0
		if snap != nil {
			metricCount = len(snap.Metrics)
		}
		rt.metrics.RecordAnalysis(rt.opts.Service, ocrUsed, metricCount, time.Since(start), err)
	}
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) editMetric(w http.ResponseWriter, r *http.Request) {
	var patch domain.MetricPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	snap, err := rt.intake.EditMetric(r.Context(), r.PathValue("session_id"), r.PathValue("metric_id"), patch)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) removeMetric(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.RemoveMetric(r.Context(), r.PathValue("session_id"), r.PathValue("metric_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) confirmSession(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.Confirm(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) rejectSession(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.Reject(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// submitSession sends the session to the backend. A duplicate response is not
// a failure: the session snapshot rides along in the 409 body so the caller
// can present the choice, and re-submitting with ?continue=true saves anyway.
func (rt *Router) submitSession(w http.ResponseWriter, r *http.Request) {
	continueDuplicate := r.URL.Query().Get("continue") == "true"

	snap, err := rt.intake.Submit(r.Context(), r.PathValue("session_id"), continueDuplicate)

	if rt.metrics != nil {
		outcome := "saved"
		created := 0
		switch {
		case err != nil && domain.IsKind(err, domain.ErrDuplicateDocument):
			outcome = "duplicate"
		case err != nil:
			outcome = "error"
		case snap != nil && snap.Outcome != nil:
			created = snap.Outcome.CreatedRecords
		}
		rt.metrics.RecordSubmission(rt.opts.Service, outcome, created)
	}

	if err != nil {
		if domain.IsKind(err, domain.ErrDuplicateDocument) && snap != nil {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "duplicate document detected",
				"session": snap,
			})
			return
		}
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) cancelDuplicate(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.CancelDuplicate(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (rt *Router) exportSession(w http.ResponseWriter, r *http.Request) {
	snap, err := rt.intake.GetSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if rt.reports == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "export not configured"})
		return
	}

	data, err := rt.reports.Build(snap)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "lab-results-"+snap.ID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (rt *Router) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName     string `json:"file_name"`
		Description  string `json:"description"`
		DocumentType string `json:"document_type"`
		Provider     string `json:"provider"`
		LabTestDate  string `json:"lab_test_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	err := rt.editor.UpdateDocument(r.Context(), domain.Document{
		ID:           r.PathValue("document_id"),
		FileName:     req.FileName,
		Description:  req.Description,
		DocumentType: req.DocumentType,
		Provider:     req.Provider,
		LabTestDate:  req.LabTestDate,
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) replaceDocumentFile(w http.ResponseWriter, r *http.Request) {
	filename, content, ok := rt.readUpload(w, r)
	if !ok {
		return
	}

	if err := rt.editor.ReplaceFile(r.Context(), r.PathValue("document_id"), filename, content); err != nil {
		rt.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return "", nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return "", nil, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file"})
		return "", nil, false
	}
	return fileHeader.Filename, content, true
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
