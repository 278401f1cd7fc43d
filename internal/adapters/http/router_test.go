package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

type intakeFake struct {
	snapshots map[string]*domain.SessionSnapshot
	submitErr error
	closed    []string
}

func newIntakeFake() *intakeFake {
	return &intakeFake{snapshots: make(map[string]*domain.SessionSnapshot)}
}

func (f *intakeFake) CreateSession(_ context.Context, doc domain.Document) (*domain.SessionSnapshot, error) {
	snap := &domain.SessionSnapshot{ID: "sess-1", State: domain.StateIdle, Document: doc}
	f.snapshots[snap.ID] = snap
	return snap, nil
}

func (f *intakeFake) GetSession(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	snap, ok := f.snapshots[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errors.New(sessionID))
	}
	return snap, nil
}

func (f *intakeFake) AnalyzeFile(_ context.Context, sessionID, filename string, _ []byte) (*domain.SessionSnapshot, error) {
	snap, ok := f.snapshots[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", errors.New(sessionID))
	}
	snap.State = domain.StateResultsShown
	snap.Document.FileName = filename
	snap.Metrics = []domain.ReviewedMetric{
		{ExtractedMetric: domain.ExtractedMetric{ID: "m-1", Name: "Hemoglobin", Value: "14.2"}},
	}
	return snap, nil
}

func (f *intakeFake) EditMetric(_ context.Context, sessionID, _ string, _ domain.MetricPatch) (*domain.SessionSnapshot, error) {
	return f.GetSession(context.Background(), sessionID)
}

func (f *intakeFake) RemoveMetric(_ context.Context, sessionID, _ string) (*domain.SessionSnapshot, error) {
	return f.GetSession(context.Background(), sessionID)
}

func (f *intakeFake) Confirm(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return f.GetSession(context.Background(), sessionID)
}

func (f *intakeFake) Reject(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return f.GetSession(context.Background(), sessionID)
}

func (f *intakeFake) Submit(_ context.Context, sessionID string, _ bool) (*domain.SessionSnapshot, error) {
	snap, err := f.GetSession(context.Background(), sessionID)
	if err != nil {
		return nil, err
	}
	if f.submitErr != nil {
		return snap, f.submitErr
	}
	snap.State = domain.StateSaved
	snap.Outcome = &domain.SubmissionOutcome{MedicalDocumentID: "doc-1", CreatedRecords: 1}
	return snap, nil
}

func (f *intakeFake) CancelDuplicate(_ context.Context, sessionID string) (*domain.SessionSnapshot, error) {
	return f.GetSession(context.Background(), sessionID)
}

func (f *intakeFake) Close(_ context.Context, sessionID string) error {
	f.closed = append(f.closed, sessionID)
	delete(f.snapshots, sessionID)
	return nil
}

type editorFake struct {
	replaced []string
	updated  []domain.Document
}

func (f *editorFake) ReplaceFile(_ context.Context, documentID, _ string, _ []byte) error {
	f.replaced = append(f.replaced, documentID)
	return nil
}

func (f *editorFake) UpdateDocument(_ context.Context, doc domain.Document) error {
	f.updated = append(f.updated, doc)
	return nil
}

type reportFake struct{}

func (reportFake) Build(*domain.SessionSnapshot) ([]byte, error) {
	return []byte("PK workbook"), nil
}

func newTestRouter(fake *intakeFake, editor *editorFake, opts Options) http.Handler {
	return NewRouter(fake, editor, reportFake{}, nil, opts).Handler()
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestCreateAndAnalyzeFlow(t *testing.T) {
	fake := newIntakeFake()
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"file_name":"labs.pdf","provider":"LabCorp"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("create session expected 201, got %d: %s", res.Code, res.Body.String())
	}

	var created domain.SessionSnapshot
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Document.Provider != "LabCorp" {
		t.Fatalf("expected provider to carry through, got %q", created.Document.Provider)
	}

	body, contentType := multipartBody(t, "labs.pdf", []byte("%PDF-1.4"))
	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/"+created.ID+"/file", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("analyze expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var analyzed domain.SessionSnapshot
	if err := json.NewDecoder(res.Body).Decode(&analyzed); err != nil {
		t.Fatalf("decode analyze response: %v", err)
	}
	if analyzed.State != domain.StateResultsShown || len(analyzed.Metrics) != 1 {
		t.Fatalf("unexpected analyze snapshot: %+v", analyzed)
	}
}

func TestAnalyzeRequiresFileField(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/file", bytes.NewBufferString("not multipart"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUnknownSessionMapsTo404(t *testing.T) {
	handler := newTestRouter(newIntakeFake(), &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSubmitDuplicateReturns409WithSnapshot(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	fake.submitErr = domain.WrapError(domain.ErrDuplicateDocument, "submit", errors.New("collides with doc-7"))
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/submit", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}

	var resp struct {
		Error   string                  `json:"error"`
		Session *domain.SessionSnapshot `json:"session"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode duplicate response: %v", err)
	}
	if resp.Session == nil || resp.Session.ID != "sess-1" {
		t.Fatalf("expected session snapshot in duplicate response, got %+v", resp)
	}
}

func TestBusySessionMapsTo409(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	fake.submitErr = domain.WrapError(domain.ErrSessionBusy, "submit", errors.New("submission already in flight"))
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/submit", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestAnalysisFailureMapsTo422(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	fake.submitErr = domain.WrapError(domain.ErrAnalysisFailed, "analyze document", errors.New("no extractable lab data"))
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/sess-1/submit", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestCloseSessionReturns204(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(fake.closed) != 1 || fake.closed[0] != "sess-1" {
		t.Fatalf("expected close to reach the service, got %v", fake.closed)
	}
}

func TestExportSetsSpreadsheetHeaders(t *testing.T) {
	fake := newIntakeFake()
	_, _ = fake.CreateSession(context.Background(), domain.Document{})
	handler := newTestRouter(fake, &editorFake{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/export", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if res.Header().Get("Content-Disposition") == "" {
		t.Fatalf("expected attachment disposition")
	}
}

func TestReplaceDocumentFile(t *testing.T) {
	editor := &editorFake{}
	handler := newTestRouter(newIntakeFake(), editor, Options{})

	body, contentType := multipartBody(t, "corrected.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPut, "/v1/documents/doc-42/file", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	if len(editor.replaced) != 1 || editor.replaced[0] != "doc-42" {
		t.Fatalf("expected replace to reach the editor, got %v", editor.replaced)
	}
}

func TestUpdateDocumentMetadata(t *testing.T) {
	editor := &editorFake{}
	handler := newTestRouter(newIntakeFake(), editor, Options{})

	req := httptest.NewRequest(http.MethodPut, "/v1/documents/doc-42",
		bytes.NewBufferString(`{"description":"annual checkup"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(editor.updated) != 1 || editor.updated[0].ID != "doc-42" || editor.updated[0].Description != "annual checkup" {
		t.Fatalf("unexpected update payload: %+v", editor.updated)
	}
}
