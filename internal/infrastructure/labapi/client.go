package labapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mariankugiel/labintake/internal/core/domain"
	"github.com/mariankugiel/labintake/internal/infrastructure/auth"
	"github.com/mariankugiel/labintake/internal/infrastructure/resilience"
)

// Config sizes the two latency classes of the analysis backend: the standard
// extraction call finishes in tens of seconds, the OCR path can take minutes.
type Config struct {
	BaseURL         string
	AnalysisTimeout time.Duration
	OCRTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.AnalysisTimeout <= 0 {
		out.AnalysisTimeout = 45 * time.Second
	}
	if out.OCRTimeout <= 0 {
		out.OCRTimeout = 3 * time.Minute
	}
	return out
}

// Client talks to the portal backend's lab-document API.
type Client struct {
	baseURL  string
	std      *http.Client
	long     *http.Client
	tokens   *auth.TokenSource
	executor *resilience.Executor
}

func New(cfg Config, tokens *auth.TokenSource, executor *resilience.Executor) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		std:      &http.Client{Timeout: cfg.AnalysisTimeout},
		long:     &http.Client{Timeout: cfg.OCRTimeout},
		tokens:   tokens,
		executor: executor,
	}
}

type wireMetric struct {
	Name           string  `json:"metric_name"`
	Value          string  `json:"value"`
	Unit           string  `json:"unit"`
	ReferenceRange string  `json:"reference"`
	Section        string  `json:"type_of_analysis"`
	DateOfValue    string  `json:"date_of_value"`
	Confidence     float64 `json:"confidence"`
}

type wireExistingDocument struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type analyzeResponse struct {
	Success            bool                  `json:"success"`
	Message            string                `json:"message,omitempty"`
	LabData            []wireMetric          `json:"lab_data"`
	TranslatedData     []wireMetric          `json:"translated_data"`
	DetectedLanguage   string                `json:"detected_language"`
	UserLanguage       string                `json:"user_language"`
	TranslationApplied bool                  `json:"translation_applied"`
	SuggestOCR         bool                  `json:"suggest_ocr"`
	S3URL              string                `json:"s3_url"`
	DuplicateFound     bool                  `json:"duplicate_found"`
	ExistingDocument   *wireExistingDocument `json:"existing_document"`
}

// Analyze uploads the document for extraction. The OCR variant goes through
// the long-timeout client; the two are never issued concurrently by callers.
func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	fields := map[string]string{
		"doc_date": req.DocDate,
		"doc_type": req.DocType,
		"provider": req.Provider,
	}
	if req.UseOCR {
		fields["use_ocr"] = "true"
	}

	httpClient := c.std
	operation := "analyze"
	if req.UseOCR {
		httpClient = c.long
		operation = "analyze_ocr"
	}

	var resp analyzeResponse
	call := func(ctx context.Context) error {
		return c.postMultipart(ctx, httpClient, http.MethodPost, "/lab-documents/upload", req.FileName, req.Content, fields, &resp, operation)
	}
	if err := c.execute(ctx, operation, call, classifyInteractiveError); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("analysis backend reported failure: %s", strings.TrimSpace(resp.Message))
	}

	result := &domain.AnalysisResult{
		LabData:            toRawMetrics(resp.LabData),
		TranslatedData:     toRawMetrics(resp.TranslatedData),
		DetectedLanguage:   resp.DetectedLanguage,
		UserLanguage:       resp.UserLanguage,
		TranslationApplied: resp.TranslationApplied,
		SuggestOCR:         resp.SuggestOCR,
		S3URL:              resp.S3URL,
		DuplicateFound:     resp.DuplicateFound,
		ExistingDocument:   toExistingDocument(resp.ExistingDocument),
	}
	return result, nil
}

type similarityRequest struct {
	Sections           []string                `json:"sections"`
	Metrics            []similarityRequestPair `json:"metrics"`
	HealthRecordTypeID int                     `json:"health_record_type_id"`
}

type similarityRequestPair struct {
	Section string `json:"section"`
	Metric  string `json:"metric"`
}

type similarityAnnotation struct {
	Section             string  `json:"section,omitempty"`
	Metric              string  `json:"metric,omitempty"`
	Name                string  `json:"name,omitempty"`
	Status              string  `json:"status"`
	SimilarityScore     float64 `json:"similarity_score,omitempty"`
	ExistingID          string  `json:"existing_id,omitempty"`
	ExistingDisplayName string  `json:"existing_display_name,omitempty"`
}

type similarityResponse struct {
	Success  bool                   `json:"success"`
	Sections []similarityAnnotation `json:"sections"`
	Metrics  []similarityAnnotation `json:"metrics"`
}

// CheckSimilarity classifies (section, metric) pairs against stored data.
// Retried: it is idempotent and best-effort callers want the answer if it is
// cheaply available.
func (c *Client) CheckSimilarity(ctx context.Context, req domain.SimilarityRequest) (*domain.SimilarityReport, error) {
	pairs := make([]similarityRequestPair, 0, len(req.Metrics))
	for _, key := range req.Metrics {
		pairs = append(pairs, similarityRequestPair{Section: key.Section, Metric: key.Metric})
	}
	payload := similarityRequest{
		Sections:           req.Sections,
		Metrics:            pairs,
		HealthRecordTypeID: req.HealthRecordTypeID,
	}

	var resp similarityResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, c.std, http.MethodPost, "/lab-documents/check-similarity", payload, &resp, "check_similarity")
	}
	if err := c.execute(ctx, "check_similarity", call, classifyRetryableError); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("similarity backend reported failure")
	}

	report := &domain.SimilarityReport{
		Sections: make(map[string]domain.SimilarityAnnotation, len(resp.Sections)),
		Metrics:  make(map[domain.SimilarityKey]domain.SimilarityAnnotation, len(resp.Metrics)),
	}
	for _, ann := range resp.Sections {
		name := ann.Name
		if name == "" {
			name = ann.Section
		}
		report.Sections[name] = toAnnotation(ann)
	}
	for _, ann := range resp.Metrics {
		key := domain.SimilarityKey{Section: ann.Section, Metric: ann.Metric}
		report.Metrics[key] = toAnnotation(ann)
	}
	return report, nil
}

type bulkRequest struct {
	Records          []wireMetric `json:"records"`
	FileName         string       `json:"file_name"`
	Description      string       `json:"description,omitempty"`
	S3URL            string       `json:"s3_url,omitempty"`
	LabTestDate      string       `json:"lab_test_date,omitempty"`
	Provider         string       `json:"provider,omitempty"`
	DocumentType     string       `json:"document_type,omitempty"`
	DetectedLanguage string       `json:"detected_language,omitempty"`
}

type submissionResponse struct {
	Success             bool                  `json:"success"`
	Message             string                `json:"message,omitempty"`
	MedicalDocumentID   string                `json:"medical_document_id"`
	CreatedRecordsCount int                   `json:"created_records_count"`
	CreatedRecords      []string              `json:"created_records"`
	UpdatedRecords      []string              `json:"updated_records"`
	DuplicateFound      bool                  `json:"duplicate_found"`
	ExistingDocument    *wireExistingDocument `json:"existing_document"`
}

// CreateRecords persists reviewed metrics and the document in one bulk call.
func (c *Client) CreateRecords(ctx context.Context, sub domain.RecordSubmission) (*domain.SubmissionResult, error) {
	records := make([]wireMetric, 0, len(sub.Records))
	for _, rec := range sub.Records {
		records = append(records, wireMetric{
			Name:           rec.Name,
			Value:          rec.Value,
			Unit:           rec.Unit,
			ReferenceRange: rec.Reference,
			Section:        rec.Section,
			DateOfValue:    rec.DateOfValue,
		})
	}
	payload := bulkRequest{
		Records:          records,
		FileName:         sub.FileName,
		Description:      sub.Description,
		S3URL:            sub.S3URL,
		LabTestDate:      sub.LabTestDate,
		Provider:         sub.Provider,
		DocumentType:     sub.DocumentType,
		DetectedLanguage: sub.DetectedLanguage,
	}

	var resp submissionResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, c.std, http.MethodPost, "/lab-documents/bulk", payload, &resp, "bulk_create")
	}
	if err := c.execute(ctx, "bulk_create", call, classifyInteractiveError); err != nil {
		return nil, err
	}
	return toSubmissionResult(resp)
}

type documentRequest struct {
	FileName         string `json:"file_name"`
	Description      string `json:"description,omitempty"`
	DocumentType     string `json:"document_type,omitempty"`
	Provider         string `json:"provider,omitempty"`
	LabTestDate      string `json:"lab_test_date,omitempty"`
	S3URL            string `json:"s3_url,omitempty"`
	DetectedLanguage string `json:"detected_language,omitempty"`
}

// CreateDocument persists the document metadata alone, no derived records.
func (c *Client) CreateDocument(ctx context.Context, doc domain.Document) (*domain.SubmissionResult, error) {
	payload := documentRequest{
		FileName:         doc.FileName,
		Description:      doc.Description,
		DocumentType:     doc.DocumentType,
		Provider:         doc.Provider,
		LabTestDate:      doc.LabTestDate,
		S3URL:            doc.S3URL,
		DetectedLanguage: doc.DetectedLanguage,
	}

	var resp submissionResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, c.std, http.MethodPost, "/lab-documents", payload, &resp, "create_document")
	}
	if err := c.execute(ctx, "create_document", call, classifyInteractiveError); err != nil {
		return nil, err
	}
	return toSubmissionResult(resp)
}

// ReplaceFile swaps the stored file of an existing document.
func (c *Client) ReplaceFile(ctx context.Context, documentID string, req domain.AnalysisRequest) error {
	var resp submissionResponse
	path := fmt.Sprintf("/lab-documents/%s/replace-file", documentID)
	call := func(ctx context.Context) error {
		return c.postMultipart(ctx, c.std, http.MethodPut, path, req.FileName, req.Content, nil, &resp, "replace_file")
	}
	if err := c.execute(ctx, "replace_file", call, classifyInteractiveError); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("replace file reported failure: %s", strings.TrimSpace(resp.Message))
	}
	return nil
}

// UpdateDocument updates metadata of an existing document.
func (c *Client) UpdateDocument(ctx context.Context, doc domain.Document) error {
	payload := documentRequest{
		FileName:     doc.FileName,
		Description:  doc.Description,
		DocumentType: doc.DocumentType,
		Provider:     doc.Provider,
		LabTestDate:  doc.LabTestDate,
	}

	var resp submissionResponse
	path := fmt.Sprintf("/lab-documents/%s", doc.ID)
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, c.std, http.MethodPut, path, payload, &resp, "update_document")
	}
	if err := c.execute(ctx, "update_document", call, classifyInteractiveError); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("update document reported failure: %s", strings.TrimSpace(resp.Message))
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error, classifier resilience.ErrorClassifier) error {
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "labapi."+operation, call, classifier)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func toRawMetrics(in []wireMetric) []domain.RawMetric {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.RawMetric, 0, len(in))
	for _, m := range in {
		out = append(out, domain.RawMetric{
			Name:           m.Name,
			Value:          m.Value,
			Unit:           m.Unit,
			ReferenceRange: m.ReferenceRange,
			Section:        m.Section,
			DateOfValue:    m.DateOfValue,
			Confidence:     m.Confidence,
		})
	}
	return out
}

func toExistingDocument(in *wireExistingDocument) *domain.ExistingDocument {
	if in == nil {
		return nil
	}
	return &domain.ExistingDocument{
		ID:         in.ID,
		FileName:   in.FileName,
		UploadedAt: in.UploadedAt,
	}
}

func toAnnotation(in similarityAnnotation) domain.SimilarityAnnotation {
	return domain.SimilarityAnnotation{
		Status:              domain.SimilarityStatus(in.Status),
		SimilarityScore:     in.SimilarityScore,
		ExistingID:          in.ExistingID,
		ExistingDisplayName: in.ExistingDisplayName,
	}
}

func toSubmissionResult(resp submissionResponse) (*domain.SubmissionResult, error) {
	if resp.DuplicateFound {
		existing := toExistingDocument(resp.ExistingDocument)
		if existing == nil {
			existing = &domain.ExistingDocument{}
		}
		return &domain.SubmissionResult{Duplicate: existing}, nil
	}
	if !resp.Success {
		return nil, fmt.Errorf("submission reported failure: %s", strings.TrimSpace(resp.Message))
	}
	created := resp.CreatedRecordsCount
	if created == 0 && len(resp.CreatedRecords) > 0 {
		created = len(resp.CreatedRecords)
	}
	return &domain.SubmissionResult{
		Outcome: &domain.SubmissionOutcome{
			MedicalDocumentID: resp.MedicalDocumentID,
			CreatedRecords:    created,
			UpdatedRecords:    resp.UpdatedRecords,
		},
	}, nil
}
