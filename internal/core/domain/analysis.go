package domain

import "time"

// AnalysisRequest carries one document to the analysis backend. UseOCR selects
// the slow OCR extraction path and its extended timeout.
type AnalysisRequest struct {
	FileName string
	Content  []byte
	DocDate  string
	DocType  string
	Provider string
	UseOCR   bool
}

// RawMetric is a metric exactly as the analysis backend returned it, before
// date normalization and range parsing.
type RawMetric struct {
	Name           string  `json:"metric_name"`
	Value          string  `json:"value"`
	Unit           string  `json:"unit"`
	ReferenceRange string  `json:"reference"`
	Section        string  `json:"type_of_analysis"`
	DateOfValue    string  `json:"date_of_value"`
	Confidence     float64 `json:"confidence"`
}

type AnalysisResult struct {
	LabData            []RawMetric       `json:"lab_data"`
	TranslatedData     []RawMetric       `json:"translated_data,omitempty"`
	DetectedLanguage   string            `json:"detected_language,omitempty"`
	UserLanguage       string            `json:"user_language,omitempty"`
	TranslationApplied bool              `json:"translation_applied,omitempty"`
	SuggestOCR         bool              `json:"suggest_ocr,omitempty"`
	S3URL              string            `json:"s3_url,omitempty"`
	DuplicateFound     bool              `json:"duplicate_found,omitempty"`
	ExistingDocument   *ExistingDocument `json:"existing_document,omitempty"`
}

// SimilarityKey identifies one (section, metric) pair sent to the classifier.
type SimilarityKey struct {
	Section string `json:"section"`
	Metric  string `json:"metric"`
}

type SimilarityRequest struct {
	Sections           []string        `json:"sections"`
	Metrics            []SimilarityKey `json:"metrics"`
	HealthRecordTypeID int             `json:"health_record_type_id"`
}

type SimilarityReport struct {
	Sections map[string]SimilarityAnnotation        `json:"sections"`
	Metrics  map[SimilarityKey]SimilarityAnnotation `json:"-"`
}

// MetricRecord is one reviewed metric in the shape the bulk-creation endpoint
// expects: edited scalar fields merged onto original-language structural
// fields.
type MetricRecord struct {
	Section     string `json:"type_of_analysis"`
	Name        string `json:"metric_name"`
	Value       string `json:"value"`
	Unit        string `json:"unit"`
	Reference   string `json:"reference"`
	DateOfValue string `json:"date_of_value"`
}

type RecordSubmission struct {
	Records          []MetricRecord `json:"records"`
	FileName         string         `json:"file_name"`
	Description      string         `json:"description,omitempty"`
	S3URL            string         `json:"s3_url,omitempty"`
	LabTestDate      string         `json:"lab_test_date,omitempty"`
	Provider         string         `json:"provider,omitempty"`
	DocumentType     string         `json:"document_type,omitempty"`
	DetectedLanguage string         `json:"detected_language,omitempty"`
}

// SubmissionResult is either a saved outcome or a duplicate branch requiring
// an explicit user decision; exactly one side is set.
type SubmissionResult struct {
	Outcome   *SubmissionOutcome
	Duplicate *ExistingDocument
}

// MetricPatch is a user edit for one review row. Nil fields are untouched;
// a non-nil Reference replaces both bounds and rerenders the display string.
type MetricPatch struct {
	Name      *string   `json:"metric_name,omitempty"`
	Value     *string   `json:"value,omitempty"`
	Unit      *string   `json:"unit,omitempty"`
	Date      *string   `json:"date_of_value,omitempty"`
	Reference *RefRange `json:"reference,omitempty"`
}

func (p MetricPatch) IsZero() bool {
	return p.Name == nil && p.Value == nil && p.Unit == nil && p.Date == nil && p.Reference == nil
}

// ReviewedMetric is the display form of one review row.
type ReviewedMetric struct {
	ExtractedMetric
	Similarity *SimilarityAnnotation `json:"similarity,omitempty"`
	Edited     bool                  `json:"edited,omitempty"`
}

// SessionSnapshot is the read model of an upload session handed to the API
// layer and the report builder.
type SessionSnapshot struct {
	ID                 string                          `json:"id"`
	State              SessionState                    `json:"state"`
	Document           Document                        `json:"document"`
	DetectedLanguage   string                          `json:"detected_language,omitempty"`
	UserLanguage       string                          `json:"user_language,omitempty"`
	TranslationApplied bool                            `json:"translation_applied,omitempty"`
	OCRUsed            bool                            `json:"ocr_used,omitempty"`
	Metrics            []ReviewedMetric                `json:"metrics,omitempty"`
	SectionSimilarity  map[string]SimilarityAnnotation `json:"section_similarity,omitempty"`
	Duplicate          *ExistingDocument               `json:"duplicate,omitempty"`
	Outcome            *SubmissionOutcome              `json:"outcome,omitempty"`
	LastError          string                          `json:"last_error,omitempty"`
	CreatedAt          time.Time                       `json:"created_at"`
	UpdatedAt          time.Time                       `json:"updated_at"`
}

// SessionSavedEvent is published after a session reaches Saved and feeds the
// audit worker.
type SessionSavedEvent struct {
	SessionID        string    `json:"session_id"`
	DocumentID       string    `json:"document_id"`
	FileName         string    `json:"file_name"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	CreatedRecords   int       `json:"created_records"`
	UpdatedRecords   int       `json:"updated_records"`
	Rejected         bool      `json:"rejected"`
	OCRUsed          bool      `json:"ocr_used"`
	SavedAt          time.Time `json:"saved_at"`
}

// IntakeAudit is the persisted form of a SessionSavedEvent.
type IntakeAudit struct {
	ID               string
	SessionID        string
	DocumentID       string
	FileName         string
	DetectedLanguage string
	CreatedRecords   int
	UpdatedRecords   int
	Rejected         bool
	OCRUsed          bool
	SavedAt          time.Time
	RecordedAt       time.Time
}

// FileInsight is the local preflight result for an uploaded file.
type FileInsight struct {
	PageCount int
	HasText   bool
}
