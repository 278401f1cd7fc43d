package domain

import "time"

// Document is the lab-document metadata carried through an upload session and
// eventually persisted by the portal backend.
type Document struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	Description      string    `json:"description,omitempty"`
	DocumentType     string    `json:"document_type,omitempty"`
	Provider         string    `json:"provider,omitempty"`
	LabTestDate      string    `json:"lab_test_date,omitempty"`
	S3URL            string    `json:"s3_url,omitempty"`
	StoragePath      string    `json:"storage_path,omitempty"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SubmissionOutcome is the backend's verbatim record accounting for a saved
// session, surfaced to the user without reinterpretation.
type SubmissionOutcome struct {
	MedicalDocumentID string   `json:"medical_document_id"`
	CreatedRecords    int      `json:"created_records_count"`
	UpdatedRecords    []string `json:"updated_records,omitempty"`
}
