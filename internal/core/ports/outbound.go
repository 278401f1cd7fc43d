package ports

import (
	"context"
	"io"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

// AnalysisBackend is the portal backend's lab-document API surface.
type AnalysisBackend interface {
	// Analyze uploads the file for extraction. The OCR variant of the call
	// tolerates materially longer latency than the standard one.
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)

	// CheckSimilarity classifies (section, metric) pairs against stored data.
	// Best effort: callers swallow failures.
	CheckSimilarity(ctx context.Context, req domain.SimilarityRequest) (*domain.SimilarityReport, error)

	// CreateRecords persists the reviewed metrics plus the document in one
	// bulk call. A content collision comes back as a duplicate branch, not an
	// error.
	CreateRecords(ctx context.Context, sub domain.RecordSubmission) (*domain.SubmissionResult, error)

	// CreateDocument persists the document alone, with no derived records.
	CreateDocument(ctx context.Context, doc domain.Document) (*domain.SubmissionResult, error)

	// ReplaceFile swaps the stored file of an existing document (edit mode).
	ReplaceFile(ctx context.Context, documentID string, req domain.AnalysisRequest) error

	// UpdateDocument updates metadata of an existing document (edit mode).
	UpdateDocument(ctx context.Context, doc domain.Document) error
}

// FilePreflight inspects an uploaded file locally before any network call.
type FilePreflight interface {
	Inspect(filename string, content []byte) (domain.FileInsight, error)
}

// ObjectStorage retains a copy of each uploaded source document.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventBus carries session lifecycle events between the api and the worker.
type EventBus interface {
	PublishSessionSaved(ctx context.Context, event domain.SessionSavedEvent) error
	SubscribeSessionSaved(ctx context.Context, handler func(context.Context, domain.SessionSavedEvent) error) error
}

// AuditStore persists the ingestion audit trail.
type AuditStore interface {
	RecordIntake(ctx context.Context, audit *domain.IntakeAudit) error
}

// ReportBuilder renders a reviewed session as a downloadable spreadsheet.
type ReportBuilder interface {
	Build(snapshot *domain.SessionSnapshot) ([]byte, error)
}
