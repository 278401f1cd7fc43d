package ports

import (
	"context"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

// IntakeService is the inbound contract for the upload-session lifecycle.
type IntakeService interface {
	CreateSession(ctx context.Context, doc domain.Document) (*domain.SessionSnapshot, error)
	GetSession(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	AnalyzeFile(ctx context.Context, sessionID, filename string, content []byte) (*domain.SessionSnapshot, error)
	EditMetric(ctx context.Context, sessionID, metricID string, patch domain.MetricPatch) (*domain.SessionSnapshot, error)
	RemoveMetric(ctx context.Context, sessionID, metricID string) (*domain.SessionSnapshot, error)
	Confirm(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	Reject(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	Submit(ctx context.Context, sessionID string, continueDuplicate bool) (*domain.SessionSnapshot, error)
	CancelDuplicate(ctx context.Context, sessionID string) (*domain.SessionSnapshot, error)
	Close(ctx context.Context, sessionID string) error
}

// DocumentEditor is the inbound contract for edit-mode operations on
// already-saved documents.
type DocumentEditor interface {
	ReplaceFile(ctx context.Context, documentID, filename string, content []byte) error
	UpdateDocument(ctx context.Context, doc domain.Document) error
}
