package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mariankugiel/labintake/internal/core/domain"
	"github.com/mariankugiel/labintake/internal/core/ports"
)

// DocumentEdits handles edit-mode operations on documents that were already
// saved: metadata updates and file replacement.
type DocumentEdits struct {
	backend   ports.AnalysisBackend
	preflight ports.FilePreflight
	storage   ports.ObjectStorage
	logger    *slog.Logger
}

func NewDocumentEdits(
	backend ports.AnalysisBackend,
	preflight ports.FilePreflight,
	storage ports.ObjectStorage,
	logger *slog.Logger,
) *DocumentEdits {
	return &DocumentEdits{
		backend:   backend,
		preflight: preflight,
		storage:   storage,
		logger:    logger,
	}
}

func (d *DocumentEdits) ReplaceFile(ctx context.Context, documentID, filename string, content []byte) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "replace file", fmt.Errorf("document id is required"))
	}
	if _, err := d.preflight.Inspect(filename, content); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "replace file preflight", err)
	}

	storageKey := fmt.Sprintf("%s_%s", documentID, sanitizeFilename(filename))
	if err := d.storage.Save(ctx, storageKey, bytes.NewReader(content)); err != nil {
		d.logger.Warn("source_copy_save_failed", "document_id", documentID, "error", err)
	}

	err := d.backend.ReplaceFile(ctx, documentID, domain.AnalysisRequest{
		FileName: filename,
		Content:  content,
	})
	if err != nil {
		return fmt.Errorf("replace document file: %w", err)
	}
	return nil
}

func (d *DocumentEdits) UpdateDocument(ctx context.Context, doc domain.Document) error {
	if doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "update document", fmt.Errorf("document id is required"))
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := d.backend.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	return nil
}
