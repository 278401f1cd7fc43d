package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mariankugiel/labintake/internal/core/domain"
)

// AuditRepository persists one row per saved intake session. The worker is
// the only writer; duplicate deliveries of the same session are collapsed by
// the unique session_id constraint.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026040901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS intake_audit (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	detected_language TEXT,
	created_records INTEGER NOT NULL DEFAULT 0,
	updated_records INTEGER NOT NULL DEFAULT 0,
	rejected BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_used BOOLEAN NOT NULL DEFAULT FALSE,
	saved_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_intake_audit_saved_at ON intake_audit(saved_at DESC);
CREATE INDEX IF NOT EXISTS idx_intake_audit_document_id ON intake_audit(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AuditRepository) RecordIntake(ctx context.Context, audit *domain.IntakeAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.RecordedAt.IsZero() {
		audit.RecordedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO intake_audit (
	id, session_id, document_id, file_name, detected_language,
	created_records, updated_records, rejected, ocr_used, saved_at, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (session_id) DO NOTHING`,
		audit.ID,
		audit.SessionID,
		audit.DocumentID,
		audit.FileName,
		audit.DetectedLanguage,
		audit.CreatedRecords,
		audit.UpdatedRecords,
		audit.Rejected,
		audit.OCRUsed,
		audit.SavedAt,
		audit.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert intake audit: %w", err)
	}
	return nil
}

// RecentIntakes returns the newest audit rows, capped at limit.
func (r *AuditRepository) RecentIntakes(ctx context.Context, limit int) ([]domain.IntakeAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, document_id, file_name, detected_language,
	created_records, updated_records, rejected, ocr_used, saved_at, recorded_at
FROM intake_audit
ORDER BY saved_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query intake audit: %w", err)
	}
	defer rows.Close()

	var out []domain.IntakeAudit
	for rows.Next() {
		var a domain.IntakeAudit
		var lang sql.NullString
		if err := rows.Scan(
			&a.ID, &a.SessionID, &a.DocumentID, &a.FileName, &lang,
			&a.CreatedRecords, &a.UpdatedRecords, &a.Rejected, &a.OCRUsed, &a.SavedAt, &a.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan intake audit: %w", err)
		}
		a.DetectedLanguage = lang.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intake audit: %w", err)
	}
	return out, nil
}
