package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
)

// pgFKViolation is the Postgres SQLSTATE for foreign_key_violation.
const pgFKViolation = "23503"

type AuditRepository interface {
	// Append writes one immutable audit row. An entry referencing a
	// document that no longer exists is logged as orphaned and dropped
	// rather than raised: the audit trail must survive partial failures
	// without ever crashing the pipeline.
	Append(ctx context.Context, documentID int64, step string, outcome constants.AuditOutcome, details string, errorDetails *string) error

	// History returns the full trail for a document, newest first.
	History(ctx context.Context, documentID int64) ([]entity.AuditEntry, error)
}

type auditRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuditRepository(pool *pgxpool.Pool, logger *slog.Logger) AuditRepository {
	return &auditRepo{pool: pool, logger: logger}
}

func (r *auditRepo) Append(ctx context.Context, documentID int64, step string, outcome constants.AuditOutcome, details string, errorDetails *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processing_audit (document_id, processing_step, status, details, error_details)
		VALUES ($1, $2, $3, $4, $5)`,
		documentID, step, string(outcome), details, errorDetails)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgFKViolation {
			r.logger.Warn("audit.append.orphaned", "document_id", documentID, "step", step, "outcome", outcome)
			return nil
		}
		r.logger.Error("audit.append.failed", "document_id", documentID, "step", step, "error", err)
		return common.StorageError("append audit", err)
	}
	r.logger.Debug("audit.append.ok", "document_id", documentID, "step", step, "outcome", outcome)
	return nil
}

func (r *auditRepo) History(ctx context.Context, documentID int64) ([]entity.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id, processing_step, status, COALESCE(details, ''), error_details, timestamp
		FROM processing_audit
		WHERE document_id = $1
		ORDER BY timestamp DESC`, documentID)
	if err != nil {
		r.logger.Error("audit.history.failed", "document_id", documentID, "error", err)
		return nil, common.StorageError("audit history", err)
	}
	defer rows.Close()

	var out []entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(&e.DocumentID, &e.ProcessingStep, &e.Outcome, &e.Details, &e.ErrorDetails, &e.Timestamp); err != nil {
			return nil, common.StorageError("scan audit entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("audit history", err)
	}
	return out, nil
}
