package repository

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
)

type ExtractedFieldRepository interface {
	// Insert appends one extracted field row.
	Insert(ctx context.Context, f entity.ExtractedField) error
	ListByDocument(ctx context.Context, documentID int64) ([]entity.ExtractedField, error)
}

type extractedFieldRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewExtractedFieldRepository(pool *pgxpool.Pool, logger *slog.Logger) ExtractedFieldRepository {
	return &extractedFieldRepo{pool: pool, logger: logger}
}

func (r *extractedFieldRepo) Insert(ctx context.Context, f entity.ExtractedField) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extracted_data (document_id, field_name, field_value, confidence)
		VALUES ($1, $2, $3, $4)`,
		f.DocumentID, f.FieldName, f.FieldValue, f.Confidence)
	if err != nil {
		r.logger.Error("extracted.insert.failed", "document_id", f.DocumentID, "field", f.FieldName, "error", err)
		return common.StorageError("insert extracted field", err)
	}
	return nil
}

func (r *extractedFieldRepo) ListByDocument(ctx context.Context, documentID int64) ([]entity.ExtractedField, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id, field_name, field_value, confidence, extracted_timestamp
		FROM extracted_data
		WHERE document_id = $1
		ORDER BY field_name`, documentID)
	if err != nil {
		r.logger.Error("extracted.list.failed", "document_id", documentID, "error", err)
		return nil, common.StorageError("list extracted fields", err)
	}
	defer rows.Close()

	var out []entity.ExtractedField
	for rows.Next() {
		var f entity.ExtractedField
		if err := rows.Scan(&f.DocumentID, &f.FieldName, &f.FieldValue, &f.Confidence, &f.ExtractedTimestamp); err != nil {
			return nil, common.StorageError("scan extracted field", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("list extracted fields", err)
	}
	return out, nil
}
