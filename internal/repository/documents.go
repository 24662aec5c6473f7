package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
)

// DocumentFilter narrows List results. Zero values mean "no filter".
type DocumentFilter struct {
	ClientID     int64
	Status       constants.ProcessingStatus
	DocumentType constants.DocumentType
}

type DocumentRepository interface {
	// Create inserts a new pending document, returning the full row.
	Create(ctx context.Context, clientID int64, filename, blobPath string, docType constants.DocumentType, taxYear *int) (*entity.Document, error)

	// ClaimPendingByPath atomically transitions the document at blobPath
	// from pending to processing and returns the claimed row. Under
	// concurrent or redelivered triggers exactly one caller wins; every
	// other caller gets common.ErrNotFound, which is an expected no-op,
	// not a failure.
	ClaimPendingByPath(ctx context.Context, blobPath string) (*entity.Document, error)

	// MarkReadyForAI parks a processing document that has no trained
	// extraction model yet.
	MarkReadyForAI(ctx context.Context, id int64) error

	// CompleteWithFields inserts the extracted fields and flips the
	// document to completed in a single transaction, so a fault between
	// the two can never leave fields behind on a non-completed document.
	CompleteWithFields(ctx context.Context, id int64, confidence float64, fields []entity.ExtractedField) error

	// MarkError records a terminal failure with its message. Legal from
	// any non-terminal status.
	MarkError(ctx context.Context, id int64, message string) error

	// FindIDByPath resolves a blob path to its document id; used by the
	// error-recovery path when the original claim context is lost.
	FindIDByPath(ctx context.Context, blobPath string) (int64, error)

	GetByID(ctx context.Context, id int64) (*entity.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]entity.Document, error)
}

type documentRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, logger *slog.Logger) DocumentRepository {
	return &documentRepo{pool: pool, logger: logger}
}

const documentColumns = `document_id, client_id, original_file_name, blob_storage_path,
	document_type, processing_status, confidence, error_message,
	upload_timestamp, processed_timestamp, tax_year`

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var (
		d       entity.Document
		docType *string
	)
	err := row.Scan(&d.ID, &d.ClientID, &d.OriginalFileName, &d.BlobStoragePath,
		&docType, &d.ProcessingStatus, &d.Confidence, &d.ErrorMessage,
		&d.UploadTimestamp, &d.ProcessedTimestamp, &d.TaxYear)
	if err != nil {
		return nil, err
	}
	if docType != nil {
		d.DocumentType = constants.DocumentType(*docType)
	}
	return &d, nil
}

func (r *documentRepo) Create(ctx context.Context, clientID int64, filename, blobPath string, docType constants.DocumentType, taxYear *int) (*entity.Document, error) {
	var docTypeArg *string
	if docType != constants.TypeUnknown {
		s := string(docType)
		docTypeArg = &s
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (client_id, original_file_name, blob_storage_path, document_type, processing_status, tax_year)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+documentColumns,
		clientID, filename, blobPath, docTypeArg, string(constants.StatusPending), taxYear)
	d, err := scanDocument(row)
	if err != nil {
		r.logger.Error("document.create.failed", "client_id", clientID, "blob_path", blobPath, "error", err)
		return nil, common.StorageError("create document", err)
	}
	r.logger.Info("document.create.ok", "document_id", d.ID, "client_id", clientID, "type", d.DocumentType)
	return d, nil
}

func (r *documentRepo) ClaimPendingByPath(ctx context.Context, blobPath string) (*entity.Document, error) {
	// The claim must be atomic with the status read: a single conditional
	// update, not a select followed by an update.
	row := r.pool.QueryRow(ctx, `
		UPDATE documents
		SET processing_status = $1, processed_timestamp = now()
		WHERE blob_storage_path = $2 AND processing_status = $3
		RETURNING `+documentColumns,
		string(constants.StatusProcessing), blobPath, string(constants.StatusPending))
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		r.logger.Error("document.claim.failed", "blob_path", blobPath, "error", err)
		return nil, common.StorageError("claim pending document", err)
	}
	r.logger.Info("document.claim.ok", "document_id", d.ID, "blob_path", blobPath)
	return d, nil
}

func (r *documentRepo) MarkReadyForAI(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET processing_status = $1
		WHERE document_id = $2 AND processing_status = $3`,
		string(constants.StatusReadyForAI), id, string(constants.StatusProcessing))
	if err != nil {
		r.logger.Error("document.mark_ready.failed", "document_id", id, "error", err)
		return common.StorageError("mark ready_for_ai", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidTransition
	}
	r.logger.Info("document.mark_ready.ok", "document_id", id)
	return nil
}

func (r *documentRepo) CompleteWithFields(ctx context.Context, id int64, confidence float64, fields []entity.ExtractedField) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.StorageError("begin complete tx", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range fields {
		if _, err := tx.Exec(ctx, `
			INSERT INTO extracted_data (document_id, field_name, field_value, confidence)
			VALUES ($1, $2, $3, $4)`,
			id, f.FieldName, f.FieldValue, f.Confidence); err != nil {
			r.logger.Error("document.complete.insert_field_failed", "document_id", id, "field", f.FieldName, "error", err)
			return common.StorageError("insert extracted field", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET processing_status = $1, confidence = $2, processed_timestamp = now()
		WHERE document_id = $3 AND processing_status = $4`,
		string(constants.StatusCompleted), confidence, id, string(constants.StatusProcessing))
	if err != nil {
		r.logger.Error("document.complete.failed", "document_id", id, "error", err)
		return common.StorageError("mark completed", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return common.StorageError("commit complete tx", err)
	}
	r.logger.Info("document.complete.ok", "document_id", id, "fields", len(fields), "confidence", confidence)
	return nil
}

func (r *documentRepo) MarkError(ctx context.Context, id int64, message string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $1, error_message = $2, processed_timestamp = now()
		WHERE document_id = $3 AND processing_status = ANY($4)`,
		string(constants.StatusError), message, id,
		[]string{string(constants.StatusPending), string(constants.StatusProcessing), string(constants.StatusReadyForAI)})
	if err != nil {
		r.logger.Error("document.mark_error.failed", "document_id", id, "error", err)
		return common.StorageError("mark error", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidTransition
	}
	r.logger.Warn("document.mark_error.ok", "document_id", id, "message", message)
	return nil
}

func (r *documentRepo) FindIDByPath(ctx context.Context, blobPath string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT document_id FROM documents WHERE blob_storage_path = $1`, blobPath).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, common.StorageError("find document by path", err)
	}
	return id, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.StorageError("get document", err)
	}
	return d, nil
}

func (r *documentRepo) List(ctx context.Context, filter DocumentFilter) ([]entity.Document, error) {
	// Fixed filter shape keeps the query text static; all values bind as
	// typed parameters.
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE ($1 = 0 OR client_id = $1)
		  AND ($2 = '' OR processing_status = $2)
		  AND ($3 = '' OR document_type = $3)
		ORDER BY upload_timestamp DESC`,
		filter.ClientID, string(filter.Status), string(filter.DocumentType))
	if err != nil {
		r.logger.Error("document.list.failed", "error", err)
		return nil, common.StorageError("list documents", err)
	}
	defer rows.Close()

	var out []entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, common.StorageError("scan document", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("list documents", err)
	}
	return out, nil
}
