package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/acctax/taxflow/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// dashboard exports.
type Service struct {
	docs   repository.DocumentRepository
	fields repository.ExtractedFieldRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, fields repository.ExtractedFieldRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, fields: fields, logger: logger}
}

// ExportDocumentsXLSX returns an XLSX workbook for the filtered document
// set: one sheet for documents, one for their extracted fields.
func (s *Service) ExportDocumentsXLSX(ctx context.Context, filter repository.DocumentFilter) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	const docSheet = "Documents"
	const fieldSheet = "Extracted Fields"

	// excelize starts with "Sheet1"; rename it and add the second sheet.
	if err := f.SetSheetName("Sheet1", docSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(fieldSheet); err != nil {
		return nil, err
	}

	docHeaders := []string{
		"Document ID", "Client ID", "File Name", "Document Type",
		"Status", "Confidence", "Tax Year", "Uploaded", "Processed", "Error",
	}
	for i, h := range docHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(docSheet, cell, h)
	}

	fieldHeaders := []string{"Document ID", "Field Name", "Field Value", "Confidence", "Extracted"}
	for i, h := range fieldHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(fieldSheet, cell, h)
	}

	fieldRow := 2
	for row, d := range docs {
		values := []any{
			d.ID, d.ClientID, d.OriginalFileName, string(d.DocumentType),
			string(d.ProcessingStatus), deref(d.Confidence), derefInt(d.TaxYear),
			d.UploadTimestamp.Format(time.RFC3339), formatTime(d.ProcessedTimestamp), derefStr(d.ErrorMessage),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(docSheet, cell, v)
		}

		fields, err := s.fields.ListByDocument(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("query fields for document %d: %w", d.ID, err)
		}
		for _, fld := range fields {
			values := []any{fld.DocumentID, fld.FieldName, fld.FieldValue, fld.Confidence, fld.ExtractedTimestamp.Format(time.RFC3339)}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, fieldRow)
				_ = f.SetCellValue(fieldSheet, cell, v)
			}
			fieldRow++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.documents.ok",
		"documents", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
