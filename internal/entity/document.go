package entity

import (
	"time"

	"github.com/acctax/taxflow/constants"
)

// Document represents one stored file moving through the processing
// pipeline, for data transfer between layers.
type Document struct {
	ID                 int64                      `json:"id"`
	ClientID           int64                      `json:"client_id"`
	OriginalFileName   string                     `json:"original_file_name"`
	BlobStoragePath    string                     `json:"blob_storage_path"`
	DocumentType       constants.DocumentType     `json:"document_type,omitempty"`
	ProcessingStatus   constants.ProcessingStatus `json:"processing_status"`
	Confidence         *float64                   `json:"confidence,omitempty"`
	ErrorMessage       *string                    `json:"error_message,omitempty"`
	UploadTimestamp    time.Time                  `json:"upload_timestamp"`
	ProcessedTimestamp *time.Time                 `json:"processed_timestamp,omitempty"`
	TaxYear            *int                       `json:"tax_year,omitempty"`
}
