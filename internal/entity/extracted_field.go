package entity

import "time"

// ExtractedField is one (document, field name) -> value pair produced by a
// successful extraction. Rows are append-only.
type ExtractedField struct {
	DocumentID         int64     `json:"document_id"`
	FieldName          string    `json:"field_name"`
	FieldValue         string    `json:"field_value"`
	Confidence         float64   `json:"confidence"`
	ExtractedTimestamp time.Time `json:"extracted_timestamp"`
}
