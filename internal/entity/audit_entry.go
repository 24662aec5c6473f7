package entity

import (
	"time"

	"github.com/acctax/taxflow/constants"
)

// AuditEntry is one immutable processing_audit row. Entries are append-only
// and never rewritten; the dashboard lists them timestamp-descending.
type AuditEntry struct {
	DocumentID     int64                  `json:"document_id"`
	ProcessingStep string                 `json:"processing_step"`
	Outcome        constants.AuditOutcome `json:"outcome"`
	Details        string                 `json:"details,omitempty"`
	ErrorDetails   *string                `json:"error_details,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}
