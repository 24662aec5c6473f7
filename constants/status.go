package constants

// ProcessingStatus is the canonical status for rows in documents.
type ProcessingStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    ProcessingStatus = "pending"      // created by intake, awaiting a blob trigger
	StatusProcessing ProcessingStatus = "processing"   // claimed by the pipeline
	StatusReadyForAI ProcessingStatus = "ready_for_ai" // no trained model yet, parked for later
	StatusCompleted  ProcessingStatus = "completed"    // fields extracted, confidence set
	StatusError      ProcessingStatus = "error"        // terminal failure, message set
)

// transitions holds the allowed forward edges of the document state machine.
// error is additionally reachable from every non-terminal status.
var transitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing, StatusError},
	StatusProcessing: {StatusReadyForAI, StatusCompleted, StatusError},
	StatusReadyForAI: {StatusError},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to ProcessingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the pipeline will never advance this status again.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusReadyForAI
}

// AuditOutcome is the outcome column of processing_audit rows.
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "success"
	AuditError   AuditOutcome = "error"
)
