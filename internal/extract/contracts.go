package extract

import (
	"context"
	"fmt"

	"github.com/acctax/taxflow/constants"
)

// FieldExtractor turns a stored document into structured fields.
type FieldExtractor interface {
	// Supported reports whether a trained extraction model exists for the
	// document type. Unsupported types are parked, not failed.
	Supported(docType constants.DocumentType) bool

	// Extract submits the document at accessURL to the extraction backend
	// and blocks until a terminal result or ctx deadline. It is
	// long-running (seconds to low minutes); callers bound it with a
	// deadline and may cancel it.
	Extract(ctx context.Context, docType constants.DocumentType, accessURL string) (*Result, error)
}

// Field is one recognized field with the service's certainty in it.
type Field struct {
	Name       string
	Value      string
	Confidence float64
}

// Result is the ordered field list for one analyzed document.
type Result struct {
	Fields []Field
}

// AvgConfidence is the arithmetic mean of all field confidences, 0 when no
// field reported one.
func (r *Result) AvgConfidence() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(r.Fields))
}

// ErrorKind discriminates extraction failures for the pipeline.
type ErrorKind string

const (
	// KindTimeout marks a run that hit the caller's deadline.
	KindTimeout ErrorKind = "timeout"
	// KindNoResult marks a response with zero recognized documents. A
	// supported type producing nothing is an anomaly, not a deferral.
	KindNoResult ErrorKind = "no_result"
	// KindServiceFault marks transport or backend failures.
	KindServiceFault ErrorKind = "service_fault"
)

// Error is a classified extraction failure.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("extraction %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}
