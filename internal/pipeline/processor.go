// Package pipeline drives a stored tax document through its processing
// lifecycle: claim, classify, extract, persist, audit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acctax/taxflow/internal/blobstore"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
	"github.com/acctax/taxflow/internal/extract"
	"github.com/acctax/taxflow/internal/metrics"
	"github.com/acctax/taxflow/internal/repository"
)

// Audit step labels. These are user-visible on the dashboard history view;
// keep them human-readable.
const (
	stepTriggerActivated = "Blob trigger activated"
	stepReadyForAI       = "Ready for AI processing"
	stepExtractionDone   = "Extraction completed"
	stepProcessingError  = "Processing error"
)

// Options bound the per-run credential window and extraction latency.
type Options struct {
	// SASClockSkew backdates the access URL's validity start to tolerate
	// clock drift between us and the storage account.
	SASClockSkew time.Duration
	// SASValidity is the access URL lifetime; it must outlive the
	// extraction service's worst-case processing time.
	SASValidity time.Duration
	// ExtractTimeout bounds the blocking extraction call.
	ExtractTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SASClockSkew <= 0 {
		o.SASClockSkew = 5 * time.Minute
	}
	if o.SASValidity <= 0 {
		o.SASValidity = time.Hour
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 3 * time.Minute
	}
	return o
}

// Processor is the document lifecycle engine. Each trigger notification is
// handled by one independent HandleBlobCreated call; the processor itself
// holds no mutable state, so calls may run concurrently.
type Processor struct {
	logger    *slog.Logger
	docs      repository.DocumentRepository
	audit     repository.AuditRepository
	access    blobstore.AccessIssuer
	extractor extract.FieldExtractor
	opts      Options
}

func NewProcessor(logger *slog.Logger, docs repository.DocumentRepository, audit repository.AuditRepository, access blobstore.AccessIssuer, extractor extract.FieldExtractor, opts Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:    logger,
		docs:      docs,
		audit:     audit,
		access:    access,
		extractor: extractor,
		opts:      opts.withDefaults(),
	}
}

// HandleBlobCreated processes one blob-created notification to a terminal
// document state. A claim miss (no pending document at the path) ends the
// run cleanly: that is the designed defense against at-least-once trigger
// delivery, not an error. Every other fault routes through the recovery
// path and is re-raised so the hosting trigger infrastructure can apply
// its own redelivery policy.
func (p *Processor) HandleBlobCreated(ctx context.Context, n blobstore.Notification) error {
	obj, err := blobstore.Resolve(n)
	if err != nil {
		p.logger.Error("pipeline.resolve.failed", "error", err)
		metrics.DocumentsProcessed.WithLabelValues("error").Inc()
		return err
	}

	log := p.logger.With("blob_path", obj.Path, "filename", obj.Filename)
	log.Info("pipeline.trigger", "container", obj.Container)

	claim, err := p.docs.ClaimPendingByPath(ctx, obj.Path)
	if errors.Is(err, common.ErrNotFound) {
		// Already claimed by a prior delivery, or not a tracked document.
		log.Warn("pipeline.claim.miss")
		metrics.DocumentsProcessed.WithLabelValues("claim_miss").Inc()
		return nil
	}
	if err != nil {
		return p.fail(ctx, 0, obj, err)
	}
	log = log.With("document_id", claim.ID)
	log.Info("pipeline.claim.won", "type", claim.DocumentType)

	if err := p.audit.Append(ctx, claim.ID, stepTriggerActivated, "success",
		fmt.Sprintf("File: %s, Type: %s", obj.Filename, typeLabel(claim)), nil); err != nil {
		return p.fail(ctx, claim.ID, obj, err)
	}

	if !p.extractor.Supported(claim.DocumentType) {
		// Deliberate deferred state: no trained model for this type yet.
		if err := p.docs.MarkReadyForAI(ctx, claim.ID); err != nil {
			return p.fail(ctx, claim.ID, obj, err)
		}
		if err := p.audit.Append(ctx, claim.ID, stepReadyForAI, "success",
			"File validated and ready for Document Intelligence", nil); err != nil {
			return p.fail(ctx, claim.ID, obj, err)
		}
		log.Info("pipeline.deferred", "type", claim.DocumentType)
		metrics.DocumentsProcessed.WithLabelValues("ready_for_ai").Inc()
		return nil
	}

	res, err := p.runExtraction(ctx, claim, obj)
	if err != nil {
		return p.fail(ctx, claim.ID, obj, err)
	}

	fields := make([]entity.ExtractedField, 0, len(res.Fields))
	for _, f := range res.Fields {
		if f.Value == "" {
			continue
		}
		fields = append(fields, entity.ExtractedField{
			DocumentID: claim.ID,
			FieldName:  f.Name,
			FieldValue: f.Value,
			Confidence: f.Confidence,
		})
	}
	avg := res.AvgConfidence()

	if err := p.docs.CompleteWithFields(ctx, claim.ID, avg, fields); err != nil {
		return p.fail(ctx, claim.ID, obj, err)
	}
	if err := p.audit.Append(ctx, claim.ID, stepExtractionDone, "success",
		fmt.Sprintf("Fields: %d, Avg confidence: %.2f%%", len(fields), avg*100), nil); err != nil {
		return p.fail(ctx, claim.ID, obj, err)
	}

	log.Info("pipeline.completed", "fields", len(fields), "avg_confidence", avg)
	metrics.DocumentsProcessed.WithLabelValues("completed").Inc()
	return nil
}

// runExtraction issues a fresh time-bounded read credential and calls the
// extraction backend, bounded by the configured timeout.
func (p *Processor) runExtraction(ctx context.Context, claim *entity.Document, obj blobstore.Object) (*extract.Result, error) {
	now := time.Now()
	accessURL, err := p.access.IssueReadAccess(obj, now.Add(-p.opts.SASClockSkew), now.Add(p.opts.SASValidity))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.ExtractTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.extractor.Extract(ctx, claim.DocumentType, accessURL)
	metrics.ExtractionDuration.WithLabelValues(string(claim.DocumentType)).Observe(time.Since(start).Seconds())
	return res, err
}

// fail is the single recovery path: best-effort error status and error
// audit, each attempted independently, then the original error re-raised.
// A failure inside recovery is logged but never masks the cause.
func (p *Processor) fail(ctx context.Context, documentID int64, obj blobstore.Object, cause error) error {
	log := p.logger.With("blob_path", obj.Path, "document_id", documentID)
	log.Error("pipeline.run.failed", "error", cause)
	metrics.DocumentsProcessed.WithLabelValues("error").Inc()

	// Recovery writes must survive cancellation of the run itself.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if documentID == 0 {
		id, err := p.docs.FindIDByPath(rctx, obj.Path)
		if err != nil {
			log.Error("pipeline.recovery.resolve_failed", "error", err)
			return cause
		}
		documentID = id
	}

	if err := p.docs.MarkError(rctx, documentID, cause.Error()); err != nil {
		log.Error("pipeline.recovery.mark_error_failed", "error", err)
	}

	detail := fmt.Sprintf("%+v", cause)
	if err := p.audit.Append(rctx, documentID, stepProcessingError, "error", cause.Error(), &detail); err != nil {
		log.Error("pipeline.recovery.audit_failed", "error", err)
	}

	return cause
}

func typeLabel(d *entity.Document) string {
	if d.DocumentType == "" {
		return "unknown"
	}
	return string(d.DocumentType)
}
