package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/blobstore"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/entity"
	"github.com/acctax/taxflow/internal/extract"
	"github.com/acctax/taxflow/internal/repository"
)

// fakeDocs is an in-memory DocumentRepository with the same compare-and-swap
// claim semantics the SQL gateway implements.
type fakeDocs struct {
	mu     sync.Mutex
	seq    int64
	docs   map[int64]*entity.Document
	byPath map[string]int64
	fields map[int64][]entity.ExtractedField

	claimErr    error
	completeErr error
	markErrErr  error
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		docs:   make(map[int64]*entity.Document),
		byPath: make(map[string]int64),
		fields: make(map[int64][]entity.ExtractedField),
	}
}

func (f *fakeDocs) add(path string, docType constants.DocumentType) *entity.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	d := &entity.Document{
		ID:               f.seq,
		ClientID:         1,
		BlobStoragePath:  path,
		DocumentType:     docType,
		ProcessingStatus: constants.StatusPending,
		UploadTimestamp:  time.Now(),
	}
	f.docs[d.ID] = d
	f.byPath[path] = d.ID
	return d
}

func (f *fakeDocs) get(id int64) entity.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

func (f *fakeDocs) Create(ctx context.Context, clientID int64, filename, blobPath string, docType constants.DocumentType, taxYear *int) (*entity.Document, error) {
	d := f.add(blobPath, docType)
	d.ClientID = clientID
	d.OriginalFileName = filename
	return d, nil
}

func (f *fakeDocs) ClaimPendingByPath(ctx context.Context, blobPath string) (*entity.Document, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPath[blobPath]
	if !ok {
		return nil, common.ErrNotFound
	}
	d := f.docs[id]
	if d.ProcessingStatus != constants.StatusPending {
		return nil, common.ErrNotFound
	}
	d.ProcessingStatus = constants.StatusProcessing
	now := time.Now()
	d.ProcessedTimestamp = &now
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) MarkReadyForAI(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	if d == nil || d.ProcessingStatus != constants.StatusProcessing {
		return common.ErrInvalidTransition
	}
	d.ProcessingStatus = constants.StatusReadyForAI
	return nil
}

func (f *fakeDocs) CompleteWithFields(ctx context.Context, id int64, confidence float64, fields []entity.ExtractedField) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	if d == nil || d.ProcessingStatus != constants.StatusProcessing {
		return common.ErrInvalidTransition
	}
	f.fields[id] = append(f.fields[id], fields...)
	d.ProcessingStatus = constants.StatusCompleted
	d.Confidence = &confidence
	return nil
}

func (f *fakeDocs) MarkError(ctx context.Context, id int64, message string) error {
	if f.markErrErr != nil {
		return f.markErrErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	if d == nil || d.ProcessingStatus.Terminal() && d.ProcessingStatus != constants.StatusReadyForAI {
		return common.ErrInvalidTransition
	}
	d.ProcessingStatus = constants.StatusError
	d.ErrorMessage = &message
	return nil
}

func (f *fakeDocs) FindIDByPath(ctx context.Context, blobPath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byPath[blobPath]
	if !ok {
		return 0, common.ErrNotFound
	}
	return id, nil
}

func (f *fakeDocs) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	d := f.get(id)
	return &d, nil
}

func (f *fakeDocs) List(ctx context.Context, filter repository.DocumentFilter) ([]entity.Document, error) {
	return nil, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []entity.AuditEntry
	fail    error
}

func (f *fakeAudit) Append(ctx context.Context, documentID int64, step string, outcome constants.AuditOutcome, details string, errorDetails *string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entity.AuditEntry{
		DocumentID:     documentID,
		ProcessingStep: step,
		Outcome:        outcome,
		Details:        details,
		ErrorDetails:   errorDetails,
		Timestamp:      time.Now(),
	})
	return nil
}

func (f *fakeAudit) History(ctx context.Context, documentID int64) ([]entity.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.AuditEntry(nil), f.entries...), nil
}

func (f *fakeAudit) steps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.ProcessingStep)
	}
	return out
}

type fakeIssuer struct {
	fail  error
	calls int
}

func (f *fakeIssuer) IssueReadAccess(obj blobstore.Object, validFrom, validUntil time.Time) (string, error) {
	f.calls++
	if f.fail != nil {
		return "", f.fail
	}
	return "https://signed.example/" + obj.Name + "?sig=x", nil
}

type fakeExtractor struct {
	supported map[constants.DocumentType]bool
	result    *extract.Result
	err       error
	calls     int
}

func (f *fakeExtractor) Supported(docType constants.DocumentType) bool {
	return f.supported[docType]
}

func (f *fakeExtractor) Extract(ctx context.Context, docType constants.DocumentType, accessURL string) (*extract.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newProcessor(docs *fakeDocs, audit *fakeAudit, issuer *fakeIssuer, ex *fakeExtractor) *Processor {
	return NewProcessor(nil, docs, audit, issuer, ex, Options{})
}

const testPath = "email-attachments/jane@example.com_2025-09-26/T4_2024.pdf"

func notification() blobstore.Notification {
	return blobstore.Notification{Path: testPath}
}

func TestIdempotentClaim(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeUnknown)
	audit := &fakeAudit{}
	p := newProcessor(docs, audit, &fakeIssuer{}, &fakeExtractor{})

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.HandleBlobCreated(context.Background(), notification())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoErrorf(t, err, "delivery %d", i)
	}
	// exactly one delivery wins the claim and advances the document
	assert.Equal(t, constants.StatusReadyForAI, docs.get(doc.ID).ProcessingStatus)
	assert.Equal(t, []string{"Blob trigger activated", "Ready for AI processing"}, audit.steps())
}

func TestUnsupportedTypeDeferral(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT5)
	audit := &fakeAudit{}
	ex := &fakeExtractor{supported: map[constants.DocumentType]bool{constants.TypeT4: true}}
	p := newProcessor(docs, audit, &fakeIssuer{}, ex)

	require.NoError(t, p.HandleBlobCreated(context.Background(), notification()))

	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusReadyForAI, got.ProcessingStatus)
	assert.Zero(t, ex.calls, "no extraction for an unsupported type")
	assert.Equal(t, []string{"Blob trigger activated", "Ready for AI processing"}, audit.steps())
}

func TestSuccessfulExtractionRoundTrip(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	audit := &fakeAudit{}
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		result: &extract.Result{Fields: []extract.Field{
			{Name: "A", Value: "v1", Confidence: 0.9},
			{Name: "B", Value: "v2", Confidence: 0.7},
		}},
	}
	p := newProcessor(docs, audit, &fakeIssuer{}, ex)

	require.NoError(t, p.HandleBlobCreated(context.Background(), notification()))

	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusCompleted, got.ProcessingStatus)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.8, *got.Confidence, 1e-9)

	fields := docs.fields[doc.ID]
	require.Len(t, fields, 2)
	assert.Equal(t, "v1", fields[0].FieldValue)
	assert.Equal(t, 0.7, fields[1].Confidence)

	steps := audit.steps()
	require.Equal(t, []string{"Blob trigger activated", "Extraction completed"}, steps)
	assert.Contains(t, audit.entries[1].Details, "Fields: 2")
	assert.Contains(t, audit.entries[1].Details, "80.00%")
}

func TestExtractionSkipsEmptyValues(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		result: &extract.Result{Fields: []extract.Field{
			{Name: "A", Value: "v1", Confidence: 0.6},
			{Name: "Empty", Value: "", Confidence: 0.2},
		}},
	}
	p := newProcessor(docs, &fakeAudit{}, &fakeIssuer{}, ex)

	require.NoError(t, p.HandleBlobCreated(context.Background(), notification()))

	require.Len(t, docs.fields[doc.ID], 1)
	// mean confidence still covers every returned field
	assert.InDelta(t, 0.4, *docs.get(doc.ID).Confidence, 1e-9)
}

func TestClaimMissIsCleanNoop(t *testing.T) {
	docs := newFakeDocs() // no document rows at all
	audit := &fakeAudit{}
	p := newProcessor(docs, audit, &fakeIssuer{}, &fakeExtractor{})

	assert.NoError(t, p.HandleBlobCreated(context.Background(), notification()))
	assert.Empty(t, audit.entries)
}

func TestExtractionTimeoutRecovery(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	audit := &fakeAudit{}
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		err:       &extract.Error{Kind: extract.KindTimeout, Msg: "poll analyze exceeded deadline"},
	}
	p := newProcessor(docs, audit, &fakeIssuer{}, ex)

	err := p.HandleBlobCreated(context.Background(), notification())
	var ee *extract.Error
	require.ErrorAs(t, err, &ee, "original error must be re-raised")
	assert.Equal(t, extract.KindTimeout, ee.Kind)

	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusError, got.ProcessingStatus)
	require.NotNil(t, got.ErrorMessage)
	assert.NotEmpty(t, *got.ErrorMessage)
	assert.Empty(t, docs.fields[doc.ID], "no fields on a failed run")

	last := audit.entries[len(audit.entries)-1]
	assert.Equal(t, "Processing error", last.ProcessingStep)
	assert.Equal(t, constants.AuditError, last.Outcome)
	require.NotNil(t, last.ErrorDetails)
}

func TestNoResultTreatedAsFailure(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		err:       &extract.Error{Kind: extract.KindNoResult, Msg: "analysis recognized no documents"},
	}
	p := newProcessor(docs, &fakeAudit{}, &fakeIssuer{}, ex)

	err := p.HandleBlobCreated(context.Background(), notification())
	require.Error(t, err)

	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusError, got.ProcessingStatus)
	assert.Empty(t, docs.fields[doc.ID])
}

func TestCompletionFaultRoutesToRecovery(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	docs.completeErr = common.StorageError("mark completed", errors.New("deadlock"))
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		result:    &extract.Result{Fields: []extract.Field{{Name: "A", Value: "v", Confidence: 0.5}}},
	}
	p := newProcessor(docs, &fakeAudit{}, &fakeIssuer{}, ex)

	err := p.HandleBlobCreated(context.Background(), notification())
	require.Error(t, err)

	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusError, got.ProcessingStatus)
	assert.Empty(t, docs.fields[doc.ID], "fields and the completed flip are one transaction")
}

func TestAccessErrorAbortsRun(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	ex := &fakeExtractor{supported: map[constants.DocumentType]bool{constants.TypeT4: true}}
	issuer := &fakeIssuer{fail: common.AccessError("storage signing credentials are not configured", common.ErrInvalidInput)}
	p := newProcessor(docs, &fakeAudit{}, issuer, ex)

	err := p.HandleBlobCreated(context.Background(), notification())
	require.Error(t, err, "credential fault must surface, not silently skip")
	assert.Zero(t, ex.calls)
	assert.Equal(t, constants.StatusError, docs.get(doc.ID).ProcessingStatus)
}

func TestRecoveryReResolvesLostClaim(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	docs.claimErr = common.StorageError("claim pending document", errors.New("connection reset"))
	audit := &fakeAudit{}
	p := newProcessor(docs, audit, &fakeIssuer{}, &fakeExtractor{})

	err := p.HandleBlobCreated(context.Background(), notification())
	require.Error(t, err)

	// id was re-resolved via the path even though the claim never returned
	got := docs.get(doc.ID)
	assert.Equal(t, constants.StatusError, got.ProcessingStatus)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "Processing error", audit.entries[0].ProcessingStep)
}

func TestRecoveryFailureDoesNotMaskCause(t *testing.T) {
	docs := newFakeDocs()
	docs.add(testPath, constants.TypeT4)
	docs.markErrErr = common.StorageError("mark error", errors.New("still down"))
	cause := &extract.Error{Kind: extract.KindServiceFault, Msg: "backend 500"}
	ex := &fakeExtractor{supported: map[constants.DocumentType]bool{constants.TypeT4: true}, err: cause}
	p := newProcessor(docs, &fakeAudit{}, &fakeIssuer{}, ex)

	err := p.HandleBlobCreated(context.Background(), notification())
	var ee *extract.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, extract.KindServiceFault, ee.Kind)
}

func TestCancelledRunStillAttemptsRecovery(t *testing.T) {
	docs := newFakeDocs()
	doc := docs.add(testPath, constants.TypeT4)
	ex := &fakeExtractor{
		supported: map[constants.DocumentType]bool{constants.TypeT4: true},
		err:       &extract.Error{Kind: extract.KindTimeout, Msg: "cancelled", Cause: context.Canceled},
	}
	p := newProcessor(docs, &fakeAudit{}, &fakeIssuer{}, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.HandleBlobCreated(ctx, notification())
	require.Error(t, err)
	// recovery writes run on a detached context, so the error still lands
	assert.Equal(t, constants.StatusError, docs.get(doc.ID).ProcessingStatus)
}
