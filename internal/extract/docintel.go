package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/common"
)

const analyzeAPIVersion = "2023-07-31"

// DocIntelClient drives an Azure Document Intelligence style backend:
// submit an analyze request for a pre-authenticated document URL, then
// poll the returned operation until it reaches a terminal state.
type DocIntelClient struct {
	endpoint     string
	apiKey       string
	models       map[constants.DocumentType]string
	pollInterval time.Duration
	http         *http.Client
	logger       *slog.Logger
}

func NewDocIntelClient(cfg common.DocIntelConfig, httpClient *http.Client, logger *slog.Logger) *DocIntelClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &DocIntelClient{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		models:       cfg.Models,
		pollInterval: interval,
		http:         httpClient,
		logger:       logger,
	}
}

func (c *DocIntelClient) Supported(docType constants.DocumentType) bool {
	_, ok := c.models[docType]
	return ok
}

// analyze wire shapes (subset we consume).
type analyzeResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Documents []struct {
			Fields map[string]analyzeField `json:"fields"`
		} `json:"documents"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type analyzeField struct {
	Content     string   `json:"content"`
	ValueString *string  `json:"valueString"`
	ValueNumber *float64 `json:"valueNumber"`
	Confidence  float64  `json:"confidence"`
}

func (f analyzeField) scalar() string {
	switch {
	case f.ValueString != nil:
		return *f.ValueString
	case f.ValueNumber != nil:
		return strconv.FormatFloat(*f.ValueNumber, 'f', -1, 64)
	default:
		return f.Content
	}
}

func (c *DocIntelClient) Extract(ctx context.Context, docType constants.DocumentType, accessURL string) (*Result, error) {
	model, ok := c.models[docType]
	if !ok {
		return nil, newError(KindServiceFault, fmt.Sprintf("no model for document type %q", docType), nil)
	}

	reqID := uuid.New().String()
	start := time.Now()

	opURL, err := c.submit(ctx, reqID, model, accessURL)
	if err != nil {
		return nil, err
	}

	res, err := c.poll(ctx, reqID, opURL)
	if err != nil {
		return nil, err
	}

	c.logger.Info("extract.docintel.done",
		"req_id", reqID,
		"model", model,
		"fields", len(res.Fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// submit posts the analyze request and returns the operation URL to poll.
func (c *DocIntelClient) submit(ctx context.Context, reqID, model, accessURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"urlSource": accessURL})
	if err != nil {
		return "", newError(KindServiceFault, "encode analyze request", err)
	}

	u := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.endpoint, model, analyzeAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", newError(KindServiceFault, "build analyze request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	c.logger.Info("extract.docintel.submit", "req_id", reqID, "model", model)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransport("submit analyze", err)
	}
	defer drainClose(resp.Body, c.logger, reqID)

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", newError(KindServiceFault,
			fmt.Sprintf("analyze submit returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)), nil)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", newError(KindServiceFault, "analyze submit returned no Operation-Location", nil)
	}
	return opURL, nil
}

// poll loops on the operation URL until the analysis is terminal or ctx
// expires.
func (c *DocIntelClient) poll(ctx context.Context, reqID, opURL string) (*Result, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, classifyTransport("poll analyze", ctx.Err())
		case <-ticker.C:
		}

		ar, err := c.pollOnce(ctx, reqID, opURL)
		if err != nil {
			return nil, err
		}

		switch ar.Status {
		case "succeeded":
			return resultFrom(ar)
		case "failed":
			msg := "analysis failed"
			if ar.Error != nil {
				msg = fmt.Sprintf("analysis failed: %s: %s", ar.Error.Code, ar.Error.Message)
			}
			return nil, newError(KindServiceFault, msg, nil)
		case "notStarted", "running":
			c.logger.Debug("extract.docintel.poll", "req_id", reqID, "status", ar.Status)
		default:
			return nil, newError(KindServiceFault, fmt.Sprintf("unexpected analysis status %q", ar.Status), nil)
		}
	}
}

func (c *DocIntelClient) pollOnce(ctx context.Context, reqID, opURL string) (*analyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, newError(KindServiceFault, "build poll request", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport("poll analyze", err)
	}
	defer drainClose(resp.Body, c.logger, reqID)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport("read poll response", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, newError(KindServiceFault,
			fmt.Sprintf("poll returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)), nil)
	}

	var ar analyzeResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return nil, newError(KindServiceFault, "decode poll response", err)
	}
	return &ar, nil
}

// resultFrom flattens the first recognized document into an ordered field
// list. Zero recognized documents is the NoResult anomaly.
func resultFrom(ar *analyzeResponse) (*Result, error) {
	if ar.AnalyzeResult == nil || len(ar.AnalyzeResult.Documents) == 0 {
		return nil, newError(KindNoResult, "analysis recognized no documents", nil)
	}

	fields := ar.AnalyzeResult.Documents[0].Fields
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		f := fields[name]
		res.Fields = append(res.Fields, Field{
			Name:       name,
			Value:      f.scalar(),
			Confidence: f.Confidence,
		})
	}
	return res, nil
}

// classifyTransport folds context expiry into a Timeout error; everything
// else is a service fault.
func classifyTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindTimeout, op+" exceeded deadline", err)
	}
	return newError(KindServiceFault, op, err)
}

func drainClose(body io.ReadCloser, logger *slog.Logger, reqID string) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, 1<<20)); err != nil {
		logger.Warn("extract.docintel.body_drain_error", "req_id", reqID, "error", err)
	}
	if err := body.Close(); err != nil {
		logger.Warn("extract.docintel.body_close_error", "req_id", reqID, "error", err)
	}
}
