package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/classify"
)

// intakeSchema validates the submission payload before anything touches the
// database.
var intakeSchema = jsonschema.MustCompileString("intake.json", `{
	"type": "object",
	"required": ["clientEmail", "folderPath", "attachments"],
	"properties": {
		"clientEmail": {"type": "string", "minLength": 3, "pattern": "^[^@\\s]+@[^@\\s]+$"},
		"clientName": {"type": "string"},
		"folderPath": {"type": "string", "minLength": 1},
		"attachments": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["fileName"],
				"properties": {
					"fileName": {"type": "string", "minLength": 1},
					"contentType": {"type": "string"},
					"size": {"type": "integer", "minimum": 0}
				}
			}
		}
	}
}`)

type intakeRequest struct {
	ClientEmail string `json:"clientEmail"`
	ClientName  string `json:"clientName"`
	FolderPath  string `json:"folderPath"`
	Attachments []struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	} `json:"attachments"`
}

type createdDocument struct {
	DocumentID   int64  `json:"documentId"`
	FileName     string `json:"fileName"`
	DocumentType string `json:"documentType,omitempty"`
	BlobPath     string `json:"blobPath"`
}

// CreateDocuments handles POST /api/documents: it registers the client and
// creates one pending document row per attachment. The blobs themselves
// arrive out of band; the pipeline picks each document up when its blob
// trigger fires.
func (s *Service) CreateDocuments(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}
	if err := intakeSchema.Validate(generic); err != nil {
		s.logger.Warn("intake payload rejected", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	var req intakeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	client, err := s.clients.GetOrCreate(r.Context(), req.ClientEmail, strings.TrimSpace(req.ClientName))
	if err != nil {
		s.logger.Error("get or create client failed", zap.String("email", req.ClientEmail), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	created := make([]createdDocument, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		docType := classify.Detect(att.FileName)
		taxYear := classify.TaxYear(att.FileName)
		blobPath := fmt.Sprintf("%s/%s/%s", s.container, req.FolderPath, att.FileName)

		doc, err := s.docs.Create(r.Context(), client.ID, att.FileName, blobPath, docType, taxYear)
		if err != nil {
			s.logger.Error("create document failed",
				zap.Int64("client_id", client.ID),
				zap.String("file", att.FileName),
				zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		details := fmt.Sprintf("File: %s, Size: %d bytes, Type: %s", att.FileName, att.Size, att.ContentType)
		if err := s.audit.Append(r.Context(), doc.ID, "Document received via email", constants.AuditSuccess, details, nil); err != nil {
			s.logger.Warn("intake audit append failed", zap.Int64("document_id", doc.ID), zap.Error(err))
		}

		created = append(created, createdDocument{
			DocumentID:   doc.ID,
			FileName:     att.FileName,
			DocumentType: string(docType),
			BlobPath:     blobPath,
		})
	}

	s.logger.Info("intake processed",
		zap.Int64("client_id", client.ID),
		zap.Int("documents", len(created)))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"clientId":         client.ID,
		"clientEmail":      client.Email,
		"documentsCreated": len(created),
		"documents":        created,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
