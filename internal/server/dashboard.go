package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/acctax/taxflow/constants"
	"github.com/acctax/taxflow/internal/common"
	"github.com/acctax/taxflow/internal/repository"
)

// Stats handles GET /api/dashboard/stats.
func (s *Service) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboard.Stats(r.Context())
	if err != nil {
		s.logger.Error("dashboard stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// ListClients handles GET /api/clients.
func (s *Service) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		s.logger.Error("list clients failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, clients)
}

func documentFilter(r *http.Request) (repository.DocumentFilter, error) {
	var f repository.DocumentFilter
	if v := r.URL.Query().Get("clientId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("clientId must be an integer")
		}
		f.ClientID = id
	}
	f.Status = constants.ProcessingStatus(r.URL.Query().Get("status"))
	f.DocumentType = constants.DocumentType(r.URL.Query().Get("documentType"))
	return f, nil
}

// ListDocuments handles GET /api/documents with optional clientId, status
// and documentType filters.
func (s *Service) ListDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := documentFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.docs.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Service) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return 0, false
	}
	return id, true
}

// GetDocument handles GET /api/documents/{documentID}.
func (s *Service) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	doc, err := s.docs.GetByID(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("get document failed", zap.Int64("document_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// DocumentHistory handles GET /api/documents/{documentID}/history: the full
// audit trail, newest first.
func (s *Service) DocumentHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	history, err := s.audit.History(r.Context(), id)
	if err != nil {
		s.logger.Error("audit history failed", zap.Int64("document_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// DocumentFields handles GET /api/documents/{documentID}/fields.
func (s *Service) DocumentFields(w http.ResponseWriter, r *http.Request) {
	id, ok := s.documentID(w, r)
	if !ok {
		return
	}
	fields, err := s.fields.ListByDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("list fields failed", zap.Int64("document_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, fields)
}
