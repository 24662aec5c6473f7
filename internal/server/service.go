// Package server exposes the intake and dashboard HTTP API. The pipeline
// itself is driven by trigger events, not by this API; everything here
// either creates the initial pending rows or reads processing state.
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/acctax/taxflow/internal/export"
	"github.com/acctax/taxflow/internal/repository"
)

type Service struct {
	clients   repository.ClientRepository
	docs      repository.DocumentRepository
	fields    repository.ExtractedFieldRepository
	audit     repository.AuditRepository
	dashboard repository.DashboardRepository
	exporter  *export.Service
	container string
	logger    *zap.Logger
}

func NewService(
	clients repository.ClientRepository,
	docs repository.DocumentRepository,
	fields repository.ExtractedFieldRepository,
	audit repository.AuditRepository,
	dashboard repository.DashboardRepository,
	exporter *export.Service,
	container string,
	logger *zap.Logger,
) *Service {
	return &Service{
		clients:   clients,
		docs:      docs,
		fields:    fields,
		audit:     audit,
		dashboard: dashboard,
		exporter:  exporter,
		container: container,
		logger:    logger,
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
