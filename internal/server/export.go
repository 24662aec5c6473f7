package server

import (
	"net/http"

	"go.uber.org/zap"
)

// ExportDocuments handles GET /api/export/documents: an XLSX workbook of
// the filtered document set with extracted fields.
func (s *Service) ExportDocuments(w http.ResponseWriter, r *http.Request) {
	filter, err := documentFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.exporter.ExportDocumentsXLSX(r.Context(), filter)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.xlsx"`)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("export write failed", zap.Error(err))
	}
}
