package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the API router.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.CreateDocuments)
		r.Get("/documents", s.ListDocuments)
		r.Get("/documents/{documentID}", s.GetDocument)
		r.Get("/documents/{documentID}/history", s.DocumentHistory)
		r.Get("/documents/{documentID}/fields", s.DocumentFields)
		r.Get("/clients", s.ListClients)
		r.Get("/dashboard/stats", s.Stats)
		r.Get("/export/documents", s.ExportDocuments)
	})

	return r
}
