package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/applications", h.SubmitApplication)
		r.Get("/applications/pending-approval", h.PendingApprovals)
		r.Route("/applications/{applicationId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetApplication(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				h.GetStatus(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				h.GetHistory(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Get("/risk", func(w http.ResponseWriter, r *http.Request) {
				h.GetRisk(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
				h.UploadDocument(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Post("/approve", func(w http.ResponseWriter, r *http.Request) {
				h.Approve(w, r, chi.URLParam(r, "applicationId"))
			})
			r.Post("/reject", func(w http.ResponseWriter, r *http.Request) {
				h.Reject(w, r, chi.URLParam(r, "applicationId"))
			})
		})
	})

	return r
}
