package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/hudumahub/huduma-system/internal/middleware"
)

// SetupRouter wires the HTTP routes and middleware of the huduma API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", h.ListServices)
		r.Get("/services/{slug}", h.GetService)

		// The gateway posts here without credentials.
		r.Post("/payments/mpesa/callback", h.MpesaCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/applications", h.SubmitApplication)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.authMiddleware.RequireOperator)

			r.Get("/services", h.ListServices)
			r.Post("/services", h.UpsertService)
			r.Post("/services/seed", h.SeedServices)
			r.Patch("/services/{id}", h.UpdateService)
			r.Delete("/services/{id}", h.DeleteService)

			r.Get("/applications", h.ListApplications)
			r.Get("/applications/{id}", h.GetApplication)
			r.Patch("/applications/{id}", h.UpdateApplication)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
