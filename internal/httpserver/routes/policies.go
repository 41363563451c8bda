package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/httpserver/handlers"
	"github.com/kroleg/homelab/internal/httpserver/mw"
)

func init() { Register(registerPolicies) }

func registerPolicies(r chi.Router, d deps.Deps) {
	r.Route("/api/policies", func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		r.Get("/", handlers.ListPolicies(d))
		r.Get("/{name}", handlers.GetPolicy(d))
		r.Put("/{name}", handlers.UpsertPolicy(d))
		r.Delete("/{name}", handlers.DeletePolicy(d))
	})
}
