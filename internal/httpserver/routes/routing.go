package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/httpserver/handlers"
	"github.com/kroleg/homelab/internal/httpserver/mw"
)

func init() { Register(registerRouting) }

func registerRouting(r chi.Router, d deps.Deps) {
	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/api/check", handlers.CheckDomain(d))
	guarded.Post("/api/reconcile", handlers.Reconcile(d))
	guarded.Get("/api/state", handlers.State(d))
	guarded.Get("/api/interfaces", handlers.Interfaces(d))
}
