package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/logger"
)

// ListPolicies returns every stored policy, enabled or not.
func ListPolicies(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policies, err := d.Store.List(r.Context())
		if err != nil {
			respondError(w, d, err)
			return
		}
		respondJSON(w, http.StatusOK, policies)
	}
}

// GetPolicy returns one policy by name.
func GetPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy, err := d.Store.Get(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			respondError(w, d, err)
			return
		}
		respondJSON(w, http.StatusOK, policy)
	}
}

// UpsertPolicy creates or replaces a policy. Validation errors are the
// only error kind surfaced synchronously to the admin caller.
func UpsertPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var policy domain.ServicePolicy
		if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
			return
		}
		policy.Name = chi.URLParam(r, "name")

		saved, err := d.Store.Upsert(r.Context(), &policy)
		if err != nil {
			respondError(w, d, err)
			return
		}

		// Make the new patterns visible to the event path right away
		// instead of waiting out the current cycle.
		if err := d.Coordinator.RefreshPolicies(r.Context()); err != nil {
			d.Logger.Warn("policy saved but refresh failed", logger.Error(err))
		}

		d.Logger.Info("policy upserted",
			logger.String("policy", saved.Name),
			logger.Int("patterns", len(saved.DomainPatterns)))
		respondJSON(w, http.StatusOK, saved)
	}
}

// DeletePolicy removes a policy and tears down every route it owns.
func DeletePolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		if _, err := d.Store.Get(r.Context(), name); err != nil {
			respondError(w, d, err)
			return
		}
		if err := d.Store.Delete(r.Context(), name); err != nil {
			respondError(w, d, err)
			return
		}
		if err := d.Coordinator.TeardownService(r.Context(), name); err != nil {
			// Routes stay behind until the next cycle retries; the
			// policy itself is gone either way.
			d.Logger.Warn("policy deleted but teardown failed",
				logger.String("policy", name), logger.Error(err))
		}
		if err := d.Coordinator.RefreshPolicies(r.Context()); err != nil {
			d.Logger.Warn("policy deleted but refresh failed", logger.Error(err))
		}

		d.Logger.Info("policy deleted", logger.String("policy", name))
		w.WriteHeader(http.StatusNoContent)
	}
}
