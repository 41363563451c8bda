package handlers

import (
	"net/http"

	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/logger"
)

// CheckDomain reports which services would route a hostname; with
// resolve=1 it also performs a live lookup. Read-only.
func CheckDomain(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := r.URL.Query().Get("host")
		if host == "" {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing host parameter"})
			return
		}
		resolve := r.URL.Query().Get("resolve") == "1"

		result, err := d.Coordinator.CheckDomain(r.Context(), host, resolve)
		if err != nil {
			respondError(w, d, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
	}
}

// Reconcile triggers a forced reconciliation of all services.
func Reconcile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReconcileTrigger <- struct{}{}:
			d.Logger.Info("forced reconciliation triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			respondJSON(w, http.StatusAccepted, map[string]string{"status": "reconciliation triggered"})
		default:
			d.Logger.Warn("reconciliation already pending",
				logger.String("remote_ip", r.RemoteAddr))
			respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "reconciliation already pending"})
		}
	}
}

// State returns the per-service routing state snapshot.
func State(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, d.Coordinator.Status())
	}
}

// Interfaces lists the router's network interfaces, optionally filtered
// by type (?type=Wireguard). Backs the policy editor's interface picker.
func Interfaces(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typeFilter := r.URL.Query().Get("type")
		if typeFilter == "" {
			typeFilter = d.InterfaceFilter
		}
		ifaces, err := d.Router.ListInterfaces(r.Context(), typeFilter)
		if err != nil {
			respondError(w, d, err)
			return
		}
		respondJSON(w, http.StatusOK, ifaces)
	}
}
