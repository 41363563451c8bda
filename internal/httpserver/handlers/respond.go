package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kroleg/homelab/internal/domain"
	"github.com/kroleg/homelab/internal/httpserver/deps"
	"github.com/kroleg/homelab/internal/logger"
	redisstore "github.com/kroleg/homelab/internal/store/redis"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps store/domain errors to HTTP statuses: validation
// failures are the caller's fault, missing policies are 404, everything
// else is a server-side problem worth logging.
func respondError(w http.ResponseWriter, d deps.Deps, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, redisstore.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		d.Logger.Error("admin request failed", logger.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
