package main

import (
	"encoding/json"
	"net/http"

	"github.com/ONSdigital/ras-party-accounts/models"
	"github.com/ONSdigital/ras-party-accounts/raserrors"
)

// writeError answers with the status and stable message of err's kind. The cause is only logged.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := raserrors.KindOf(err)
	status := kind.StatusCode()
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "kind", kind.String(), "error", err)
	} else {
		a.logger.InfoContext(r.Context(), "Request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind.String(), "error", err)
	}
	writeJSON(w, status, models.Error{Error: raserrors.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes the request body into v
func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return raserrors.Wrap(err, raserrors.Validation, "Invalid JSON")
	}
	return nil
}
