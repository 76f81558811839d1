package httpapi

import (
	"encoding/json"
	"net/http"

	"scribed/internal/manager"
	"scribed/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeTaxonomyError maps a manager error onto its status code and attaches
// the install hint for missing dependencies.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if he, ok := err.(HTTPError); ok {
		status = he.StatusCode()
	}
	payload := types.ErrorResponse{Error: err.Error(), Code: status}
	if hint := manager.DependencyHint(err); hint != "" {
		payload.Hint = hint
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
