package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/imatveev/passvault/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// handleError maps domain errors to HTTP status codes. The locked and
// expired states get distinct codes so clients can tell "unlock first"
// apart from "unlock again".
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, model.ErrVaultLocked):
		writeError(w, http.StatusLocked, "vault_locked", "vault is locked")
	case errors.Is(err, model.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "session_expired", "vault session expired")
	case errors.Is(err, model.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, "vault_auth_failed", "authentication failed")
	case errors.Is(err, model.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, model.ErrTokenRevoked),
		errors.Is(err, model.ErrTokenExpired),
		errors.Is(err, model.ErrTokenMismatch):
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
	case errors.Is(err, model.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "email already registered")
	case errors.Is(err, model.ErrMigrationSafety):
		writeError(w, http.StatusConflict, "migration_safety", "plaintext purge refused")
	default:
		writeError(w, http.StatusInternalServerError, "", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
