package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth-server/server"
	"github.com/giantswarm/oauth-server/storage"
)

// Error codes used by the transport in addition to the OAuth codes in package server
const (
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeNotFound          = "not_found"
)

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, ErrorResponse{Error: code, ErrorDescription: description})
}

// writeBearerError answers a rejected bearer token as described in RFC 6750 section 3
func (h *Handler) writeBearerError(w http.ResponseWriter, err *server.VerifyError) {
	challenge := fmt.Sprintf("Bearer realm=%q", h.config.ServerName)
	if err.Code != server.ErrorCodeInvalidRequest {
		challenge += fmt.Sprintf(", error=%q, error_description=%q", err.Code, err.Description)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	h.writeError(w, err.Code, err.Description, err.HTTPStatus())
}

// writeStoreError maps errors of the management API to a response
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, server.ErrInvalidClientRegistration):
		h.writeError(w, server.ErrorCodeInvalidRequest, err.Error(), http.StatusBadRequest)
	case storage.IsNotFound(err):
		h.writeError(w, ErrorCodeNotFound, "The resource does not exist", http.StatusNotFound)
	default:
		h.logger.Error("Management request failed", "operation", op, "path", r.URL.Path, "error", err)
		h.writeError(w, server.ErrorCodeServerError, "The request could not be completed", http.StatusInternalServerError)
	}
}
