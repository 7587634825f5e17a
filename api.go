package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giantswarm/oauth-server/server"
	"github.com/giantswarm/oauth-server/storage"
)

// ApprovalResource is the JSON form of a standing approval
type ApprovalResource struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

// ClientResource is the JSON form of a client registration. Secret is
// accepted on write and never returned.
type ClientResource struct {
	ID          string             `json:"client_id"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        storage.ClientType `json:"client_type"`
	RedirectURI string             `json:"redirect_uri"`
	Secret      string             `json:"client_secret,omitempty"`
	HasSecret   bool               `json:"has_secret"`
}

func clientResourceFrom(c *storage.Client) ClientResource {
	return ClientResource{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Type:        c.Type,
		RedirectURI: c.RedirectURI,
		HasSecret:   c.HasSecret(),
	}
}

// requireBearer verifies the bearer token of r and writes the error response
// when it is rejected
func (h *Handler) requireBearer(w http.ResponseWriter, r *http.Request, requiredScope string) (*storage.AccessToken, bool) {
	token, err := h.server.VerifyBearer(r.Context(), r.Header.Get("Authorization"), requiredScope)
	if err == nil {
		return token, true
	}

	var verifyErr *server.VerifyError
	if errors.As(err, &verifyErr) {
		h.logger.Warn("Bearer token rejected",
			"ip", h.clientIP(r),
			"path", r.URL.Path,
			"error_code", verifyErr.Code)
		h.writeBearerError(w, verifyErr)
		return nil, false
	}

	h.logger.Error("Bearer verification failed", "path", r.URL.Path, "error", err)
	h.writeError(w, server.ErrorCodeServerError, "The request could not be completed", http.StatusInternalServerError)
	return nil, false
}

// ServeListApprovals lists the approvals of the token's resource owner
func (h *Handler) ServeListApprovals(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireBearer(w, r, "")
	if !ok {
		return
	}

	approvals, err := h.server.ListApprovals(r.Context(), token.ResourceOwnerID)
	if err != nil {
		h.writeStoreError(w, r, "list_approvals", err)
		return
	}

	out := make([]ApprovalResource, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, ApprovalResource{ClientID: a.ClientID, Scope: a.Scope})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ServeRevokeApproval removes the approval of the token's resource owner for one client
func (h *Handler) ServeRevokeApproval(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requireBearer(w, r, "")
	if !ok {
		return
	}

	if err := h.server.RevokeApproval(r.Context(), r.PathValue("clientID"), token.ResourceOwnerID); err != nil {
		h.writeStoreError(w, r, "revoke_approval", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeListClients lists all registered clients. Requires the admin scope.
func (h *Handler) ServeListClients(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBearer(w, r, h.server.Config.AdminScope); !ok {
		return
	}

	clients, err := h.server.ListClients(r.Context())
	if err != nil {
		h.writeStoreError(w, r, "list_clients", err)
		return
	}

	out := make([]ClientResource, 0, len(clients))
	for _, c := range clients {
		out = append(out, clientResourceFrom(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// ServeSaveClient creates or replaces a client. An omitted secret keeps the
// secret of the existing registration. Requires the admin scope.
func (h *Handler) ServeSaveClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBearer(w, r, h.server.Config.AdminScope); !ok {
		return
	}

	var body ClientResource
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.config.MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, server.ErrorCodeInvalidRequest, "Request body must be a client object", http.StatusBadRequest)
		return
	}

	id := r.PathValue("clientID")
	if body.ID != "" && body.ID != id {
		h.writeError(w, server.ErrorCodeInvalidRequest, "client_id does not match the path", http.StatusBadRequest)
		return
	}

	client := &storage.Client{
		ID:          id,
		Name:        body.Name,
		Description: body.Description,
		Type:        body.Type,
		RedirectURI: body.RedirectURI,
		Secret:      body.Secret,
	}
	if client.Secret == "" {
		existing, err := h.server.Storage().GetClient(r.Context(), id)
		switch {
		case err == nil:
			client.Secret = existing.Secret
			client.SecretHash = existing.SecretHash
		case !storage.IsNotFound(err):
			h.writeStoreError(w, r, "save_client", err)
			return
		}
	}

	if err := h.server.SaveClient(r.Context(), client); err != nil {
		h.writeStoreError(w, r, "save_client", err)
		return
	}
	h.writeJSON(w, http.StatusOK, clientResourceFrom(client))
}

// ServeDeleteClient removes a client registration. Requires the admin scope.
func (h *Handler) ServeDeleteClient(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBearer(w, r, h.server.Config.AdminScope); !ok {
		return
	}

	if err := h.server.DeleteClient(r.Context(), r.PathValue("clientID")); err != nil {
		h.writeStoreError(w, r, "delete_client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
