// Package oauth is the HTTP transport of the authorization server. Handler
// adapts HTTP requests to server.Server and renders the approval page, token
// responses and the approval and client management API.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-server/instrumentation"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/server"
)

const (
	loginHintParameter = "login_hint"

	// oobRedirectURI is the out-of-band target of native clients that cannot
	// receive a redirect. The code is shown to the resource owner instead.
	oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
)

// Handler is a thin HTTP adapter for the authorization server.
// It handles HTTP requests and delegates to server.Server for business logic.
type Handler struct {
	server        *server.Server
	authenticator ResourceOwnerAuthenticator
	config        Config
	logger        *slog.Logger
	rateLimiter   *security.RateLimiter
	tracer        trace.Tracer
	metrics       *instrumentation.Metrics
	mux           *http.ServeMux
	handler       http.Handler
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, authenticator ResourceOwnerAuthenticator, config Config) (*Handler, error) {
	if srv == nil {
		return nil, fmt.Errorf("server is required")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("resource owner authenticator is required")
	}
	config.applyDefaults()

	h := &Handler{
		server:        srv,
		authenticator: authenticator,
		config:        config,
		logger:        config.Logger,
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
		mux:           http.NewServeMux(),
	}

	if config.Instrumentation != nil {
		h.tracer = config.Instrumentation.Tracer("http")
		h.metrics = config.Instrumentation.Metrics()
	}
	if config.RateLimit.Rate > 0 {
		h.rateLimiter = security.NewRateLimiter(config.RateLimit.Rate, config.RateLimit.Burst, h.logger)
	}

	h.route("GET /authorize", "authorize", h.ServeAuthorize)
	h.route("POST /authorize", "approve", h.ServeApprove)
	h.route("POST /token", "token", h.ServeToken)
	h.route("GET /api/approvals", "list_approvals", h.ServeListApprovals)
	h.route("DELETE /api/approvals/{clientID}", "revoke_approval", h.ServeRevokeApproval)
	h.route("GET /api/clients", "list_clients", h.ServeListClients)
	h.route("PUT /api/clients/{clientID}", "save_client", h.ServeSaveClient)
	h.route("DELETE /api/clients/{clientID}", "delete_client", h.ServeDeleteClient)

	h.handler = security.RequestIDMiddleware(h.securityHeaders(h.rateLimit(h.mux)))
	return h, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// Close stops background work of the handler
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// ServeAuthorize handles GET /authorize
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.authenticateOwner(w, r)
	if !ok {
		return
	}

	req := authorizeRequestFrom(r.URL.Query())
	res, err := h.server.Authorize(r.Context(), owner, req)
	h.writeAuthorizeResult(w, r, owner, res, err)
}

// ServeApprove handles the approval form posted to /authorize. The query
// string still holds the original authorization request.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.authenticateOwner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, "Invalid request", "The approval form could not be read.", http.StatusBadRequest)
		return
	}

	req := authorizeRequestFrom(r.URL.Query())
	decision := server.Decision{
		Approval: r.PostForm.Get("approval"),
		Scope:    r.PostForm.Get("scope"),
	}
	res, err := h.server.Approve(r.Context(), owner, req, decision)
	h.writeAuthorizeResult(w, r, owner, res, err)
}

func (h *Handler) authenticateOwner(w http.ResponseWriter, r *http.Request) (server.ResourceOwner, bool) {
	owner, err := h.authenticator.Authenticate(r, r.URL.Query().Get(loginHintParameter))
	if err != nil || owner == nil || owner.ID() == "" {
		h.logger.Warn("Resource owner authentication failed",
			"ip", h.clientIP(r),
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
		h.renderError(w, r, "Sign-in required", "You must be signed in to authorize an application.", http.StatusUnauthorized)
		return nil, false
	}
	return owner, true
}

func authorizeRequestFrom(q url.Values) server.AuthorizeRequest {
	return server.AuthorizeRequest{
		ClientID:     q.Get("client_id"),
		ResponseType: q.Get("response_type"),
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        q.Get("scope"),
		State:        q.Get("state"),
	}
}

func (h *Handler) writeAuthorizeResult(w http.ResponseWriter, r *http.Request, owner server.ResourceOwner, res *server.Result, err error) {
	if err == nil {
		switch res.Action {
		case server.ActionAskApproval:
			h.renderApproval(w, r, owner, res, "", http.StatusOK)
		case server.ActionRedirect:
			h.redirect(w, r, res.URL)
		default:
			h.logger.Error("Unknown authorize action", "action", res.Action)
			h.renderError(w, r, "Server error", "The request could not be completed.", http.StatusInternalServerError)
		}
		return
	}

	var ownerErr *server.ResourceOwnerError
	var clientErr *server.ClientError
	switch {
	case errors.As(err, &ownerErr):
		h.renderError(w, r, "Invalid authorization request", ownerErr.Message, ownerErr.HTTPStatus())

	case errors.As(err, &clientErr) && clientErr.ShowOwner:
		h.renderError(w, r, "Invalid approval", clientErr.Description, clientErr.HTTPStatus())

	case errors.As(err, &clientErr):
		target, urlErr := clientErr.RedirectURL()
		if urlErr != nil {
			h.renderError(w, r, "Invalid authorization request", clientErr.Description, clientErr.HTTPStatus())
			return
		}
		h.redirect(w, r, target)

	default:
		h.logger.Error("Authorization request failed",
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
		h.renderError(w, r, "Server error", "The request could not be completed. Please try again later.", http.StatusInternalServerError)
	}
}

// redirect sends the user agent to the client. Out-of-band targets cannot be
// followed, so their parameters are shown instead.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if strings.HasPrefix(target, oobRedirectURI) {
		h.renderOutOfBand(w, r, target)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ServeToken handles the token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, server.ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	req := server.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Token:        r.PostForm.Get("token"),
	}

	resp, err := h.server.Token(r.Context(), req, r.Header.Get("Authorization"))
	if err != nil {
		var tokenErr *server.TokenError
		if !errors.As(err, &tokenErr) {
			h.logger.Error("Token request failed",
				"grant_type", req.GrantType,
				"request_id", security.GetRequestID(r.Context()),
				"error", err)
			h.writeError(w, server.ErrorCodeServerError, "The request could not be completed", http.StatusInternalServerError)
			return
		}
		if tokenErr.Code == server.ErrorCodeInvalidClient {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", DefaultServerName))
		}
		h.writeError(w, tokenErr.Code, tokenErr.Description, tokenErr.HTTPStatus())
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.config.Security.TrustProxy, h.config.Security.TrustedProxyCount)
}

// route registers fn under pattern with a span and HTTP metrics named endpoint
func (h *Handler) route(pattern, endpoint string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := h.tracer.Start(r.Context(), "http."+endpoint)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r.WithContext(ctx))

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		h.recordHTTPMetrics(ctx, endpoint, r.Method, rec.status, start)
	}))
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.metrics == nil {
		return
	}
	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.metrics.RecordHTTPRequest(ctx, method, endpoint, status, duration)
}

// securityHeaders sets the API security headers. Pages replace the content
// security policy when they render.
func (h *Handler) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, h.config.Security.HTTPS)
		next.ServeHTTP(w, r)
	})
}

// rateLimit rejects requests from client IPs over their budget
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.rateLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.clientIP(r)
		if !h.rateLimiter.Allow(clientIP) {
			h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
			if h.metrics != nil {
				h.metrics.RecordRateLimitExceeded(r.Context(), "ip")
			}
			h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			h.writeError(w, ErrorCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
