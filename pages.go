package oauth

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/giantswarm/oauth-server/scope"
	"github.com/giantswarm/oauth-server/security"
	"github.com/giantswarm/oauth-server/server"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	approvalTemplate = template.Must(template.ParseFS(templateFS, "templates/approval.html"))
	errorTemplate    = template.Must(template.ParseFS(templateFS, "templates/error.html"))
	oobTemplate      = template.Must(template.ParseFS(templateFS, "templates/oob.html"))
)

type approvalPageData struct {
	ServerName        string
	ClientName        string
	ClientDescription string
	Registered        bool
	RedirectHost      string
	OwnerName         string
	Scope             string
	Scopes            []string
	Action            string
	Error             string
}

type errorPageData struct {
	ServerName string
	Title      string
	Message    string
	RequestID  string
}

// renderApproval shows the consent form. The form posts back to the same URL
// so the original authorization request travels in the query string.
func (h *Handler) renderApproval(w http.ResponseWriter, r *http.Request, owner server.ResourceOwner, res *server.Result, pageErr string, status int) {
	data := approvalPageData{
		ServerName: h.config.ServerName,
		OwnerName:  owner.DisplayName(),
		Scope:      res.Scope,
		Scopes:     scope.Tokens(res.Scope),
		Action:     r.URL.RequestURI(),
		Error:      pageErr,
	}
	if c := res.Client; c != nil {
		data.ClientName = c.Name
		data.ClientDescription = c.Description
		data.Registered = c.Registered
		if u, err := url.Parse(c.RedirectURI); err == nil {
			data.RedirectHost = u.Host
		}
		if data.ClientName == "" {
			data.ClientName = c.ID
		}
	}

	h.renderPage(w, approvalTemplate, data, status)
}

// renderError shows an error page to the resource owner
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, title, message string, status int) {
	h.renderPage(w, errorTemplate, errorPageData{
		ServerName: h.config.ServerName,
		Title:      title,
		Message:    message,
		RequestID:  security.GetRequestID(r.Context()),
	}, status)
}

type oobPageData struct {
	ServerName string
	Title      string
	Code       string
	Message    string
}

// renderOutOfBand shows the authorization code (or the error) that would have
// been sent to an out-of-band redirect URI
func (h *Handler) renderOutOfBand(w http.ResponseWriter, r *http.Request, target string) {
	data := oobPageData{ServerName: h.config.ServerName, Title: "Authorization complete"}

	u, err := url.Parse(target)
	if err != nil {
		h.renderError(w, r, "Server error", "The authorization result could not be displayed.", http.StatusInternalServerError)
		return
	}
	q := u.Query()
	if u.Fragment != "" {
		if fq, err := url.ParseQuery(u.Fragment); err == nil {
			q = fq
		}
	}
	data.Code = q.Get("code")
	if data.Code == "" {
		data.Code = q.Get("access_token")
	}
	if data.Code == "" {
		data.Title = "Authorization failed"
		data.Message = q.Get("error_description")
		if data.Message == "" {
			data.Message = q.Get("error")
		}
	}

	h.renderPage(w, oobTemplate, data, http.StatusOK)
}

func (h *Handler) renderPage(w http.ResponseWriter, tmpl *template.Template, data any, status int) {
	// Render into a buffer so a template failure does not leave a half-written page
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	security.SetPageSecurityHeaders(w, h.config.Security.HTTPS)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
