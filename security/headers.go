package security

import (
	"net/http"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	pageCSP = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"
)

// SetSecurityHeaders sets the headers used on every token endpoint and API response.
// HSTS is only sent when the server is reached over HTTPS.
func SetSecurityHeaders(w http.ResponseWriter, https bool) {
	setCommonHeaders(w, https)
	w.Header().Set("Content-Security-Policy", apiCSP)
}

// SetPageSecurityHeaders sets the headers for HTML pages rendered to the
// resource owner, such as the approval page. Inline styles are allowed; scripts
// and framing are not.
func SetPageSecurityHeaders(w http.ResponseWriter, https bool) {
	setCommonHeaders(w, https)
	w.Header().Set("Content-Security-Policy", pageCSP)
}

func setCommonHeaders(w http.ResponseWriter, https bool) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	if https {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	// Token responses must not be cached (RFC 6749 section 5.1)
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
