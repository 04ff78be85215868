package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders sets browser hardening headers. formActions lists the origins the
// checkout page may post to, normally the gateway host.
func SecurityHeaders(production bool, formActions ...string) func(http.Handler) http.Handler {
	// the checkout page auto-submits with an inline handler, so inline script is allowed
	csp := strings.Join([]string{
		"default-src 'none'",
		"script-src 'unsafe-inline'",
		"style-src 'unsafe-inline'",
		"form-action " + strings.Join(append([]string{"'self'"}, formActions...), " "),
		"frame-ancestors 'none'",
		"base-uri 'none'",
	}, "; ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", csp)
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			// HSTS only in production to avoid pinning localhost to https
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
