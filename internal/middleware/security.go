// internal/middleware/security.go
//
// Security headers for the JSON ops API.
//
//   • X-Content-Type-Options   MIME-sniffing defence
//   • X-Frame-Options          nothing here is meant to be framed
//   • Cache-Control            reports are live data
//   • Content-Security-Policy  no active content at all
//
// Headers are set before next runs so they also reach handlers that call
// WriteHeader early.  Handlers may still override them.
package middleware

import "net/http"

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	const (
		nosn = "nosniff"
		xfo  = "DENY"
		cc   = "no-store"
		csp  = "default-src 'none'; frame-ancestors 'none'"
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", nosn)
		h.Set("X-Frame-Options", xfo)
		h.Set("Cache-Control", cc)
		h.Set("Content-Security-Policy", csp)
		next.ServeHTTP(w, r)
	})
}
