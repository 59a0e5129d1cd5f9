package middleware

import "net/http"

// SecurityHeaders sets response hardening headers. Responses here carry
// payment state, so nothing is cacheable.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// The return redirect carries the order id; keep it off third-party referrers.
			h.Set("Referrer-Policy", "same-origin")

			next.ServeHTTP(w, r)
		})
	}
}
