package middleware

import "net/http"

// CORS permits cross-origin submissions from any origin. The public vote
// endpoint is called straight from browsers on third-party pages; only the
// declared methods plus the preflight OPTIONS are accepted.
func CORS(methods ...string) func(http.Handler) http.Handler {
	allow := "OPTIONS"
	for _, m := range methods {
		allow += ", " + m
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", allow)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Device-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
