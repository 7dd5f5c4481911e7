package middleware

import "net/http"

// RequireScope rejects API requests whose key does not hold scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				respondError(w, http.StatusUnauthorized, "missing_api_key", "API key required")
				return
			}
			if !principal.HasScope(scope) {
				respondError(w, http.StatusForbidden, "insufficient_scope", "API key does not have the "+scope+" scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
