package http

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// adminAuthMiddleware enforces O3's deny-by-default X-Admin-Token check on
// the funnel analytics routes (§4.8): with no token configured, every
// request is rejected unless DevOpenAdmin was explicitly set.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.DevOpenAdmin {
			next.ServeHTTP(w, r)
			return
		}

		if s.deps.AdminTokenHash == "" {
			writeJSONError(w, http.StatusForbidden, "admin_disabled", "Admin access is not configured")
			return
		}

		token := r.Header.Get("X-Admin-Token")
		if token == "" || bcrypt.CompareHashAndPassword([]byte(s.deps.AdminTokenHash), []byte(token)) != nil {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing X-Admin-Token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
