package auth

import (
	"log/slog"
	"net/http"

	"scuola-service/pkg/response"
	"scuola-service/pkg/sl"

	"github.com/go-chi/render"
)

// Authenticate rejects requests without a valid bearer token and stores
// the Principal in the request context for downstream handlers.
func Authenticate(log *slog.Logger, secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := ParseFromRequest(r, secret)
			if err != nil {
				log.Warn("Unauthenticated request", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "authentication required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin guards admin-only routes. Must run after Authenticate.
func RequireAdmin(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := FromContext(r.Context())
			if !ok || !principal.IsAdmin() {
				log.Warn("Admin route denied", slog.String("path", r.URL.Path))
				w.WriteHeader(http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.FORBIDDEN), "admin role required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
