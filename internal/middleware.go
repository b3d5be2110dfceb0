package internal

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/recipechat/internal/auth"
)

// Middleware validates the client's JWT and stores the user on the request
// context. The token is read from the "jwt" cookie, or from an
// "Authorization: Bearer" header for non-browser clients.
func Middleware(tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				if jwtCookie, err := r.Cookie("jwt"); err == nil {
					tokenString = jwtCookie.Value
				}
			}

			if tokenString == "" {
				http.Error(w, "Unauthorized.", http.StatusUnauthorized)
				return
			}

			user, err := auth.ValidateJWT(tokenString, tokenSecret)
			if err != nil {
				slog.InfoContext(r.Context(), "rejected session token",
					"error", err,
					"path", r.URL.Path)
				http.Error(w, "Unauthorized.", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}

// RequirePathUser rejects requests whose {param} URL segment names someone
// other than the authenticated user.
func RequirePathUser(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized.", http.StatusUnauthorized)
				return
			}

			if chi.URLParam(r, param) != user.Username {
				slog.WarnContext(r.Context(), "path user does not match token",
					"token_user", user.Username,
					"path_user", chi.URLParam(r, param))
				http.Error(w, "Forbidden.", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
