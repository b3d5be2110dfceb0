package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/johndosdos/recipechat/internal/auth"
	"github.com/johndosdos/recipechat/internal/database"
)

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
}

// TokenConfig is how login signs session tokens.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type loginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SubmitLoginForm checks a username and password and issues a session
// token, both as the "jwt" cookie and in the response body. Accounts that
// have not been approved yet cannot log in.
func SubmitLoginForm(users UserStore, tokens TokenConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		err := r.ParseForm()
		if err != nil {
			http.Error(w, "Invalid form data.", http.StatusBadRequest)
			slog.InfoContext(ctx, "failed to parse form values", "error", err)
			return
		}

		username := r.PostFormValue("username")
		password := r.PostFormValue("password")
		if username == "" || password == "" {
			http.Error(w, "Username and password are required.", http.StatusBadRequest)
			return
		}

		user, err := users.GetUserByUsername(ctx, username)
		if err != nil || !user.Approved {
			http.Error(w, "Invalid username or password.", http.StatusUnauthorized)
			slog.InfoContext(ctx, "login refused",
				"username", username,
				"error", err)
			return
		}

		ok, err := auth.CheckPasswordHash(password, user.HashedPassword)
		if err != nil {
			http.Error(w, "Server error.", http.StatusInternalServerError)
			slog.ErrorContext(ctx, "cannot verify password, hash may be corrupted",
				"error", err,
				"username", username)
			return
		}
		if !ok {
			http.Error(w, "Invalid username or password.", http.StatusUnauthorized)
			return
		}

		expiresAt := time.Now().UTC().Add(tokens.TTL)
		token, err := auth.MakeJWT(auth.User{Username: user.Username, Role: user.Role},
			tokens.Issuer, tokens.Secret, tokens.TTL)
		if err != nil {
			http.Error(w, "Server error.", http.StatusInternalServerError)
			slog.ErrorContext(ctx, "failed to create JWT", "error", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "jwt",
			Value:    token,
			Path:     "/",
			MaxAge:   int(tokens.TTL.Seconds()),
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(ctx, w, http.StatusOK, loginResponse{
			Token:     token,
			Username:  user.Username,
			Role:      user.Role,
			ExpiresAt: expiresAt,
		})

		slog.InfoContext(ctx, "user logged in",
			slog.String("username", user.Username))
	}
}

// SubmitLogoutReq clears the session cookie.
func SubmitLogoutReq() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     "jwt",
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}
