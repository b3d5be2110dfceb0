package handler

import (
	"log/slog"
	"net/http"

	"github.com/johndosdos/recipechat/internal/auth"
	ws "github.com/johndosdos/recipechat/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade. The route is
// behind the JWT middleware, which has already matched the path username
// against the token.
func ServeWs(s *ws.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		if err != nil {
			slog.WarnContext(r.Context(), "websocket request without user", "error", err)
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		// Blocks for the lifetime of the connection.
		s.Serve(w, r, user.Username)
	}
}
