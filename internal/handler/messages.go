package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/johndosdos/recipechat/internal/auth"
	"github.com/johndosdos/recipechat/internal/model"
)

type HistoryReader interface {
	History(ctx context.Context, a, b string, limit int) ([]model.Message, error)
}

// ServeMessages returns the conversation between the current user and the
// ?with= user, oldest first. ?limit= picks the window; the ledger clamps it.
func ServeMessages(history HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		with := r.URL.Query().Get("with")
		if with == "" {
			http.Error(w, "Missing 'with' parameter.", http.StatusBadRequest)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid 'limit' parameter.", http.StatusBadRequest)
				return
			}
		}

		messages, err := history.History(ctx, user.Username, with, limit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "failed to load messages from database",
				"error", err,
				"username", user.Username,
				"with", with)
			http.Error(w, "Database error.", http.StatusInternalServerError)
			return
		}

		if messages == nil {
			messages = []model.Message{}
		}

		writeJSON(ctx, w, http.StatusOK, messages)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(ctx, "failed to write response", "error", err)
	}
}
