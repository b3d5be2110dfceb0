package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/johndosdos/recipechat/internal/auth"
	"github.com/johndosdos/recipechat/internal/database"
)

// FriendStore is the slice of the database the friend endpoints use.
type FriendStore interface {
	IsApprovedUser(ctx context.Context, username string) (bool, error)
	AreFriends(ctx context.Context, arg database.AreFriendsParams) (bool, error)
	CreateFriendRequest(ctx context.Context, arg database.CreateFriendRequestParams) (int64, error)
	AcceptFriendRequest(ctx context.Context, arg database.AcceptFriendRequestParams) (int64, error)
	DeleteFriendRequest(ctx context.Context, arg database.DeleteFriendRequestParams) (int64, error)
	ListFriendRequests(ctx context.Context, addressee string) ([]database.Friendship, error)
	ListFriends(ctx context.Context, username string) ([]string, error)
}

const (
	friendPending  = "pending"
	friendAccepted = "accepted"
)

type friendStatus struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type friendRequest struct {
	From      string    `json:"from"`
	CreatedAt time.Time `json:"created_at"`
}

// ServeFriends lists the current user's accepted friends.
func ServeFriends(store FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		friends, err := store.ListFriends(ctx, user.Username)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list friends",
				"error", err,
				"username", user.Username)
			http.Error(w, "Database error.", http.StatusInternalServerError)
			return
		}
		if friends == nil {
			friends = []string{}
		}

		writeJSON(ctx, w, http.StatusOK, friends)
	}
}

// ServeFriendRequests lists requests other users sent to the current user
// that are still waiting for an answer, oldest first.
func ServeFriendRequests(store FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		rows, err := store.ListFriendRequests(ctx, user.Username)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list friend requests",
				"error", err,
				"username", user.Username)
			http.Error(w, "Database error.", http.StatusInternalServerError)
			return
		}

		writeJSON(ctx, w, http.StatusOK, lo.Map(rows, func(row database.Friendship, _ int) friendRequest {
			return friendRequest{From: row.Requester, CreatedAt: row.CreatedAt.Time.UTC()}
		}))
	}
}

// SendFriendRequest asks the {username} user to become the current user's
// friend. If that user already asked first, their request is accepted
// instead of opening a second one.
func SendFriendRequest(store FriendStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		to := chi.URLParam(r, "username")
		switch {
		case to == "":
			http.Error(w, "Missing username.", http.StatusBadRequest)
			return
		case to == user.Username:
			http.Error(w, "Cannot send a friend request to yourself.", http.StatusBadRequest)
			return
		}

		exists, err := store.IsApprovedUser(ctx, to)
		if err != nil {
			friendDBError(ctx, w, err, "failed to look up user", user.Username, to)
			return
		}
		if !exists {
			http.Error(w, "User not found.", http.StatusNotFound)
			return
		}

		friends, err := store.AreFriends(ctx, database.AreFriendsParams{Requester: user.Username, Addressee: to})
		if err != nil {
			friendDBError(ctx, w, err, "failed to check friendship", user.Username, to)
			return
		}
		if friends {
			http.Error(w, "Already friends.", http.StatusConflict)
			return
		}

		accepted, err := store.AcceptFriendRequest(ctx, database.AcceptFriendRequestParams{
			Requester: to,
			Addressee: user.Username,
		})
		if err != nil {
			friendDBError(ctx, w, err, "failed to accept reverse friend request", user.Username, to)
			return
		}
		if accepted > 0 {
			slog.InfoContext(ctx, "friend request accepted",
				"requester", to,
				"addressee", user.Username)
			writeJSON(ctx, w, http.StatusOK, friendStatus{Username: to, Status: friendAccepted})
			return
		}

		created, err := store.CreateFriendRequest(ctx, database.CreateFriendRequestParams{
			Requester: user.Username,
			Addressee: to,
		})
		if err != nil {
			friendDBError(ctx, w, err, "failed to create friend request", user.Username, to)
			return
		}
		if created == 0 {
			http.Error(w, "Friend request already sent.", http.StatusConflict)
			return
		}

		slog.InfoContext(ctx, "friend request sent",
			"requester", user.Username,
			"addressee", to)
		writeJSON(ctx, w, http.StatusCreated, friendStatus{Username: to, Status: friendPending})
	}
}

// RespondFriendRequest accepts or rejects the pending request the {username}
// user sent to the current user. accept picks which. Rejecting removes the
// request, so it can be sent again later.
func RespondFriendRequest(store FriendStore, accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := auth.GetUserFromContext(ctx)
		if err != nil {
			http.Error(w, "Unauthorized.", http.StatusUnauthorized)
			return
		}

		from := chi.URLParam(r, "username")
		if from == "" {
			http.Error(w, "Missing username.", http.StatusBadRequest)
			return
		}

		var n int64
		if accept {
			n, err = store.AcceptFriendRequest(ctx, database.AcceptFriendRequestParams{
				Requester: from,
				Addressee: user.Username,
			})
		} else {
			n, err = store.DeleteFriendRequest(ctx, database.DeleteFriendRequestParams{
				Requester: from,
				Addressee: user.Username,
			})
		}
		if err != nil {
			friendDBError(ctx, w, err, "failed to answer friend request", user.Username, from)
			return
		}
		if n == 0 {
			http.Error(w, "No pending friend request.", http.StatusNotFound)
			return
		}

		if !accept {
			slog.InfoContext(ctx, "friend request rejected",
				"requester", from,
				"addressee", user.Username)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		slog.InfoContext(ctx, "friend request accepted",
			"requester", from,
			"addressee", user.Username)
		writeJSON(ctx, w, http.StatusOK, friendStatus{Username: from, Status: friendAccepted})
	}
}

func friendDBError(ctx context.Context, w http.ResponseWriter, err error, msg, username, other string) {
	slog.ErrorContext(ctx, msg,
		"error", err,
		"username", username,
		"other", other)
	http.Error(w, "Database error.", http.StatusInternalServerError)
}
