package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/recipechat/internal/auth"
	"github.com/johndosdos/recipechat/internal/database"
)

type edge struct{ requester, addressee string }

// memFriends keeps friendships the way the friendships table does: one row
// per (requester, addressee), accepted or pending.
type memFriends struct {
	mu    sync.Mutex
	users map[string]bool
	rows  map[edge]bool
	err   error
}

func newMemFriends(users ...string) *memFriends {
	f := &memFriends{users: map[string]bool{}, rows: map[edge]bool{}}
	for _, u := range users {
		f.users[u] = true
	}
	return f
}

func (f *memFriends) IsApprovedUser(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[username], f.err
}

func (f *memFriends) AreFriends(_ context.Context, arg database.AreFriendsParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[edge{arg.Requester, arg.Addressee}] || f.rows[edge{arg.Addressee, arg.Requester}], f.err
}

func (f *memFriends) CreateFriendRequest(_ context.Context, arg database.CreateFriendRequestParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	e := edge{arg.Requester, arg.Addressee}
	if _, ok := f.rows[e]; ok {
		return 0, nil
	}
	f.rows[e] = false
	return 1, nil
}

func (f *memFriends) AcceptFriendRequest(_ context.Context, arg database.AcceptFriendRequestParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	e := edge{arg.Requester, arg.Addressee}
	if accepted, ok := f.rows[e]; !ok || accepted {
		return 0, nil
	}
	f.rows[e] = true
	return 1, nil
}

func (f *memFriends) DeleteFriendRequest(_ context.Context, arg database.DeleteFriendRequestParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	e := edge{arg.Requester, arg.Addressee}
	if accepted, ok := f.rows[e]; !ok || accepted {
		return 0, nil
	}
	delete(f.rows, e)
	return 1, nil
}

func (f *memFriends) ListFriendRequests(_ context.Context, addressee string) ([]database.Friendship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Friendship
	for e, accepted := range f.rows {
		if e.addressee == addressee && !accepted {
			out = append(out, database.Friendship{
				Requester: e.requester,
				Addressee: e.addressee,
				CreatedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Requester < out[j].Requester })
	return out, f.err
}

func (f *memFriends) ListFriends(_ context.Context, username string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for e, accepted := range f.rows {
		switch {
		case !accepted:
		case e.requester == username:
			out = append(out, e.addressee)
		case e.addressee == username:
			out = append(out, e.requester)
		}
	}
	sort.Strings(out)
	return out, f.err
}

func friendsRouter(store FriendStore) http.Handler {
	r := chi.NewRouter()
	r.Get("/friends", ServeFriends(store))
	r.Get("/friends/requests", ServeFriendRequests(store))
	r.Post("/friends/requests/{username}", SendFriendRequest(store))
	r.Post("/friends/requests/{username}/accept", RespondFriendRequest(store, true))
	r.Post("/friends/requests/{username}/reject", RespondFriendRequest(store, false))
	return r
}

func doAs(t *testing.T, h http.Handler, user, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		req = req.WithContext(auth.WithUser(req.Context(), auth.User{Username: user}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestFriendRequestFlow(t *testing.T) {
	store := newMemFriends("alice", "bob", "carol")
	h := friendsRouter(store)

	rec := doAs(t, h, "alice", http.MethodPost, "/friends/requests/bob")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, friendStatus{Username: "bob", Status: friendPending}, decode[friendStatus](t, rec))

	// Not friends until bob answers.
	rec = doAs(t, h, "alice", http.MethodGet, "/friends")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]string](t, rec))

	rec = doAs(t, h, "bob", http.MethodGet, "/friends/requests")
	require.Equal(t, http.StatusOK, rec.Code)
	requests := decode[[]friendRequest](t, rec)
	require.Len(t, requests, 1)
	assert.Equal(t, "alice", requests[0].From)

	rec = doAs(t, h, "bob", http.MethodPost, "/friends/requests/alice/accept")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, friendStatus{Username: "alice", Status: friendAccepted}, decode[friendStatus](t, rec))

	for user, want := range map[string][]string{"alice": {"bob"}, "bob": {"alice"}, "carol": {}} {
		rec = doAs(t, h, user, http.MethodGet, "/friends")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode[[]string](t, rec), user)
	}

	rec = doAs(t, h, "bob", http.MethodGet, "/friends/requests")
	assert.Empty(t, decode[[]friendRequest](t, rec))
}

func TestSendFriendRequestAcceptsCrossedRequest(t *testing.T) {
	store := newMemFriends("alice", "bob")
	h := friendsRouter(store)

	require.Equal(t, http.StatusCreated, doAs(t, h, "alice", http.MethodPost, "/friends/requests/bob").Code)

	rec := doAs(t, h, "bob", http.MethodPost, "/friends/requests/alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, friendAccepted, decode[friendStatus](t, rec).Status)

	ok, err := store.AreFriends(context.Background(), database.AreFriendsParams{Requester: "bob", Addressee: "alice"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRejectFriendRequest(t *testing.T) {
	store := newMemFriends("alice", "bob")
	h := friendsRouter(store)

	require.Equal(t, http.StatusCreated, doAs(t, h, "alice", http.MethodPost, "/friends/requests/bob").Code)
	require.Equal(t, http.StatusNoContent, doAs(t, h, "bob", http.MethodPost, "/friends/requests/alice/reject").Code)

	rec := doAs(t, h, "bob", http.MethodGet, "/friends/requests")
	assert.Empty(t, decode[[]friendRequest](t, rec))

	// A rejected request can be sent again.
	assert.Equal(t, http.StatusCreated, doAs(t, h, "alice", http.MethodPost, "/friends/requests/bob").Code)
}

func TestSendFriendRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*memFriends)
		user     string
		target   string
		wantCode int
	}{
		{"no_user", nil, "", "/friends/requests/bob", http.StatusUnauthorized},
		{"self", nil, "alice", "/friends/requests/alice", http.StatusBadRequest},
		{"unknown_user", nil, "alice", "/friends/requests/mallory", http.StatusNotFound},
		{
			name:     "already_sent",
			setup:    func(f *memFriends) { f.rows[edge{"alice", "bob"}] = false },
			user:     "alice",
			target:   "/friends/requests/bob",
			wantCode: http.StatusConflict,
		},
		{
			name:     "already_friends",
			setup:    func(f *memFriends) { f.rows[edge{"bob", "alice"}] = true },
			user:     "alice",
			target:   "/friends/requests/bob",
			wantCode: http.StatusConflict,
		},
		{
			name:     "store_error",
			setup:    func(f *memFriends) { f.err = errors.New("db down") },
			user:     "alice",
			target:   "/friends/requests/bob",
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemFriends("alice", "bob")
			if tt.setup != nil {
				tt.setup(store)
			}
			rec := doAs(t, friendsRouter(store), tt.user, http.MethodPost, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRespondFriendRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*memFriends)
		user     string
		target   string
		wantCode int
	}{
		{"no_user", nil, "", "/friends/requests/alice/accept", http.StatusUnauthorized},
		{"no_request", nil, "bob", "/friends/requests/alice/accept", http.StatusNotFound},
		{"reject_no_request", nil, "bob", "/friends/requests/alice/reject", http.StatusNotFound},
		{
			// Only the addressee can answer.
			name:     "wrong_side",
			setup:    func(f *memFriends) { f.rows[edge{"alice", "bob"}] = false },
			user:     "alice",
			target:   "/friends/requests/bob/accept",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "already_accepted",
			setup:    func(f *memFriends) { f.rows[edge{"alice", "bob"}] = true },
			user:     "bob",
			target:   "/friends/requests/alice/reject",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "store_error",
			setup:    func(f *memFriends) { f.err = errors.New("db down") },
			user:     "bob",
			target:   "/friends/requests/alice/accept",
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemFriends("alice", "bob")
			if tt.setup != nil {
				tt.setup(store)
			}
			rec := doAs(t, friendsRouter(store), tt.user, http.MethodPost, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestFriendListsStoreError(t *testing.T) {
	store := newMemFriends("alice")
	store.err = errors.New("db down")
	h := friendsRouter(store)

	assert.Equal(t, http.StatusInternalServerError, doAs(t, h, "alice", http.MethodGet, "/friends").Code)
	assert.Equal(t, http.StatusInternalServerError, doAs(t, h, "alice", http.MethodGet, "/friends/requests").Code)
	assert.Equal(t, http.StatusUnauthorized, doAs(t, h, "", http.MethodGet, "/friends").Code)
}
