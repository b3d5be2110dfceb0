package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/johndosdos/recipechat/internal/database"
)

var (
	ErrNotPermitted = errors.New("chat: sender may not message receiver")
	ErrUnknownUser  = errors.New("chat: unknown or unapproved user")
)

// Gate decides whether sender may message receiver. It runs before anything
// is persisted.
type Gate interface {
	Allow(ctx context.Context, sender, receiver string) error
}

// GateFunc adapts a plain function to Gate.
type GateFunc func(ctx context.Context, sender, receiver string) error

func (f GateFunc) Allow(ctx context.Context, sender, receiver string) error {
	return f(ctx, sender, receiver)
}

// AllowAll lets every send through.
var AllowAll Gate = GateFunc(func(context.Context, string, string) error { return nil })

// Directory resolves whether a username belongs to an approved account.
type Directory interface {
	IsApprovedUser(ctx context.Context, username string) (bool, error)
}

// DirectoryGate requires both participants to be approved users.
type DirectoryGate struct {
	Directory Directory
}

func (g DirectoryGate) Allow(ctx context.Context, sender, receiver string) error {
	for _, name := range lo.Uniq([]string{sender, receiver}) {
		ok, err := g.Directory.IsApprovedUser(ctx, name)
		if err != nil {
			return fmt.Errorf("chat: failed to look up user %q: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownUser, name)
		}
	}
	return nil
}

// SocialGraph answers whether two users are accepted friends.
type SocialGraph interface {
	AreFriends(ctx context.Context, arg database.AreFriendsParams) (bool, error)
}

// FriendGate only lets friends message each other. Messaging yourself is
// always allowed.
type FriendGate struct {
	Graph SocialGraph
}

func (g FriendGate) Allow(ctx context.Context, sender, receiver string) error {
	if sender == receiver {
		return nil
	}

	ok, err := g.Graph.AreFriends(ctx, database.AreFriendsParams{
		Requester: sender,
		Addressee: receiver,
	})
	if err != nil {
		return fmt.Errorf("chat: failed to check friendship: %w", err)
	}
	if !ok {
		return ErrNotPermitted
	}
	return nil
}

// Gates runs each non-nil gate in order and stops at the first refusal.
func Gates(gates ...Gate) Gate {
	gates = lo.Filter(gates, func(g Gate, _ int) bool { return g != nil })
	return GateFunc(func(ctx context.Context, sender, receiver string) error {
		for _, g := range gates {
			if err := g.Allow(ctx, sender, receiver); err != nil {
				return err
			}
		}
		return nil
	})
}
