// Package ledger is the durable record of delivered direct messages.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"github.com/johndosdos/recipechat/internal/database"
	"github.com/johndosdos/recipechat/internal/model"
)

const (
	// DefaultLimit is the window loaded when a conversation is first opened.
	DefaultLimit = 50
	// MaxLimit is the window for the full-history view.
	MaxLimit = 200
)

// ErrInvalidPair is returned when a conversation is requested for an empty
// participant.
var ErrInvalidPair = errors.New("ledger: both participants are required")

// Store appends to and reads from the messages table.
type Store struct {
	db *database.Queries
}

// New returns a Store backed by the given queries.
func New(db *database.Queries) *Store {
	return &Store{db: db}
}

// ClampLimit maps a requested window onto [1, MaxLimit], with non-positive
// values falling back to DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Append persists m. The store assigns the row id and created_at; the
// returned message carries both.
func (s *Store) Append(ctx context.Context, m model.Message) (model.Message, error) {
	row, err := s.db.CreateMessage(ctx, database.CreateMessageParams{
		PublicID: pgtype.UUID{Bytes: m.PublicID, Valid: true},
		Sender:   m.Sender,
		Receiver: m.Receiver,
		Body:     m.Body,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("ledger: failed to append message: %w", err)
	}

	return fromRow(row), nil
}

// History returns the most recent limit messages exchanged between a and b
// in either direction, oldest first.
func (s *Store) History(ctx context.Context, a, b string, limit int) ([]model.Message, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidPair
	}

	rows, err := s.db.ListConversation(ctx, database.ListConversationParams{
		Sender:   a,
		Receiver: b,
		Limit:    int32(ClampLimit(limit)), //nolint:gosec
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to list conversation: %w", err)
	}

	// Rows arrive newest first.
	messages := lo.Map(rows, func(row database.Message, _ int) model.Message {
		return fromRow(row)
	})
	return lo.Reverse(messages), nil
}

func fromRow(row database.Message) model.Message {
	return model.Message{
		ID:        row.ID,
		PublicID:  row.PublicID.Bytes,
		Sender:    row.Sender,
		Receiver:  row.Receiver,
		Body:      row.Body,
		CreatedAt: row.CreatedAt.Time,
	}
}
