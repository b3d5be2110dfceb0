// Package model defines data structure.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single direct message as recorded in the ledger.
type Message struct {
	ID        int64     `json:"-"`
	PublicID  uuid.UUID `json:"id"`
	Sender    string    `json:"sender" validate:"required"`
	Receiver  string    `json:"receiver" validate:"required"`
	Body      string    `json:"body" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is the payload carried on the broadcast subject so that peer
// instances can deliver a message to a receiver connected elsewhere.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Origin    string    `json:"origin"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent builds the broadcast event for a persisted message.
func NewEvent(origin string, m Message) Event {
	return Event{
		ID:        m.PublicID,
		Origin:    origin,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
