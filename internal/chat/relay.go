// Package chat routes direct messages between connected users: it records
// each message in the ledger, pushes it to the receiver when they are
// connected to this instance, and broadcasts it for peer instances.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/johndosdos/recipechat/internal/model"
)

var (
	ErrInvalidMessage = errors.New("chat: sender, receiver and message are required")
	ErrPersist        = errors.New("chat: message could not be saved")
)

// Ledger is the durable side of a send.
type Ledger interface {
	Append(ctx context.Context, m model.Message) (model.Message, error)
}

// Publisher carries events to the other instances.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Relay persists a message and routes it to its receiver.
type Relay struct {
	instance  string
	ledger    Ledger
	registry  *Registry
	publisher Publisher
	gate      Gate
	validate  *validator.Validate
	metrics   *Metrics
}

// NewRelay returns a Relay publishing as instance. A nil gate allows every
// send.
func NewRelay(instance string, ledger Ledger, registry *Registry, publisher Publisher, gate Gate, metrics *Metrics) *Relay {
	if gate == nil {
		gate = AllowAll
	}

	return &Relay{
		instance:  instance,
		ledger:    ledger,
		registry:  registry,
		publisher: publisher,
		gate:      gate,
		validate:  validator.New(),
		metrics:   metrics,
	}
}

// Deliver records body from sender to receiver and routes it. An error means
// nothing was persisted and nothing was delivered. Once the message is in the
// ledger, delivery problems are logged and Deliver still succeeds.
func (r *Relay) Deliver(ctx context.Context, sender, receiver, body string) (model.Message, error) {
	// The body is stored and delivered exactly as sent. Frames and history
	// are JSON, so clients decide how to render it.
	msg := model.Message{
		PublicID: uuid.New(),
		Sender:   strings.TrimSpace(sender),
		Receiver: strings.TrimSpace(receiver),
		Body:     body,
	}

	if err := r.validate.Struct(msg); err != nil {
		r.metrics.incRejected("invalid")
		return model.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(msg.Body) == "" {
		r.metrics.incRejected("invalid")
		return model.Message{}, fmt.Errorf("%w: body is blank", ErrInvalidMessage)
	}

	if err := r.gate.Allow(ctx, msg.Sender, msg.Receiver); err != nil {
		r.metrics.incRejected("gate")
		return model.Message{}, err
	}

	saved, err := r.ledger.Append(ctx, msg)
	if err != nil {
		r.metrics.incRejected("persist")
		return model.Message{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	r.metrics.incPersisted()

	switch pushed, err := push(r.registry, saved.Sender, saved.Receiver, saved.Body); {
	case err != nil:
		r.metrics.incPushFailure()
		slog.WarnContext(ctx, "failed to push delivery frame",
			"error", err,
			"message_id", saved.PublicID.String(),
			"receiver", saved.Receiver)
	case pushed:
		r.metrics.incLocal()
	}

	// Publish even after a local push: the receiver may also be connected to
	// another instance. Our own subscriber drops the echo by origin.
	if err := r.publisher.Publish(ctx, model.NewEvent(r.instance, saved)); err != nil {
		r.metrics.incPublishFailure()
		slog.WarnContext(ctx, "failed to publish message event",
			"error", err,
			"message_id", saved.PublicID.String(),
			"sender", saved.Sender,
			"receiver", saved.Receiver)
	}

	return saved, nil
}

// push writes a delivery frame to receiver's channel on this instance. It
// reports false with a nil error when receiver is not connected here.
func push(registry *Registry, sender, receiver, body string) (bool, error) {
	ch, ok := registry.Lookup(receiver)
	if !ok {
		return false, nil
	}

	frame, err := json.Marshal(model.DeliveryFrame{From: sender, Message: body})
	if err != nil {
		return false, fmt.Errorf("chat: failed to encode delivery frame: %w", err)
	}

	if err := ch.Send(frame); err != nil {
		return false, err
	}
	return true, nil
}
