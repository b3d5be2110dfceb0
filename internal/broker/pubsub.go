package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sethvargo/go-retry"

	"github.com/johndosdos/recipechat/internal/model"
)

// Publisher sends message events to the shared subject.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// Publish sends ev. The message id doubles as the JetStream dedupe id so a
// retried publish is stored once.
func (p *Publisher) Publish(ctx context.Context, ev model.Event) error {
	if p.js == nil {
		return fmt.Errorf("jetstream interface is nil")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	_, err = p.js.Publish(ctx,
		SubjectDirect,
		payload,
		jetstream.WithMsgID(ev.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", SubjectDirect, err)
	}
	return nil
}

// Handler receives decoded events.
type Handler func(ctx context.Context, ev model.Event)

// Subscriber feeds new events on SubjectDirect to a Handler. Events published
// while it is not consuming are not replayed.
type Subscriber struct {
	stream  jetstream.Stream
	handle  Handler
	backoff func() retry.Backoff
	// resetAfter is how long a consumer must stay up before the next outage
	// starts again from the shortest delay.
	resetAfter time.Duration
}

const reconnectCap = 30 * time.Second

func NewSubscriber(stream jetstream.Stream, handle Handler) *Subscriber {
	return &Subscriber{
		stream: stream,
		handle: handle,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(500 * time.Millisecond)
			b = retry.WithCappedDuration(reconnectCap, b)
			return retry.WithJitterPercent(10, b)
		},
		resetAfter: reconnectCap,
	}
}

// Run consumes until ctx is cancelled, re-opening the consumer with
// exponential backoff whenever it fails.
func (s *Subscriber) Run(ctx context.Context) error {
	b := newReconnectBackoff(s.backoff, s.resetAfter)

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		started := time.Now()
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.ran(time.Since(started))
		slog.WarnContext(ctx, "broadcast consumer stopped; reconnecting", "error", err)
		return retry.RetryableError(err)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// reconnectBackoff hands out delays from one backoff sequence and starts a
// fresh sequence after a consumer that stayed up for at least resetAfter.
type reconnectBackoff struct {
	newBackoff func() retry.Backoff
	resetAfter time.Duration
	cur        retry.Backoff
}

func newReconnectBackoff(newBackoff func() retry.Backoff, resetAfter time.Duration) *reconnectBackoff {
	return &reconnectBackoff{
		newBackoff: newBackoff,
		resetAfter: resetAfter,
		cur:        newBackoff(),
	}
}

// ran records how long the last consumer was up.
func (b *reconnectBackoff) ran(uptime time.Duration) {
	if uptime >= b.resetAfter {
		b.cur = b.newBackoff()
	}
}

func (b *reconnectBackoff) Next() (time.Duration, bool) {
	return b.cur.Next()
}

// consume runs one consumer until it closes or ctx ends.
func (s *Subscriber) consume(ctx context.Context) error {
	consumer, err := s.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SubjectDirect},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create ordered consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		var ev model.Event
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.WarnContext(ctx, "could not decode broadcast payload", "error", err)
			return
		}
		s.handle(ctx, ev)
	}

	errCh := make(chan error, 1)
	optErrHandler := jetstream.ConsumeErrHandler(func(cc jetstream.ConsumeContext, err error) {
		slog.WarnContext(ctx, "consumer error", "error", err)
		if errors.Is(err, jetstream.ErrConsumerDeleted) || errors.Is(err, jetstream.ErrNoHeartbeat) {
			select {
			case errCh <- err:
			default:
			}
			cc.Stop()
		}
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}
	defer consumeCtx.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	case <-consumeCtx.Closed():
		return errors.New("consumer closed")
	}
}
