package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/johndosdos/recipechat/internal/model"
)

var errClosed = errors.New("channel closed")

type fakeChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed string
	err    error
}

func (c *fakeChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeChannel) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

func (c *fakeChannel) deliveries() []model.DeliveryFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.DeliveryFrame, 0, len(c.frames))
	for _, f := range c.frames {
		var d model.DeliveryFrame
		_ = json.Unmarshal(f, &d)
		out = append(out, d)
	}
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	messages []model.Message
	err      error
}

func (l *fakeLedger) Append(_ context.Context, m model.Message) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return model.Message{}, l.err
	}
	m.ID = int64(len(l.messages) + 1)
	m.CreatedAt = time.Now().UTC()
	l.messages = append(l.messages, m)
	return m, nil
}

func (l *fakeLedger) rows() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Message(nil), l.messages...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) published() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}
