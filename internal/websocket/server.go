// Package websocket runs the per-connection session: it registers the
// connection, reads frames from it and hands them to the relay.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/recipechat/internal/chat"
	"github.com/johndosdos/recipechat/internal/model"
)

// Deliverer is the relay as seen by a session.
type Deliverer interface {
	Deliver(ctx context.Context, sender, receiver, body string) (model.Message, error)
}

type Options struct {
	OriginPatterns []string
	MaxMessageSize int64
	PingInterval   time.Duration
	// IdleTimeout closes a connection that sends nothing for this long.
	// Zero disables it.
	IdleTimeout   time.Duration
	MessageBurst  int
	MessageWindow time.Duration
}

type Server struct {
	relay    Deliverer
	registry *chat.Registry
	metrics  *chat.Metrics
	opts     Options
}

func NewServer(relay Deliverer, registry *chat.Registry, metrics *chat.Metrics, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 8192
	}

	return &Server{
		relay:    relay,
		registry: registry,
		metrics:  metrics,
		opts:     opts,
	}
}

// Serve upgrades the request and runs username's session until the
// connection closes. The caller has already authenticated username.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, username string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		slog.WarnContext(r.Context(), "failed to accept websocket",
			"error", err,
			"username", username)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageSize)

	c := NewClient(conn, username)
	if s.opts.MessageBurst > 0 && s.opts.MessageWindow > 0 {
		c.SetMessageLimiter(s.opts.MessageBurst, s.opts.MessageWindow)
	}

	s.run(r.Context(), c)
}

func (s *Server) run(parent context.Context, c *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if prev := s.registry.Register(c.Username, c); prev != nil {
		prev.Close(ReasonSuperseded)
	}
	c.setState(StateOpen)
	s.metrics.SetConnections(s.registry.Len())
	slog.InfoContext(ctx, "client connected", "username", c.Username)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.WriteMessage(ctx)
	}()
	go c.Keepalive(ctx, s.opts.PingInterval)

	s.ReadMessage(ctx, c)

	s.registry.Unregister(c.Username, c)
	s.metrics.SetConnections(s.registry.Len())
	c.Close("")
	<-writerDone
	c.setState(StateClosed)
	slog.InfoContext(ctx, "client disconnected", "username", c.Username)
}

// ReadMessage reads the incoming data from the websocket stream until the
// connection fails. Frames that are not well-formed are dropped and the
// connection stays open.
func (s *Server) ReadMessage(ctx context.Context, c *Client) {
	for {
		readCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.opts.IdleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, s.opts.IdleTimeout)
		}
		msgType, p, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.InfoContext(ctx, "websocket read failed",
					"error", err,
					"username", c.Username)
			}
			return
		}

		// The app only supports text format.
		if msgType != websocket.MessageText {
			continue
		}

		var frame model.InboundFrame
		if err := json.Unmarshal(p, &frame); err != nil || frame.To == "" || frame.Message == "" {
			slog.DebugContext(ctx, "dropping malformed frame",
				"username", c.Username,
				"size", len(p))
			continue
		}

		if !c.allowMessage() {
			s.sendError(ctx, c, "rate limited", frame.To)
			continue
		}

		if _, err := s.relay.Deliver(ctx, c.Username, frame.To, frame.Message); err != nil {
			slog.InfoContext(ctx, "send failed",
				"error", err,
				"sender", c.Username,
				"receiver", frame.To)
			s.sendError(ctx, c, errorText(err), frame.To)
		}
	}
}

func (s *Server) sendError(ctx context.Context, c *Client, text, to string) {
	payload, err := json.Marshal(model.ErrorFrame{Error: text, To: to})
	if err != nil {
		return
	}
	if err := c.Send(payload); err != nil {
		slog.DebugContext(ctx, "could not queue error frame",
			"error", err,
			"username", c.Username)
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		return "invalid message"
	case errors.Is(err, chat.ErrUnknownUser):
		return "unknown user"
	case errors.Is(err, chat.ErrNotPermitted):
		return "not permitted"
	}
	return "send failed"
}
