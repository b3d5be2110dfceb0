package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

var (
	ErrClientClosed = errors.New("websocket: client is closed")
	ErrSendBuffer   = errors.New("websocket: send buffer is full")
)

const (
	sendBufferSize = 64
	writeTimeout   = 10 * time.Second
)

// Close reasons sent to the peer.
const (
	ReasonSuperseded = "superseded"
	ReasonGoingAway  = "going away"
)

// State is where a connection is in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is one user's live connection. Frames queued with Send are written
// by WriteMessage, so only one goroutine ever writes data frames.
type Client struct {
	Username string

	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	reason     atomic.Value
	state      atomic.Int32
	messageLim *rate.Limiter
}

func NewClient(conn *websocket.Conn, username string) *Client {
	return &Client{
		Username: username,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) SetMessageLimiter(requests int, window time.Duration) {
	c.messageLim = rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests)
}

func (c *Client) allowMessage() bool {
	return c.messageLim == nil || c.messageLim.Allow()
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues payload without blocking. A client that cannot keep up loses
// the frame rather than stalling the sender.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBuffer
	}
}

// Close stops the writer, which then closes the connection with reason.
// Safe to call more than once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason.Store(reason)
		close(c.done)
	})
}

func (c *Client) closeReason() string {
	reason, _ := c.reason.Load().(string)
	return reason
}

// WriteMessage writes queued frames to the websocket until the client is
// closed or ctx ends, then closes the connection.
func (c *Client) WriteMessage(ctx context.Context) {
	defer func() {
		reason := c.closeReason()
		c.conn.Close(closeStatus(reason), reason)
	}()

	for {
		select {
		case payload := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				slog.WarnContext(ctx, "failed to write frame",
					"error", err,
					"username", c.Username)
				c.Close("write failed")
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			c.Close(ReasonGoingAway)
			return
		}
	}
}

// closeStatus maps a close reason to the status code the peer sees.
func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case ReasonSuperseded:
		return websocket.StatusPolicyViolation
	case ReasonGoingAway:
		return websocket.StatusGoingAway
	}
	return websocket.StatusNormalClosure
}

// Keepalive pings the client every interval. Firewalls and proxies drop
// quiet connections, and a peer that stops answering is only noticed by
// writing to it. A missed pong closes the client.
func (c *Client) Keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.InfoContext(ctx, "ping failed; closing connection",
						"error", err,
						"username", c.Username)
				}
				c.Close("ping timeout")
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}
