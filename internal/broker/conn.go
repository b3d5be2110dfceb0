package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ConnOptions describes how to reach the NATS server.
type ConnOptions struct {
	URL           string
	CredsFile     string
	User          string
	Password      string
	Name          string
	ReconnectWait time.Duration
}

// Connect dials NATS with unlimited reconnects so a broker outage only costs
// the events published while it lasts.
func Connect(opts ConnOptions) (*nats.Conn, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("broker: NATS URL is not set")
	}

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("nats connection closed")
		}),
	}

	if opts.CredsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(opts.CredsFile))
	} else if opts.User != "" && opts.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.User, opts.Password))
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to connect to nats: %w", err)
	}
	return conn, nil
}

// EnsureStream creates or updates the in-memory stream behind SubjectDirect.
// Events are only a delivery hint, the ledger is the record, so the stream
// keeps them briefly.
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectDirect},
		Storage:    jetstream.MemoryStorage,
		MaxAge:     10 * time.Minute,
		MaxBytes:   64 << 20,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: failed to create/update stream: %w", err)
	}
	return stream, nil
}
