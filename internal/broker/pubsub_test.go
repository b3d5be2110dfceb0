package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/recipechat/internal/model"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()

	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func newStream(t *testing.T, url string) (*nats.Conn, jetstream.JetStream, jetstream.Stream) {
	t.Helper()

	conn, err := Connect(ConnOptions{URL: url, Name: t.Name(), ReconnectWait: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := EnsureStream(ctx, js)
	require.NoError(t, err)

	return conn, js, stream
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(ConnOptions{})
	assert.Error(t, err)
}

func TestPublishDeduplicatesByMessageID(t *testing.T) {
	s := runJetStream(t)
	_, js, stream := newStream(t, s.ClientURL())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub := NewPublisher(js)
	ev := model.Event{ID: uuid.New(), Origin: "a", Sender: "alice", Receiver: "bob", Body: "hi"}
	require.NoError(t, pub.Publish(ctx, ev))
	require.NoError(t, pub.Publish(ctx, ev))

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestPublishNilJetStream(t *testing.T) {
	err := (&Publisher{}).Publish(context.Background(), model.Event{ID: uuid.New()})
	assert.Error(t, err)
}

// publishUntilReceived keeps publishing fresh events carrying body until one
// comes out of received. The consumer only sees events published after it
// (re)starts, so a single publish could be missed.
func publishUntilReceived(t *testing.T, ctx context.Context, pub *Publisher, received <-chan model.Event, body string, waitFor time.Duration) model.Event {
	t.Helper()

	var got model.Event
	require.Eventually(t, func() bool {
		ev := model.Event{ID: uuid.New(), Origin: "a", Sender: "alice", Receiver: "bob", Body: body}
		if err := pub.Publish(ctx, ev); err != nil {
			return false
		}
		timeout := time.After(50 * time.Millisecond)
		for {
			select {
			case got = <-received:
				if got.Body == body {
					return true
				}
			case <-timeout:
				return false
			}
		}
	}, waitFor, 10*time.Millisecond)
	return got
}

func TestSubscriberReceivesEventsAcrossConnections(t *testing.T) {
	s := runJetStream(t)
	_, _, streamB := newStream(t, s.ClientURL())
	_, jsA, _ := newStream(t, s.ClientURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan model.Event, 16)
	sub := NewSubscriber(streamB, func(_ context.Context, ev model.Event) {
		received <- ev
	})

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	got := publishUntilReceived(t, ctx, NewPublisher(jsA), received, "hi", 5*time.Second)

	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "bob", got.Receiver)
	assert.Equal(t, "hi", got.Body)
	assert.Equal(t, "a", got.Origin)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
}

func TestSubscriberReconnectsAfterStreamLoss(t *testing.T) {
	s := runJetStream(t)
	_, js, stream := newStream(t, s.ClientURL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan model.Event, 256)
	sub := NewSubscriber(stream, func(_ context.Context, ev model.Event) {
		select {
		case received <- ev:
		default:
		}
	})
	sub.backoff = func() retry.Backoff { return retry.NewConstant(50 * time.Millisecond) }

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	pub := NewPublisher(js)
	publishUntilReceived(t, ctx, pub, received, "before", 5*time.Second)

	// Dropping the stream kills the consumer; the subscriber has to notice
	// and open a new one once the stream is back.
	require.NoError(t, js.DeleteStream(ctx, StreamName))
	_, err := EnsureStream(ctx, js)
	require.NoError(t, err)

	got := publishUntilReceived(t, ctx, pub, received, "after", 15*time.Second)
	assert.Equal(t, "after", got.Body)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
}

func TestReconnectBackoffResetsAfterHealthyRun(t *testing.T) {
	b := newReconnectBackoff(func() retry.Backoff {
		return retry.NewExponential(100 * time.Millisecond)
	}, time.Minute)

	next := func() time.Duration {
		d, stop := b.Next()
		require.False(t, stop)
		return d
	}

	// Short-lived consumers keep climbing the sequence.
	b.ran(time.Second)
	assert.Equal(t, 100*time.Millisecond, next())
	b.ran(time.Second)
	assert.Equal(t, 200*time.Millisecond, next())
	b.ran(time.Second)
	assert.Equal(t, 400*time.Millisecond, next())

	// A consumer that stayed up long enough starts over.
	b.ran(time.Hour)
	assert.Equal(t, 100*time.Millisecond, next())
	b.ran(time.Minute)
	assert.Equal(t, 100*time.Millisecond, next())
}
