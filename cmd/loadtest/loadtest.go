// Command loadtest connects a ring of users and has each one message the
// next, then reports how many deliveries arrived.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"

	"github.com/johndosdos/recipechat/internal/auth"
	"github.com/johndosdos/recipechat/internal/model"
)

type options struct {
	baseURL  string
	users    int
	messages int
	prefix   string
	password string
	secret   string
	issuer   string
	interval time.Duration
	wait     time.Duration
}

type result struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	var opts options
	pflag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "server base URL")
	pflag.IntVarP(&opts.users, "users", "u", 10, "number of connected users")
	pflag.IntVarP(&opts.messages, "messages", "m", 100, "messages sent per user")
	pflag.StringVar(&opts.prefix, "prefix", "load", "username prefix; users are <prefix>-<n>")
	pflag.StringVar(&opts.password, "password", "", "password shared by the load users, used to log in")
	pflag.StringVar(&opts.secret, "secret", "", "JWT secret; when set tokens are minted locally instead of logging in")
	pflag.StringVar(&opts.issuer, "issuer", "recipechat", "JWT issuer used with --secret")
	pflag.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "pause between messages from one user")
	pflag.DurationVar(&opts.wait, "wait", 5*time.Second, "how long to keep reading after the last send")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if opts.users < 2 {
		slog.Error("need at least two users")
		os.Exit(2)
	}
	if opts.secret == "" && opts.password == "" {
		slog.Error("one of --secret or --password is required")
		os.Exit(2)
	}

	ctx := context.Background()
	res, elapsed, err := run(ctx, opts)
	if err != nil {
		slog.Error("load test failed", "error", err)
		os.Exit(1)
	}

	expected := int64(opts.users * opts.messages)
	fmt.Printf("users=%d sent=%d received=%d expected=%d errors=%d elapsed=%s rate=%.1f msg/s\n",
		opts.users, res.sent.Load(), res.received.Load(), expected, res.errors.Load(),
		elapsed.Round(time.Millisecond), float64(res.sent.Load())/elapsed.Seconds())
}

func run(ctx context.Context, opts options) (*result, time.Duration, error) {
	names := make([]string, opts.users)
	conns := make([]*websocket.Conn, opts.users)
	for i := range names {
		names[i] = fmt.Sprintf("%s-%d", opts.prefix, i)

		token, err := tokenFor(ctx, opts, names[i])
		if err != nil {
			return nil, 0, err
		}
		conn, err := dial(ctx, opts.baseURL, names[i], token)
		if err != nil {
			return nil, 0, err
		}
		defer conn.CloseNow()
		conns[i] = conn
	}

	res := &result{}
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	var readers sync.WaitGroup
	for _, conn := range conns {
		readers.Add(1)
		go func() {
			defer readers.Done()
			readLoop(readCtx, conn, res)
		}()
	}

	start := time.Now()
	var writers sync.WaitGroup
	for i, conn := range conns {
		to := names[(i+1)%len(names)]
		writers.Add(1)
		go func() {
			defer writers.Done()
			writeLoop(ctx, conn, to, opts, res)
		}()
	}
	writers.Wait()
	elapsed := time.Since(start)

	expected := int64(opts.users * opts.messages)
	deadline := time.After(opts.wait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
wait:
	for res.received.Load() < expected {
		select {
		case <-deadline:
			break wait
		case <-ticker.C:
		}
	}

	stopReading()
	for _, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "load test done")
	}
	readers.Wait()

	return res, elapsed, nil
}

func writeLoop(ctx context.Context, conn *websocket.Conn, to string, opts options, res *result) {
	for n := range opts.messages {
		payload, _ := json.Marshal(model.InboundFrame{To: to, Message: fmt.Sprintf("load message %d", n)})

		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			res.errors.Add(1)
			slog.Warn("write failed", "to", to, "error", err)
			return
		}
		res.sent.Add(1)

		if opts.interval > 0 {
			time.Sleep(opts.interval)
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, res *result) {
	for {
		_, p, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame struct {
			From    string `json:"from"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(p, &frame); err != nil {
			res.errors.Add(1)
			continue
		}
		if frame.Error != "" {
			res.errors.Add(1)
			continue
		}
		res.received.Add(1)
	}
}

func tokenFor(ctx context.Context, opts options, username string) (string, error) {
	if opts.secret != "" {
		return auth.MakeJWT(auth.User{Username: username, Role: "user"}, opts.issuer, opts.secret, time.Hour)
	}
	return login(ctx, opts.baseURL, username, opts.password)
}

func login(ctx context.Context, baseURL, username, password string) (string, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/account/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login %s: %w", username, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login %s: unexpected status %s", username, res.Status)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("login %s: %w", username, err)
	}
	if body.Token == "" {
		return "", errors.New("login " + username + ": empty token")
	}
	return body.Token, nil
}

func dial(ctx context.Context, baseURL, username, token string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/" + url.PathEscape(username)

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", username, err)
	}
	return conn, nil
}
