// Package main our entry point.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johndosdos/recipechat/internal"
	"github.com/johndosdos/recipechat/internal/broker"
	"github.com/johndosdos/recipechat/internal/chat"
	"github.com/johndosdos/recipechat/internal/config"
	"github.com/johndosdos/recipechat/internal/database"
	"github.com/johndosdos/recipechat/internal/handler"
	"github.com/johndosdos/recipechat/internal/ledger"
	ratelimiter "github.com/johndosdos/recipechat/internal/rate_limiter"
	ws "github.com/johndosdos/recipechat/internal/websocket"
	"github.com/johndosdos/recipechat/sql/schema"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Every instance needs its own origin id so it can recognise its own
	// broadcasts.
	instanceID := uuid.NewString()
	log.Printf("Starting application (instance %s)...", instanceID)

	// Init DB
	log.Println("Initializing Database connection...")

	dbConn, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("could not connect to the postgresql database: %v", err)
	}

	if cfg.MigrateOnStart {
		sqlDB := stdlib.OpenDBFromPool(dbConn)
		if err := schema.Up(ctx, sqlDB); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		_ = sqlDB.Close()
	}

	dbQueries := database.New(dbConn)
	store := ledger.New(dbQueries)

	// Init NATS
	log.Println("Initializing NATS connection...")

	conn, err := broker.Connect(broker.ConnOptions{
		URL:           cfg.NATSURL,
		CredsFile:     cfg.NATSCred,
		User:          cfg.NATSUser,
		Password:      cfg.NATSPassword,
		Name:          "recipechat-" + instanceID,
		ReconnectWait: cfg.ReconnectWait,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		log.Fatalf("failed to create jetstream instance: %v", err)
	}

	stream, err := broker.EnsureStream(ctx, js)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Messaging core.
	metrics := chat.NewMetrics(nil)
	registry := chat.NewRegistry()
	relay := chat.NewRelay(instanceID, store, registry, broker.NewPublisher(js),
		sendGate(cfg.SendPolicy, dbQueries), metrics)
	dispatcher := chat.NewDispatcher(instanceID, registry, metrics)

	subscriber := broker.NewSubscriber(stream, dispatcher.HandleEvent)
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "broadcast subscriber stopped", "error", err)
		}
	}()

	wsServer := ws.NewServer(relay, registry, metrics, ws.Options{
		OriginPatterns: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		PingInterval:   cfg.PingInterval,
		IdleTimeout:    cfg.IdleTimeout,
		MessageBurst:   cfg.MessageBurst,
		MessageWindow:  cfg.MessageWindow,
	})

	loginLimiter := ratelimiter.NewIPRateLimiter(ctx, cfg.LoginBurst, cfg.LoginWindow, ratelimiter.Options{})
	tokens := handler.TokenConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.ServeHealth(dbConn))
	r.Handle("/metrics", promhttp.Handler())
	r.With(loginLimiter.Middleware).Post("/account/login", handler.SubmitLoginForm(dbQueries, tokens))
	r.Post("/account/logout", handler.SubmitLogoutReq())

	r.Group(func(r chi.Router) {
		r.Use(internal.Middleware(cfg.JWTSecret))

		// History is fetched over HTTP before (and independently of) the
		// live connection.
		r.Get("/messages", handler.ServeMessages(store))

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", handler.ServeFriends(dbQueries))
			r.Get("/requests", handler.ServeFriendRequests(dbQueries))
			r.Post("/requests/{username}", handler.SendFriendRequest(dbQueries))
			r.Post("/requests/{username}/accept", handler.RespondFriendRequest(dbQueries, true))
			r.Post("/requests/{username}/reject", handler.RespondFriendRequest(dbQueries, false))
		})
		r.With(internal.RequirePathUser("username")).Get("/ws/{username}", handler.ServeWs(wsServer))
	})

	// Init server. Websocket connections are hijacked, so only header reads
	// get a deadline; sessions end when ctx is cancelled.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	// Drain NATS connection.
	if err := conn.Drain(); err != nil {
		log.Printf("couldn't drain NATS conn: %+v", err)
	}

	// Close DB connection.
	dbConn.Close()

	log.Println("Server stopped")
}

// sendGate picks the check the relay runs before a message is stored.
func sendGate(policy string, q *database.Queries) chat.Gate {
	switch strings.ToLower(policy) {
	case config.PolicyDirectory:
		return chat.DirectoryGate{Directory: q}
	case config.PolicyFriends:
		return chat.Gates(chat.DirectoryGate{Directory: q}, chat.FriendGate{Graph: q})
	}
	return chat.AllowAll
}
