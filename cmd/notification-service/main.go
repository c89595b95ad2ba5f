package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "backoffice/contracts/mq"
	"backoffice/internal/changefeed"
	"backoffice/internal/config"
	"backoffice/internal/delivery"
	"backoffice/internal/httpserver"
	"backoffice/internal/identity"
	"backoffice/internal/mqhandler"
	"backoffice/internal/registry"
	"backoffice/internal/repository"
	"backoffice/internal/ws"
	"backoffice/pkg/circuitbreaker"
	"backoffice/pkg/db"
	"backoffice/pkg/logger"
	"backoffice/pkg/mq"
	"backoffice/pkg/otel"
	"backoffice/pkg/redis"
	"backoffice/pkg/util"
)

const serviceName = "notification-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "notification-service: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting notification-service...",
		zap.String("store", cfg.Store.Driver),
		zap.String("port", cfg.Server.Port),
		zap.String("identity_url", cfg.Identity.URL),
	)

	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store and change source
	var (
		store  repository.NotificationStore
		source changefeed.Source
		loader changefeed.Loader
		ready  httpserver.ReadyCheck
	)
	switch cfg.Store.Driver {
	case "memory":
		mem := repository.NewMemoryStore(log)
		store, source, loader = mem, mem, mem
		log.Warn("Using in-memory notification store; notifications are lost on restart")
	default:
		log.Info("Initializing database connection...")
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer pool.Close()

		pg := repository.NewPostgresStore(pool, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to ensure schema", zap.Error(err))
		}
		store, loader = pg, pg
		source = repository.NewPostgresSource(pool, log)
		ready = func(ctx context.Context) error { return pool.Ping(ctx) }
		log.Info("Database connection established successfully")
	}

	// Redis (optional)
	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Identity
	resolver := newResolver(cfg, rdb, log)

	// Live delivery
	reg := registry.New(resolver, log)
	mux := delivery.NewMultiplexer(store, reg, log)

	listener := changefeed.NewListener(source, loader, cfg.Feed.RetryDelay(), log)
	listener.OnCreate(mux.HandleCreated)
	listener.OnUpdate(mux.HandleUpdated)

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := listener.Run(ctx); err != nil {
			log.Error("Change feed listener stopped", zap.Error(err))
		}
	}()

	liveHandler := ws.NewHandler(mux, cfg.JWT.Secret, cfg.Live.QueueSize, log)

	// MQ ingress (optional)
	var (
		consumer  *mq.Consumer
		publisher *mq.Publisher
	)
	switch {
	case cfg.MQ.URL == "":
		log.Info("MQ ingress disabled: no mq.url")
	case rdb == nil:
		log.Warn("MQ ingress disabled: redis is required for dedupe and retry counting")
	default:
		publisher, consumer = startIngress(cfg, store, rdb, log)
		defer publisher.Close()
		defer consumer.Close()
	}

	// HTTP server
	handlers := httpserver.Handlers{
		Notifications: httpserver.NewNotificationHandler(store, log),
		Connections:   httpserver.NewConnectionHandler(reg),
		Live:          liveHandler.Serve,
	}
	if cache, ok := resolver.(httpserver.IdentityInvalidator); ok {
		handlers.Identities = httpserver.NewIdentityHandler(cache, log)
	}
	router := httpserver.NewRouter(handlers, resolver, cfg.JWT.Secret, readiness(ready, listener, rdb), log)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notification-service is fully initialized and running")

	// SIGHUP forces a change feed resubscribe, SIGINT/SIGTERM shut down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig == syscall.SIGHUP {
			log.Info("SIGHUP received, resubscribing change feed")
			listener.Reconnect()
			continue
		}
		break
	}

	log.Info("Shutting down notification-service gracefully...")

	if consumer != nil {
		consumer.Stop()
	}

	liveHandler.Shutdown()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDuration())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	cancel()
	<-listenerDone

	log.Info("notification-service shutdown complete")
}

// newResolver picks the identity source: the identity service behind a
// breaker and optional Redis cache, or the static admins from config.
func newResolver(cfg *config.Config, rdb *goredis.Client, log *zap.Logger) identity.Resolver {
	if cfg.Identity.URL == "" {
		admins := cfg.Identity.StaticIdentities()
		log.Info("Using static admin identities", zap.Int("admins", len(admins)))
		return identity.NewStaticResolver(admins)
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Identity service circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	var resolver identity.Resolver = identity.NewHTTPResolver(
		cfg.Identity.URL,
		cfg.Identity.Timeout(),
		circuitbreaker.NewCircuitBreaker(breakerCfg),
		log,
	)
	if rdb != nil {
		resolver = identity.NewCachedResolver(resolver, rdb, cfg.Identity.CacheTTL(), log)
	}
	return resolver
}

func startIngress(cfg *config.Config, store repository.NotificationStore, rdb *goredis.Client, log *zap.Logger) (*mq.Publisher, *mq.Consumer) {
	publisher, err := mq.NewPublisher(cfg.MQ.URL, serviceName)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	if err := publisher.EnsureDLQ(mqcontracts.RoutingKeyNotificationCreate); err != nil {
		log.Fatal("Failed to declare DLQ", zap.Error(err))
	}

	handler := mqhandler.NewNotificationCreateHandler(
		store,
		util.NewDeduper(rdb, 24*time.Hour, log),
		util.NewRetryCounter(rdb, time.Hour),
		publisher,
		publisher,
		cfg.MQ.MaxRetries,
		log,
	)

	log.Info("Initializing MQ consumer for notification.create...",
		zap.String("queue", mqcontracts.QueueNotificationCreate),
		zap.String("routing_key", mqcontracts.RoutingKeyNotificationCreate),
	)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.QueueNotificationCreate, mqcontracts.RoutingKeyNotificationCreate, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	consumer.SetHandler(handler.Handle)

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Error("notification.create consumer failed", zap.Error(err))
		}
	}()
	return publisher, consumer
}

// readiness is ready once the store is reachable, the change feed is
// subscribed and Redis (when configured) answers.
func readiness(store httpserver.ReadyCheck, listener *changefeed.Listener, rdb *goredis.Client) httpserver.ReadyCheck {
	return func(ctx context.Context) error {
		if store != nil {
			if err := store(ctx); err != nil {
				return err
			}
		}
		if !listener.Subscribed() {
			return errors.New("change feed not subscribed")
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
