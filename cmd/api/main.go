package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vpriesta/mds-form/internal/api"
	"github.com/vpriesta/mds-form/internal/auth"
	"github.com/vpriesta/mds-form/internal/config"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/events"
	"github.com/vpriesta/mds-form/internal/formbind"
	"github.com/vpriesta/mds-form/internal/inbox"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/observability"
	"github.com/vpriesta/mds-form/internal/redisconn"
	"github.com/vpriesta/mds-form/internal/session"
	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/backends"
	httptransport "github.com/vpriesta/mds-form/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("mds-form api stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logging.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, log, cfg.TracingExporter, "mds-form-api")
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	schema, err := formbind.DefaultSchema()
	if err != nil {
		return err
	}

	creds, err := auth.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return err
	}

	backend, closeBackend, err := backends.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	records := store.New(backend,
		store.WithLogger(log),
		store.WithDefaultLimits(cfg.OwnerListLimit, cfg.ReviewListLimit),
	)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.EventsEnabled() {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		defer kp.Close()
		publisher = kp
		log.Info("publishing status events", "topic", cfg.EventsTopic, "brokers", cfg.KafkaBrokers)
	}

	service := domain.NewService(records,
		domain.WithPublisher(publisher),
		domain.WithLogger(log),
	)

	var (
		sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
		notes    inbox.Store   = inbox.NewMemoryStore()
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisconn.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL, schema)
		notes = inbox.NewRedisStore(rdb)
		log.Info("sessions and inbox backed by redis", "addr", cfg.RedisAddr)
	}

	handler := api.NewHandler(api.Deps{
		Service:     service,
		Sessions:    sessions,
		Credentials: creds,
		Auth:        auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.JWTTTL},
		Inbox:       notes,
		Schema:      schema,
		Logger:      log,
		ReviewLimit: cfg.ReviewListLimit,
	})

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, handler.Router())

	log.Info("mds-form api starting", "backend", backend.Name(), "address", cfg.HTTPAddress)
	return httptransport.Serve(ctx, server, serverCfg.ShutdownTimeout, log)
}
