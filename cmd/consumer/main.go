package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vpriesta/mds-form/internal/config"
	"github.com/vpriesta/mds-form/internal/consumer"
	"github.com/vpriesta/mds-form/internal/inbox"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/redisconn"
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
		log.Error("mds-form consumer stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logging.Logger) error {
	if !cfg.EventsEnabled() {
		return errors.New("KAFKA_BROKERS is required for the consumer")
	}
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required so notifications reach the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisconn.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	reader := consumer.NewKafkaReader(cfg.KafkaBrokers, cfg.ConsumerGroupID, cfg.EventsTopic)
	proc := consumer.NewProcessor(reader, consumer.NewInboxHandler(inbox.NewRedisStore(rdb)), consumer.WithLogger(log))

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, metricsSrv, metricsCfg.ShutdownTimeout, log)
	})
	g.Go(func() error {
		defer reader.Close()
		log.Info("consumer started", "topic", cfg.EventsTopic, "group", cfg.ConsumerGroupID)
		err := proc.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	log.Info("consumer shutdown complete")
	return err
}
