package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/go-user-graph/config"
	"github.com/oksasatya/go-user-graph/internal/container"
	"github.com/oksasatya/go-user-graph/internal/interface/consumer"
	"github.com/oksasatya/go-user-graph/pkg/helpers"
)

// ingest_worker materializes user records from the user-created queue.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.RabbitMQURL == "" || cfg.RabbitMQUserCreatedQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	logger := helpers.NewLogger(cfg.AppName+"-ingest", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, closeInfra, err := container.OpenInfra(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to init infrastructure: %v", err)
	}
	defer closeInfra()
	c := container.New(cfg, logger, infra)

	rc, err := helpers.NewRabbitConsumer(cfg.RabbitMQURL, cfg.RabbitMQUserCreatedQueue, cfg.IngestPrefetch)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}
	defer rc.Close()

	deliveries, err := rc.Deliveries(cfg.AppName + "-ingest")
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	handler := consumer.NewUserCreatedConsumer(c.Ingest, logger, cfg.IngestTimeout, cfg.IngestRequeueDelay)
	wlog := helpers.WithComponent(logger, "ingest")
	wlog.WithFields(logrus.Fields{
		"queue":    cfg.RabbitMQUserCreatedQueue,
		"workers":  cfg.IngestWorkers,
		"prefetch": cfg.IngestPrefetch,
	}).Info("ingest worker started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.IngestWorkers; i++ {
		g.Go(func() error {
			if err := handler.Run(gctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		wlog.WithError(err).Error("ingest worker stopped")
		return
	}
	wlog.Info("ingest worker exited properly")
}
