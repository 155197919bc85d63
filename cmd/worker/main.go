package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"cod-order-service/internal/activities"
	"cod-order-service/internal/config"
	"cod-order-service/internal/events"
	"cod-order-service/internal/logging"
	"cod-order-service/internal/shopify"
	"cod-order-service/internal/store"
	"cod-order-service/internal/workflows"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	hostPort := cfg.Temporal.HostPort
	if hostPort == "" {
		hostPort = client.DefaultHostPort
	}
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.Temporal(logger.Named("temporal")),
	})
	if err != nil {
		logger.Fatal("unable to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// Review activities need the same access tokens the API uses.
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = store.Open(context.Background(), cfg.Database)
		if err != nil {
			logger.Warn("postgres unavailable, only static access tokens are used", zap.Error(err))
			db = nil
		}
	}
	st := store.New(db)
	defer st.Close()

	tokens := shopify.FallbackTokens{st, shopify.StaticTokens(cfg.Shopify.AccessTokens)}
	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	w := worker.New(c, workflows.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ReviewFlaggedOrder)
	w.RegisterActivity(&activities.Activities{
		Shopify: shopify.NewClient(cfg.Shopify, cfg.Delivery, tokens, logger),
		Events:  publisher,
		Log:     logger.Named("activities"),
	})

	logger.Info("worker started", zap.String("task_queue", workflows.TaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}
