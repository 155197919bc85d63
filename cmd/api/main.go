package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"cod-order-service/internal/config"
	"cod-order-service/internal/events"
	"cod-order-service/internal/httpapi"
	"cod-order-service/internal/logging"
	"cod-order-service/internal/risk"
	"cod-order-service/internal/shopify"
	"cod-order-service/internal/store"
	"cod-order-service/internal/submit"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Shopify.APISecret == "" {
		logger.Warn("SHOPIFY_API_SECRET is not set, every signed request will be refused")
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = store.Open(ctx, cfg.Database)
		if err != nil {
			logger.Warn("postgres unavailable, falling back to the in-memory store", zap.Error(err))
			db = nil
		}
	}
	st := store.New(db)
	defer st.Close()
	st.SetHistoryRetention(cfg.Risk.Window)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("store ready", zap.String("mode", st.Mode()))

	checks := map[string]httpapi.Check{"database": st.Ping}
	var history risk.History = st
	recorders := []submit.HistoryRecorder{st}
	if cfg.Redis.Addr != "" {
		rh := risk.NewRedisHistory(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Risk.Window)
		if err := rh.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, velocity history uses the store", zap.Error(err))
			_ = rh.Close()
		} else {
			defer rh.Close()
			history = rh
			recorders = append(recorders, rh)
			checks["redis"] = rh.Ping
		}
	}

	tokens := shopify.FallbackTokens{st, shopify.StaticTokens(cfg.Shopify.AccessTokens)}
	shop := shopify.NewClient(cfg.Shopify, cfg.Delivery, tokens, logger)

	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	var reviews submit.ReviewStarter
	var tc client.Client
	if cfg.Temporal.HostPort != "" {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    logging.Temporal(logger.Named("temporal")),
		})
		if err != nil {
			logger.Warn("temporal unavailable, flagged orders stay as tagged drafts", zap.Error(err))
		} else {
			defer c.Close()
			tc = c
			reviews = workflows.NewStarter(c)
		}
	}

	svc := submit.New(submit.Deps{
		Scorer:  risk.NewScorer(cfg.Risk, history),
		History: recorders,
		Drafts:  shop,
		Carts:   st,
		Reviews: reviews,
		Events:  publisher,
		Log:     logger.Named("submit"),
	})

	deps := httpapi.Deps{
		Server:    cfg.Server,
		Shopify:   cfg.Shopify,
		Orders:    svc,
		Locations: st,
		Carts:     st,
		Mode:      st.Mode(),
		Checks:    checks,
		Log:       logger,
	}
	if tc != nil {
		deps.UI = func(r chi.Router) { registerUIRoutes(r, tc, logger) }
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpapi.NewRouter(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", srv.Addr), zap.String("proxy_prefix", cfg.Server.ProxyPrefix))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
