package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"medishare/internal/directory"
	"medishare/internal/document"
	"medishare/internal/fanout"
	"medishare/internal/ledger"
	"medishare/internal/notify"
	"medishare/internal/platform/config"
	"medishare/internal/platform/httpserver"
	kafkaconsumer "medishare/internal/platform/kafka/consumer"
	"medishare/internal/platform/logger"
	"medishare/internal/platform/metrics"
	platformredis "medishare/internal/platform/redis"
	"medishare/internal/platform/token"
	"medishare/internal/resolver"
	httptransport "medishare/internal/transport/http"
)

// main wires dependencies and the process lifecycle. Business logic lives in
// the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		documents  document.Store
		shares     ledger.Store
		notifStore notify.Store
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		docStore := document.NewPostgresStore(db)
		ledgerStore := ledger.NewPostgresStore(db)
		notifyStore := notify.NewPostgresStore(db)
		for _, ensure := range []func(context.Context) error{
			docStore.EnsureSchema, ledgerStore.EnsureSchema, notifyStore.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				log.Error("ensure schema", "error", err)
				os.Exit(1)
			}
		}
		documents, shares, notifStore = docStore, ledgerStore, notifyStore
	} else {
		log.Warn("no postgres DSN configured, using in-memory stores")
		documents = document.NewInMemoryStore()
		shares = ledger.NewInMemoryStore()
		notifStore = notify.NewInMemoryStore()
	}

	// Reference data: static directory fed by the registry sync, optionally
	// fronted by a Redis cache.
	var dir directory.Directory = directory.NewStaticDirectory()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		dir = directory.NewCachedDirectory(dir, redisClient.Client, cfg.DirectoryCacheTTL, log)
	}

	res := resolver.New(dir)
	queue := notify.NewQueue(notifStore, log, m)
	service := fanout.NewService(documents, res, shares, queue, log, m, fanout.Config{
		Workers:          cfg.FanOutWorkers,
		RecipientTimeout: cfg.RecipientTimeout,
	})

	dispatcher := &notify.LogDispatcher{Logger: log}
	sweeper := fanout.NewSweeper(service, documents, queue, dispatcher, log, m, cfg.SweepInterval, cfg.NotificationMaxAge)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper stopped", "error", err)
		}
	}()

	// Event trigger: consume document-finalized events when Kafka is
	// configured. Without it, fan-out runs via the HTTP finalize endpoint.
	if len(cfg.KafkaBrokers) > 0 {
		if err := kafkaconsumer.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, 3); err != nil {
			log.Error("ensure kafka topic", "error", err)
			os.Exit(1)
		}
		router := kafkaconsumer.NewRouter(log, nil)
		router.Register(cfg.KafkaTopic, fanout.NewEventHandler(service, documents, log))

		consumer, err := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers: cfg.KafkaBrokers,
			Group:   cfg.KafkaGroup,
			Topics:  []string{cfg.KafkaTopic},
		}, router, log)
		if err != nil {
			log.Error("kafka consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka consumer stopped", "error", err)
			}
		}()
	} else {
		log.Warn("no kafka brokers configured, event consumer disabled")
	}

	jwtService := token.NewJWTService(cfg.JWTSigningKey, "medishare")
	handler := httptransport.NewHandler(shares, queue, service, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, jwtService, log))

	log.Info("starting medishare fan-out service", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
