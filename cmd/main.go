package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookloop/messaging-service/internal/api"
	"github.com/bookloop/messaging-service/internal/auth"
	"github.com/bookloop/messaging-service/internal/config"
	"github.com/bookloop/messaging-service/internal/kafka"
	"github.com/bookloop/messaging-service/internal/redis"
	"github.com/bookloop/messaging-service/internal/repository"
	"github.com/bookloop/messaging-service/internal/service"
	"github.com/bookloop/messaging-service/internal/store"
	"github.com/bookloop/messaging-service/internal/utils"
	"github.com/bookloop/messaging-service/internal/ws"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var msgStore service.MessageStore
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory message store; messages are lost on restart")
		msgStore = store.NewMemoryStore()
	default:
		mc, err := repository.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			logger.Fatal("mongo init", zap.Error(err))
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()

		coll := mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.MessagesCollection)
		repo := repository.NewMongoRepository(coll, cfg.StoreTimeout, repository.NewBreaker(cfg.Breaker, logger))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("ensure indexes", zap.Error(err))
		}
		msgStore = repo
	}

	var events service.EventPublisher
	if cfg.Kafka.Enabled {
		kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		defer func() { _ = kprod.Close(context.Background()) }()
		events = kprod
	}

	cmdSvc := service.NewCommandService(msgStore, events, cfg.WS.MaxBodyBytes, logger)
	qrySvc := service.NewQueryService(msgStore, logger)

	jv, err := auth.FromConfig(cfg.JWT)
	if err != nil {
		logger.Fatal("jwt validator", zap.Error(err))
	}
	var tokens ws.TokenValidator
	if jv != nil {
		tokens = jv
	}

	hub := ws.NewHub(logger)

	var limiter *redis.RateLimiter
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("redis init", zap.Error(err))
		}
		defer rdb.Close()

		relay := redis.NewRelay(rdb, cfg.Redis.Prefix, logger)
		hub.PublishToOtherInstances = relay.Publish
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				logger.Error("relay stopped", zap.Error(err))
			}
		}()
		limiter = redis.NewRateLimiter(rdb, cfg.Redis.Prefix, cfg.RateLimit.PerMinute, time.Minute)
	}

	wsrv := ws.NewServer(hub, cmdSvc, tokens, ws.Options{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendPerSecond:  cfg.WS.SendPerSecond,
		SendBurst:      cfg.WS.SendBurst,
	}, logger)

	app := api.NewServer(api.Deps{
		Cmd:       cmdSvc,
		Qry:       qrySvc,
		WS:        wsrv,
		JWT:       jv,
		Limiter:   limiter,
		Log:       logger,
		AccessLog: cfg.App.Development(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("server listen", zap.Error(err))
		}
	}()
	logger.Info("messaging-service started", zap.String("addr", cfg.App.Addr()), zap.String("store", cfg.Store.Driver))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	_ = app.ShutdownWithContext(shutdownCtx)
	cmdSvc.Wait()
	logger.Info("messaging-service stopped")
}
