package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/enrollhub/enrollment-service/internal/handler"
	"github.com/enrollhub/enrollment-service/internal/repository"
	"github.com/enrollhub/enrollment-service/internal/service"
	"github.com/enrollhub/enrollment-service/pkg/agegroups"
	"github.com/enrollhub/enrollment-service/pkg/cache"
	"github.com/enrollhub/enrollment-service/pkg/config"
	"github.com/enrollhub/enrollment-service/pkg/jobs"
	"github.com/enrollhub/enrollment-service/pkg/logger"
	"github.com/enrollhub/enrollment-service/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "enrollment-worker")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open enrollment store", zap.Error(err))
	}
	defer closeStore(context.Background()) //nolint:errcheck

	broker := queue.NewRabbitProvider(cfg.Rabbit, logr)
	defer broker.Close() //nolint:errcheck
	if err := queue.Connect(ctx, broker, cfg.Rabbit.ConnectAttempts, cfg.Rabbit.ConnectBaseDelay, logr); err != nil {
		logr.Fatal("failed to reach rabbitmq", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	healthSvc := service.NewHealthService(3*time.Second, logr)
	healthSvc.Register("store", store)
	healthSvc.Register("rabbitmq", broker)

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, identity lock disabled", zap.Error(err))
	}
	locks := repository.NewLockRepository(redisClient, logr)
	if locks.Enabled() {
		defer redisClient.Close() //nolint:errcheck
		healthSvc.Register("redis", locks)
	}

	ageGroups := agegroups.NewClient(cfg.AgeGroups, nil)
	fetcher := service.NewAgeGroupFetcher(ageGroups, cfg.AgeGroups.MaxAttempts, cfg.AgeGroups.BackoffStep, metricsSvc, logr)
	processor := service.NewProcessorService(store, fetcher, locks, cfg.Processor, metricsSvc, logr)

	consumer := jobs.NewConsumer(cfg.Rabbit.QueueName, broker, processor, jobs.ConsumerConfig{
		ReconnectDelay: cfg.Rabbit.ReconnectDelay,
		Logger:         logr,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.NewHealthHandler(healthSvc).Health)
	r.GET("/metrics", handler.Metrics(metricsSvc))

	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("ops server failed", zap.Error(err))
		}
	}()

	logr.Info("worker starting",
		zap.String("queue", cfg.Rabbit.QueueName),
		zap.Int("prefetch", cfg.Rabbit.Prefetch),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("identity_lock", locks.Enabled()),
	)
	consumer.Start(ctx)

	<-ctx.Done()
	logr.Info("shutting down")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logr.Error("ops server shutdown failed", zap.Error(err))
	}
}
