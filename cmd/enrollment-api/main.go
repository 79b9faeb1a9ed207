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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/enrollhub/enrollment-service/api/swagger"
	"github.com/enrollhub/enrollment-service/internal/handler"
	internalmiddleware "github.com/enrollhub/enrollment-service/internal/middleware"
	"github.com/enrollhub/enrollment-service/internal/repository"
	"github.com/enrollhub/enrollment-service/internal/service"
	"github.com/enrollhub/enrollment-service/pkg/cache"
	"github.com/enrollhub/enrollment-service/pkg/config"
	"github.com/enrollhub/enrollment-service/pkg/logger"
	corsmiddleware "github.com/enrollhub/enrollment-service/pkg/middleware/cors"
	reqidmiddleware "github.com/enrollhub/enrollment-service/pkg/middleware/requestid"
	"github.com/enrollhub/enrollment-service/pkg/queue"
	"github.com/enrollhub/enrollment-service/pkg/validation"
)

// @title Enrollment API
// @version 1.0.0
// @description Accepts enrollment requests and queues them for asynchronous approval.
// @BasePath /
// @schemes http
// @securityDefinitions.basic BasicAuth

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "enrollment-api")
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

	authSvc, err := service.LoadAuthService(cfg.Auth.CredentialsFile, logr)
	if err != nil {
		logr.Fatal("failed to load credentials", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	healthSvc := service.NewHealthService(3*time.Second, logr)
	healthSvc.Register("store", store)
	healthSvc.Register("rabbitmq", broker)

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without it", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		healthSvc.Register("redis", repository.NewLockRepository(redisClient, logr))
	}

	enrollmentSvc := service.NewEnrollmentService(store, broker, validation.New(), metricsSvc, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health"))

	r.GET("/health", handler.NewHealthHandler(healthSvc).Health)
	r.GET("/metrics", handler.Metrics(metricsSvc))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	enrollments := r.Group("/enrollments", internalmiddleware.BasicAuth(authSvc))
	{
		enrollments.POST("", enrollmentHandler.Create)
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.DELETE("/:id", enrollmentHandler.Delete)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
