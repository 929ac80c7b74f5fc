package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/patient-queue-service/internal/api/http"
	"github.com/spec-kit/patient-queue-service/internal/api/http/handlers"
	"github.com/spec-kit/patient-queue-service/internal/auth"
	"github.com/spec-kit/patient-queue-service/internal/config"
	"github.com/spec-kit/patient-queue-service/internal/events"
	"github.com/spec-kit/patient-queue-service/internal/observability"
	"github.com/spec-kit/patient-queue-service/internal/persistence"
	"github.com/spec-kit/patient-queue-service/internal/repository"
	"github.com/spec-kit/patient-queue-service/internal/service"
	"github.com/spec-kit/patient-queue-service/internal/token"
	"github.com/spec-kit/patient-queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var ledger repository.Ledger
	if pool := pg.PoolHandle(); pool != nil {
		ledger = repository.NewPostgresLedger(pool)
	} else {
		logger.Warn("running with in-memory ledger; tickets will not survive restarts")
		ledger = repository.NewMemoryLedger()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	tokens := token.NewGenerator(cfg.Queue.TokenSecret)

	queueService := service.NewQueueService(cfg.Queue, service.QueueDependencies{
		Ledger:     ledger,
		Encounters: service.NewAcceptingResolver(),
		Tokens:     tokens,
		Dispatcher: dispatcher,
	})
	schedulerService := service.NewSchedulerService(ledger, dispatcher, metrics, cfg.Queue.CallNextMaxRetries)
	estimatorService := service.NewEstimatorService(ledger, cfg.Queue)

	notificationService := service.NewNotificationService(dispatcher, redis.Client, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	sweeper := worker.NewExpirySweeper(ledger, schedulerService, metrics, logger, cfg.Queue.SweepInterval())
	go sweeper.Run(ctx)

	authMiddleware := auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret))

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Queue:          handlers.NewQueueHandler(queueService, estimatorService),
		Scheduler:      handlers.NewSchedulerHandler(schedulerService, sweeper),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
