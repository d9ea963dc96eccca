package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httptransport "github.com/spec-kit/wellness-service/internal/api/http"
	"github.com/spec-kit/wellness-service/internal/api/http/handlers"
	"github.com/spec-kit/wellness-service/internal/auth"
	"github.com/spec-kit/wellness-service/internal/config"
	"github.com/spec-kit/wellness-service/internal/events"
	"github.com/spec-kit/wellness-service/internal/mail"
	"github.com/spec-kit/wellness-service/internal/observability"
	"github.com/spec-kit/wellness-service/internal/persistence"
	"github.com/spec-kit/wellness-service/internal/repository"
	"github.com/spec-kit/wellness-service/internal/service"
	"github.com/spec-kit/wellness-service/internal/verification"
	"github.com/spec-kit/wellness-service/internal/worker"
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

	metrics := observability.NewMetrics()

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

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	keeperRepo := repository.NewKeeperRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	tracker := worker.NewActivityTracker(redis, logger, 2, 128)
	tracker.RegisterHandlers(dispatcher)
	defer tracker.Close()

	mailer := mail.NewSMTPMailer(cfg.Mail, cfg.Verification.PublicBaseURL)

	accountService := service.NewAccountService(*cfg, service.AccountDependencies{
		UserRepo:   userRepo,
		KeeperRepo: keeperRepo,
	})
	resetService := service.NewResetService(*cfg, service.ResetDependencies{
		ResetRepo:  resetRepo,
		UserRepo:   userRepo,
		KeeperRepo: keeperRepo,
		Mailer:     mailer,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	registry := verification.NewRegistry(cfg.Verification.DedupWindow(), cfg.Verification.CleanupHorizon())
	hub := verification.NewHub(logger, metrics)
	coordinator := verification.NewCoordinator(cfg.Verification, verification.Dependencies{
		Registry:   registry,
		Hub:        hub,
		Store:      accountService,
		Mailer:     mailer,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	// A bind conflict means another app instance owns verification; live
	// verification degrades but the API keeps running.
	if err := coordinator.Start(); err != nil {
		if errors.Is(err, verification.ErrListenerConflict) {
			logger.Warn("verification listener unavailable", zap.Error(err))
		} else {
			logger.Fatal("failed to start verification subsystem", zap.Error(err))
		}
	}
	defer coordinator.Stop() //nolint:errcheck

	authMiddleware := auth.NewAuthMiddleware(accountService.TokenManager(), userRepo, keeperRepo)
	mailLimiter := httptransport.NewRateLimiter(rate.Limit(0.2), 3)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	accountsHandler := handlers.NewAccountsHandler(accountService, coordinator, logger)
	verificationHandler := handlers.NewVerificationHandler(coordinator, logger)
	resetHandler := handlers.NewResetHandler(resetService, logger)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Accounts:       accountsHandler,
		Verification:   verificationHandler,
		Reset:          resetHandler,
		AuthMiddleware: authMiddleware,
		MailLimiter:    mailLimiter,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
