package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/absence-notifier/internal/attendance"
	"github.com/kursadbilgin/absence-notifier/internal/config"
	"github.com/kursadbilgin/absence-notifier/internal/handler"
	"github.com/kursadbilgin/absence-notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/absence-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/absence-notifier/internal/infra/redis"
	"github.com/kursadbilgin/absence-notifier/internal/observability"
	"github.com/kursadbilgin/absence-notifier/internal/provider"
	"github.com/kursadbilgin/absence-notifier/internal/ratelimit"
	"github.com/kursadbilgin/absence-notifier/internal/repository"
	"github.com/kursadbilgin/absence-notifier/internal/service"
	"github.com/kursadbilgin/absence-notifier/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("absence-notifier api stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	policy, err := attendance.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}

	mailProvider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("mail provider initialization failed: %w", err)
	}

	var rdb *redis.Client
	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.RateLimitEnabled() {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return fmt.Errorf("rate limiter initialization failed: %w", err)
		}
	}

	dispatcher, err := service.NewDispatcher(mailProvider, limiter, cfg.MailTransport, logger)
	if err != nil {
		return err
	}
	dispatcher.SetSender(cfg.SenderIdentity())
	attendanceService, err := service.NewAttendanceService(dispatcher, policy, logger)
	if err != nil {
		return err
	}
	attendanceService.SetMetrics(metrics)

	var sqlDB *sql.DB
	if cfg.PersistenceEnabled() {
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}

		sqlDB, err = db.DB()
		if err != nil {
			return fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		defer sqlDB.Close()

		attendanceService.SetRepositories(
			repository.NewGormBatchRepo(db),
			repository.NewGormAttemptRepo(db),
		)
	}

	app := fiber.New(fiber.Config{
		AppName:               "absence-notifier",
		BodyLimit:             cfg.MaxUploadBytes,
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	handler.RegisterMetricsRoute(app, metrics.Handler())
	if err := handler.RegisterAttendanceRoutes(app, attendanceService, cfg.UploadDir, logger); err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("absence-notifier api started",
			zap.Int("port", cfg.APIPort),
			zap.String("transport", cfg.MailTransport),
			zap.String("sender", cfg.SenderIdentity()),
			zap.String("duplicatePolicy", policy.String()),
			zap.Bool("persistence", sqlDB != nil),
			zap.Bool("rateLimit", rdb != nil),
		)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down absence-notifier api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func newProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.MailTransport {
	case config.TransportWebhook:
		return provider.NewWebhookProvider(cfg.WebhookURL)
	default:
		return provider.NewSMTPProvider(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Timeout:  cfg.SMTPTimeout(),
		})
	}
}
