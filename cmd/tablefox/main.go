package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/TableFox/app/repository"
	apiv1 "github.com/ManuelReschke/TableFox/internal/api/v1"
	"github.com/ManuelReschke/TableFox/internal/pkg/bootstrap"
	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/database"
	"github.com/ManuelReschke/TableFox/internal/pkg/env"
	"github.com/ManuelReschke/TableFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
	"github.com/ManuelReschke/TableFox/internal/pkg/middleware"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
	"github.com/ManuelReschke/TableFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/TableFox/internal/pkg/router"
)

func main() {
	app, cfg, manager, err := NewApplication()
	if err != nil {
		log.Fatalf("[Main] Startup failed: %v", err)
	}

	manager.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("[Main] Shutting down")
		manager.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("[Main] Shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)); err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the reservation services into a Fiber app and the
// background job manager. Nothing runs until the caller starts them.
func NewApplication() (*fiber.App, *config.Config, *jobqueue.Manager, error) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	database.SetupDatabase()
	cache.SetupCache()

	redisClient := cache.GetClient()
	redisUp := redisClient.Ping(context.Background()).Err() == nil

	provider, err := bootstrap.NewProvider(cfg.Payment)
	if err != nil {
		return nil, nil, nil, err
	}
	sender, err := notify.NewSender(cfg.Notify)
	if err != nil {
		return nil, nil, nil, err
	}

	queue, notifier := bootstrap.NewNotifier(redisClient, redisUp, cfg.HTTP.Workers, sender)

	lockStore, err := bootstrap.NewLockStore(cfg.Lock, database.DB, redisClient)
	if err != nil {
		return nil, nil, nil, err
	}
	services, err := bootstrap.NewServices(cfg, repository.NewRepositories(database.DB), lockStore, provider, notifier)
	if err != nil {
		return nil, nil, nil, err
	}

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.HTTP.BodyLimit,
	})
	app.Use(recover.New(), logger.New(), metrics.Middleware())

	basePath := findBasePath()
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	}

	var limiterStorage fiber.Storage
	if redisUp {
		limiterStorage = ratelimit.NewRedisStorage(cache.Options())
	}
	mw := apiv1.Middlewares{
		Guest: []fiber.Handler{ratelimit.New(cfg.RateLimit, limiterStorage)},
		Staff: []fiber.Handler{middleware.StaffAuth(cfg.Staff), middleware.StaffContextMiddleware},
	}

	server := apiv1.NewAPIServer(apiv1.Dependencies{
		Locks:         services.Locks,
		LockRetry:     bootstrap.LockRetryPolicy(cfg.Lock),
		Pipeline:      services.Pipeline,
		Status:        services.Status,
		Reconciler:    services.Reconciler,
		Refunds:       services.Refunds,
		WebhookSecret: cfg.Payment.StripeWebhookSecret,
	})

	router.InstallRouter(app, server, mw, map[string]router.HealthCheck{
		"database": func() error {
			sqlDB, err := database.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		"redis": func() error {
			return redisClient.Ping(context.Background()).Err()
		},
	})

	return app, cfg, jobqueue.NewManager(queue, services.Tasks()...), nil
}

func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
