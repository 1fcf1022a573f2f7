package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"authapp/internal/config"
	"authapp/internal/credentials"
	"authapp/internal/database"
	"authapp/internal/handlers"
	"authapp/internal/metrics"
	"authapp/internal/middleware"
	"authapp/internal/repositories"
	"authapp/internal/services"
	"authapp/pkg/logger"
	"authapp/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const (
	HealthRoute  = "/health"
	MetricsRoute = "/metrics"
	APIPrefix    = "/api/v1"
)

// App wires configuration, storage, messaging and the HTTP server.
type App struct {
	Config   *config.Config
	Fiber    *fiber.App
	Accounts *services.AccountManager
	Metrics  *metrics.Metrics

	log logger.Logger
	db  *gorm.DB
	mq  *rabbitmq.Client
}

// New creates and configures a new App instance. RabbitMQ is only dialed
// when RABBITMQ_URL is set.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		log:    log,
	}

	hasher, err := credentials.NewHasher(cfg.HasherOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	userRepo, err := app.initializeUserRepo(hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user repository: %w", err)
	}

	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		app.mq, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
		publisher = app.mq
	}

	app.Metrics = metrics.NewMetrics(cfg.ServiceName)
	app.Accounts = services.NewAccountManager(userRepo, hasher, publisher, app.Metrics, log)
	app.Fiber = app.initializeFiber()

	return app, nil
}

func (app *App) initializeUserRepo(hasher credentials.Hasher) (repositories.UserRepository, error) {
	switch app.Config.DBDriver {
	case config.DriverMemory:
		app.log.Warn("Using in-memory user repository; accounts are lost on exit")
		return repositories.NewMemoryUserRepository(hasher), nil

	case config.DriverPostgres, config.DriverSQLite:
		db, err := database.Open(
			app.Config.DBDriver,
			app.Config.DatabaseDSN,
			app.log,
			app.Config.LogLevel,
			repositories.NewPasswordPlugin(hasher),
		)
		if err != nil {
			return nil, err
		}
		app.db = db
		return repositories.NewGORMUserRepository(db), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", app.Config.DBDriver)
	}
}

func (app *App) initializeFiber() *fiber.App {
	f := fiber.New(fiber.Config{
		AppName:               app.Config.ServiceName,
		DisableStartupMessage: true,
	})

	f.Use(fiberlogger.New()) // Request logger

	f.Get(HealthRoute, app.handleHealth)
	f.Get(MetricsRoute, adaptor.HTTPHandler(promhttp.HandlerFor(app.Metrics.Registry, promhttp.HandlerOpts{})))

	accountHandler := handlers.NewAccountHandler(app.Accounts, app.log)
	apiV1 := f.Group(APIPrefix)
	accountHandler.RegisterRoutes(apiV1)

	adminRoutes := apiV1.Group("/admin", middleware.AdminRequired(app.Accounts, app.log))
	accountHandler.RegisterAdminRoutes(adminRoutes)

	return f
}

func (app *App) handleHealth(c *fiber.Ctx) error {
	status := fiber.StatusOK
	body := fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"database": app.Config.DBDriver,
		"rabbitmq": "disabled",
	}

	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Context())
		}
		if err != nil {
			app.log.Warn("Database health check failed", "error", err)
			status = fiber.StatusServiceUnavailable
			body["status"] = "unhealthy"
		}
	}
	if app.mq != nil {
		body["rabbitmq"] = "connected"
	}

	return c.Status(status).JSON(body)
}

// Run serves HTTP until ctx is cancelled, then shuts down within the
// configured timeout. The account event consumer is started first when
// RabbitMQ is configured.
func (app *App) Run(ctx context.Context) error {
	if app.mq != nil {
		if err := app.mq.ConsumeAccountEvents(app.logAccountEvent); err != nil {
			app.log.Error("Failed to start RabbitMQ consumer", "error", err)
		}
	}

	ln, err := net.Listen("tcp", app.Config.AppPort)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.Config.AppPort, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Fiber.Listener(ln)
	}()
	app.log.Info("Server started", "addr", ln.Addr().String())

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	app.log.Info("Shutting down server", "timeout", app.Config.ShutdownTimeout.String())
	if err := app.Fiber.ShutdownWithTimeout(app.Config.ShutdownTimeout); err != nil {
		app.log.Error("Error during Fiber shutdown", "error", err)
	}
	_ = ln.Close()

	app.log.Info("Server gracefully stopped")
	return nil
}

func (app *App) logAccountEvent(event rabbitmq.AccountEvent) error {
	app.log.Info("Account event received",
		"id", event.ID,
		"type", event.Type,
		"user", event.Username,
		"admin", event.IsAdmin,
	)
	return nil
}

// Close releases the database pool and the RabbitMQ connection.
func (app *App) Close() error {
	var errs []error
	if app.mq != nil {
		if err := app.mq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := database.Close(app.db); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
