package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/queue"
	mid "github.com/OFFIS-RIT/testcase-agent/internal/server/middleware"
	"github.com/OFFIS-RIT/testcase-agent/internal/setup"
	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// New builds the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnvString("BODY_LIMIT", "64M")))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup.Build(ctx)
	if err != nil {
		logger.Fatal("Failed to set up services", "err", err)
	}
	defer deps.Close()

	store, closeStore, err := setup.NewUploadStore(ctx)
	if err != nil {
		logger.Fatal("Failed to set up upload storage", "err", err)
	}
	defer closeStore()

	if util.GetEnvString("JOB_DISPATCH", "local") == "queue" {
		conn := queue.Init()
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.JobQueue}); err != nil {
			logger.Fatal("Failed to declare queues", "err", err)
		}
		deps.Jobs.SetDispatcher(queue.NewDispatcher(ch, queue.JobQueue))
		logger.Info("Dispatching jobs to RabbitMQ", "queue", queue.JobQueue)
	}

	e := New(&mid.App{
		Generator: deps.Generator,
		Jobs:      deps.Jobs,
		Uploads:   store,
		APIKey:    util.GetEnv("API_KEY"),
	})
	e.Use(middleware.RequestLogger())

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
