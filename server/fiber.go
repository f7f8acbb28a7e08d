package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"course-statistics-service/logger"
	"course-statistics-service/middleware"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// SetupFiber builds the app with the problem+json error handler and the common middleware.
func SetupFiber(log *logger.Logger, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "course-statistics-service",
		ErrorHandler: middleware.ErrorHandler(log),
		UnescapePath: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	if accessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
		}))
	}
	return app
}

// Run serves app on addr until stop receives a signal, then shuts down gracefully.
// A Listen failure (port in use, bad address) is returned instead of waiting for stop.
func Run(app *fiber.App, addr string, stop <-chan os.Signal, log *logger.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err == nil {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		return err
	}
	return nil
}
