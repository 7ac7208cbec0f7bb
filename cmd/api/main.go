package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/Merlin1A/air-pulse/internal/api/http"
	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/stores"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Preference API...")

	opened, err := stores.OpenShared(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to open preference store: %v", err)
	}
	defer opened.Close()

	store := preference.NewBreakerStore(opened.Store, preference.BreakerSettings{
		Name:                "preference-api",
		MaxRequests:         uint32(cfg.Engine.BreakerHalfOpenReqs),
		Timeout:             cfg.Engine.BreakerTimeout,
		ConsecutiveFailures: uint32(cfg.Engine.BreakerFailures),
	})

	app := fiber.New(fiber.Config{
		AppName:               "air-pulse-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, store, func(c *fiber.Ctx) error {
		return opened.Ping(c.UserContext())
	})

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.API.Port)); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	fmt.Printf("✓ Preference API listening on :%d (store: %s)\n", cfg.API.Port, opened.Backend)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
