package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"odcrm/config"
	"odcrm/middleware"
	"odcrm/routes"
	"odcrm/utils"
	"odcrm/worker"
)

func main() {
	logger := log.New(os.Stdout, "ODCRM: ", log.Ldate|log.Ltime|log.Lshortfile)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	app := fiber.New()
	app.Use(middleware.CORS())

	mailer := utils.NewSMTPMailer(config.DB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchWorker := worker.NewDispatchWorker(config.DB, mailer, logger, config.AppConfig.Dispatch)
	go dispatchWorker.Start(ctx)

	resetWorker := worker.NewResetWorker(config.DB, log.New(os.Stdout, "RESET: ", log.LstdFlags))
	go resetWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(config.DB, log.New(os.Stdout, "REPLY: ", log.LstdFlags), config.AppConfig.ReplyPollInterval)
	go replyWorker.Start(ctx)

	routes.SetupRoutes(app, config.DB, mailer)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Graceful shutdown: stop the workers, then drain the HTTP server.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Println("Shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
