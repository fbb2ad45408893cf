package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/handlers"
	"github.com/marminbh/discourse-autoreply/internal/logger"
	"github.com/marminbh/discourse-autoreply/internal/routes"
	"github.com/marminbh/discourse-autoreply/internal/service"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the webhook server and the queue consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
}

func serve(opts *rootOptions) error {
	cfg, log, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync(log)

	svc, err := service.NewService(cfg, log)
	if err != nil {
		log.Error("Failed to initialize service", zap.Error(err))
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("Error closing service", zap.Error(err))
		}
	}()

	if err := svc.Worker.Start(); err != nil {
		log.Error("Failed to start worker", zap.Error(err))
		return err
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Discourse Autoreply",
		ServerHeader: "Fiber",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Setup routes
	routes.SetupRoutes(app,
		handlers.NewHealthHandler(svc.HealthChecks()),
		handlers.NewWebhookHandler(svc.Queue, cfg.Webhook.Secret, log),
		handlers.NewCannedResponseHandler(svc.Templates, log),
	)

	// Start server in a goroutine
	listenErr := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting", zap.String("address", addr))
		listenErr <- app.Listen(addr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-listenErr:
		if err != nil {
			log.Error("Failed to start server", zap.Error(err))
			return err
		}
	}

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	// Stop the worker before closing the queue connection
	if err := svc.Worker.Stop(); err != nil {
		log.Error("Error stopping worker", zap.Error(err))
	}

	log.Info("Server stopped")
	return nil
}
