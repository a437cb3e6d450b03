package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexofarma/whatsapp-backend/cmd/mainconfig"
	"github.com/nexofarma/whatsapp-backend/internal/api/router"
	"github.com/nexofarma/whatsapp-backend/internal/app/bootstrap"
	appconfig "github.com/nexofarma/whatsapp-backend/internal/config"
	"github.com/nexofarma/whatsapp-backend/internal/conversation"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-backend API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender, err := bootstrap.BuildSender(cfg, logger)
	if err != nil {
		logger.Error("failed to build whatsapp sender", "error", err)
		os.Exit(1)
	}

	rt, err := bootstrap.BuildRuntime(ctx, cfg, sender, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	var queue conversation.QueueClient
	var worker *conversation.Worker

	if cfg.UseMemoryQueue {
		// Memory queue is process-local, so the API binary consumes its
		// own turns.
		memQueue := conversation.NewMemoryQueue(256)
		queue = memQueue
		worker = conversation.NewWorker(rt.TurnService, memQueue, rt.Registry, logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
			conversation.WithExpirySweepInterval(cfg.ExpirySweepInterval),
		)
		worker.Start(ctx)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue = conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL)
	}

	publisher := conversation.NewPublisher(queue, logger)
	webhooks := conversation.NewWebhookHandler(conversation.WebhookConfig{
		Publisher:       publisher,
		VerifyToken:     cfg.WhatsAppVerifyToken,
		Pharmacies:      cfg.WhatsAppPharmacies,
		DefaultPharmacy: cfg.DefaultPharmacyID,
		Logger:          logger,
	})

	r := router.New(&router.Config{
		Logger:           logger,
		Webhooks:         webhooks,
		MetricsHandler:   promhttp.HandlerFor(rt.PromReg, promhttp.HandlerOpts{}),
		WebhookRateLimit: 50,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancel()
	if worker != nil {
		worker.Wait()
	}
	logger.Info("server stopped")
}
