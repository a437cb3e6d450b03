package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/nexofarma/whatsapp-backend/cmd/mainconfig"
	"github.com/nexofarma/whatsapp-backend/internal/app/bootstrap"
	appconfig "github.com/nexofarma/whatsapp-backend/internal/config"
	"github.com/nexofarma/whatsapp-backend/internal/conversation"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-backend turn worker")

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

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL)

	worker := conversation.NewWorker(rt.TurnService, queue, rt.Registry, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithExpirySweepInterval(cfg.ExpirySweepInterval),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down turn worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("turn worker stopped")
	case <-doneCtx.Done():
		logger.Error("turn worker shutdown timed out", "error", doneCtx.Err())
	}
}
