package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nexofarma/whatsapp-backend/internal/registry"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// Worker consumes queued turns and invokes the turn service. It also runs the
// registration expiry sweep on a timer.
type Worker struct {
	service  *TurnService
	queue    QueueClient
	registry registry.Repository
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	sweepInterval    time.Duration
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the queue long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithExpirySweepInterval sets how often expired registrations are deactivated.
func WithExpirySweepInterval(interval time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if interval > 0 {
			cfg.sweepInterval = interval
		}
	}
}

func NewWorker(service *TurnService, queue QueueClient, reg registry.Repository, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if service == nil {
		panic("conversation: turn service cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		sweepInterval:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		service:  service,
		queue:    queue,
		registry: reg,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches the consumer goroutines and the expiry sweeper.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
	if w.registry != nil {
		w.wg.Add(1)
		go w.sweepExpired(ctx)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("turn worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("turn worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive turns", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload turnPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode turn", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if msg.ReceiveCount > 1 {
		w.logger.Warn("turn redelivered",
			"turn_id", payload.ID,
			"receive_count", msg.ReceiveCount,
		)
	}

	if err := w.service.Process(ctx, payload); err != nil {
		w.logger.Error("turn processing failed",
			"error", err,
			"turn_id", payload.ID,
			"pharmacy_id", payload.PharmacyID,
		)
	}

	// Delete regardless of outcome: the service already delivered a fallback
	// reply, redelivery would double-message the customer.
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete turn message", "error", err)
	}
}

// sweepExpired periodically deactivates registrations past their TTL.
func (w *Worker) sweepExpired(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.registry.DeactivateExpired(ctx, "")
			if err != nil {
				w.logger.Error("registration expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.Info("deactivated expired registrations", "count", n)
			}
		}
	}
}
