package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// Publisher enqueues inbound turns for asynchronous processing. The webhook
// handler stays fast: accept, enqueue, 200.
type Publisher struct {
	queue  QueueClient
	logger *logging.Logger
}

func NewPublisher(queue QueueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// PublishTurn validates and enqueues one inbound message.
func (p *Publisher) PublishTurn(ctx context.Context, pharmacyID, phone, text, messageID string, receivedAt time.Time) error {
	pharmacyID = strings.TrimSpace(pharmacyID)
	phone = strings.TrimSpace(phone)
	if pharmacyID == "" {
		return fmt.Errorf("conversation: pharmacy id is required")
	}
	if phone == "" {
		return fmt.Errorf("conversation: phone is required")
	}

	payload, body, err := encodePayload(turnPayload{
		PharmacyID: pharmacyID,
		Phone:      phone,
		Text:       text,
		MessageID:  messageID,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue turn: %w", err)
	}

	p.logger.Debug("turn enqueued",
		"turn_id", payload.ID,
		"pharmacy_id", pharmacyID,
	)
	return nil
}
