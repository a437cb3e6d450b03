package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueClient is the transport the turn pipeline rides on: SQS in
// production, an in-process channel in development and tests.
type QueueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceiveCount  int
}

// turnPayload is the queued representation of one inbound WhatsApp message.
type turnPayload struct {
	ID         string    `json:"id"`
	PharmacyID string    `json:"pharmacy_id"`
	Phone      string    `json:"phone"`
	Text       string    `json:"text"`
	MessageID  string    `json:"message_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

func encodePayload(payload turnPayload) (turnPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.ReceivedAt.IsZero() {
		payload.ReceivedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return turnPayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
