package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptStore persists conversations and messages to PostgreSQL for
// long-term history and support review.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a new transcript store.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// TranscriptMessage is a single turn to persist.
type TranscriptMessage struct {
	ID        string
	Role      string // "user" or "assistant"
	Content   string
	Intent    string
	Timestamp time.Time
}

// conversationID builds the "wa:{pharmacyID}:{phone}" identifier shared with
// the Redis context store keys.
func conversationID(pharmacyID, phone string) string {
	return fmt.Sprintf("wa:%s:%s", pharmacyID, phone)
}

// parseConversationID extracts pharmacyID and phone from "wa:{pharmacyID}:{phone}".
func parseConversationID(conversationID string) (pharmacyID, phone string, ok bool) {
	parts := strings.Split(conversationID, ":")
	if len(parts) != 3 || parts[0] != "wa" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// EnsureConversation creates or touches a conversation record and returns its UUID.
func (s *TranscriptStore) EnsureConversation(ctx context.Context, convID string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}

	pharmacyID, phone, ok := parseConversationID(convID)
	if !ok {
		return uuid.Nil, fmt.Errorf("conversation: invalid conversation_id format: %s", convID)
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE conversation_id = $1`,
		convID,
	).Scan(&existingID)

	if err == nil {
		s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now(), existingID,
		)
		return existingID, nil
	}

	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("conversation: failed to check existing: %w", err)
	}

	newID := uuid.New()
	now := time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, conversation_id, pharmacy_id, phone, status, channel,
			message_count, customer_message_count, bot_message_count,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, newID, convID, pharmacyID, phone, "active", "whatsapp",
		0, 0, 0, now, now, now,
	)

	if err != nil {
		// Another process may have created it concurrently
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, convID)
		}
		return uuid.Nil, fmt.Errorf("conversation: failed to create: %w", err)
	}

	return newID, nil
}

// AppendMessage persists a message and updates conversation counters.
func (s *TranscriptStore) AppendMessage(ctx context.Context, convID string, msg TranscriptMessage) error {
	if s == nil || s.db == nil {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, convID); err != nil {
		return err
	}

	msgID := uuid.New()
	if msg.ID != "" {
		if parsed, parseErr := uuid.Parse(msg.ID); parseErr == nil {
			msgID = parsed
		}
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, conversation_id, role, content, intent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, msgID, convID, msg.Role, msg.Content, msg.Intent, timestamp)

	if err != nil {
		return fmt.Errorf("conversation: failed to insert message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: failed to read insert result: %w", err)
	}
	if rowsAffected == 0 {
		return nil
	}

	counterColumn := "bot_message_count"
	if msg.Role == "user" {
		counterColumn = "customer_message_count"
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE conversations SET
			message_count = message_count + 1,
			%s = %s + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE conversation_id = $2
	`, counterColumn, counterColumn), timestamp, convID)

	if err != nil {
		return fmt.Errorf("conversation: failed to update counters: %w", err)
	}

	return nil
}

// MarkEscalated flags a conversation as handed off to a human operator.
func (s *TranscriptStore) MarkEscalated(ctx context.Context, convID string, reason string) error {
	if s == nil || s.db == nil {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, convID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			status = 'escalated',
			escalation_reason = $1,
			updated_at = $2
		WHERE conversation_id = $3
	`, reason, time.Now(), convID)

	if err != nil {
		return fmt.Errorf("conversation: failed to mark escalated: %w", err)
	}
	return nil
}
