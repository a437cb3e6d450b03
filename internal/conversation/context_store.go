package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexofarma/whatsapp-backend/internal/identity"
)

const defaultContextTTL = 72 * time.Hour

// ContextStore keeps the live conversation context in Redis, one record per
// (pharmacy, phone). The TTL is refreshed on every save so an active chat
// never expires mid-flow.
type ContextStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewContextStore(rdb *redis.Client, ttl time.Duration) *ContextStore {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultContextTTL
	}
	return &ContextStore{
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("nexofarma.internal.conversation.context"),
	}
}

// Load fetches the stored context. A missing key returns (nil, nil): callers
// start a fresh conversation.
func (s *ContextStore) Load(ctx context.Context, pharmacyID, phone string) (*identity.Context, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_context")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(pharmacyID, phone)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load context: %w", err)
	}

	var conv identity.Context
	if err := json.Unmarshal(data, &conv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode context: %w", err)
	}
	return &conv, nil
}

// Save persists the context and refreshes its TTL.
func (s *ContextStore) Save(ctx context.Context, pharmacyID, phone string, conv *identity.Context) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_context")
	defer span.End()

	data, err := json.Marshal(conv)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(pharmacyID, phone), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist context: %w", err)
	}
	return nil
}

// Delete removes the context, ending the conversation.
func (s *ContextStore) Delete(ctx context.Context, pharmacyID, phone string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.delete_context")
	defer span.End()

	if err := s.redis.Del(ctx, contextKey(pharmacyID, phone)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete context: %w", err)
	}
	return nil
}

func contextKey(pharmacyID, phone string) string {
	return fmt.Sprintf("wa:%s:%s", pharmacyID, phone)
}
