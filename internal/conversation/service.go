package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/nexofarma/whatsapp-backend/internal/identity"
	"github.com/nexofarma/whatsapp-backend/internal/observability/metrics"
	"github.com/nexofarma/whatsapp-backend/internal/render"
	"github.com/nexofarma/whatsapp-backend/internal/tenancy"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// MessageSender delivers outbound WhatsApp messages.
type MessageSender interface {
	SendText(ctx context.Context, pharmacyID, phone, text string) error
}

// Dispatcher receives turns from already-identified customers so the
// downstream business flows (orders, payments, queries) can handle them.
type Dispatcher interface {
	Dispatch(ctx context.Context, conv identity.Context, turn identity.Turn) (reply string, handled bool, err error)
}

// TurnService processes one inbound turn end to end: load context, route it
// through the identification workflow, persist the updated context, render
// and send the reply, and record the transcript.
type TurnService struct {
	contexts     *ContextStore
	transcript   *TranscriptStore
	orchestrator *identity.Orchestrator
	amounts      identity.AmountGuard
	renderer     render.Renderer
	sender       MessageSender
	dispatcher   Dispatcher
	metrics      *metrics.IdentificationMetrics
	logger       *logging.Logger
}

// TurnServiceParams collects the service dependencies. Transcript, sender,
// dispatcher and metrics are optional.
type TurnServiceParams struct {
	Contexts     *ContextStore
	Transcript   *TranscriptStore
	Orchestrator *identity.Orchestrator
	Renderer     render.Renderer
	Sender       MessageSender
	Dispatcher   Dispatcher
	Metrics      *metrics.IdentificationMetrics
	Logger       *logging.Logger
}

func NewTurnService(p TurnServiceParams) *TurnService {
	if p.Contexts == nil {
		panic("conversation: context store cannot be nil")
	}
	if p.Orchestrator == nil {
		panic("conversation: orchestrator cannot be nil")
	}
	if p.Renderer == nil {
		panic("conversation: renderer cannot be nil")
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	return &TurnService{
		contexts:     p.Contexts,
		transcript:   p.Transcript,
		orchestrator: p.Orchestrator,
		renderer:     p.Renderer,
		sender:       p.Sender,
		dispatcher:   p.Dispatcher,
		metrics:      p.Metrics,
		logger:       p.Logger,
	}
}

// Process handles one queued turn. Errors are handled internally: the
// customer always gets a reply and the returned error exists only so the
// worker can log it.
func (s *TurnService) Process(ctx context.Context, payload turnPayload) (err error) {
	start := time.Now()
	ctx = tenancy.WithPharmacyID(ctx, payload.PharmacyID)

	turn := identity.Turn{
		PharmacyID: payload.PharmacyID,
		Phone:      payload.Phone,
		Text:       payload.Text,
		ReceivedAt: payload.ReceivedAt,
	}
	convID := conversationID(payload.PharmacyID, payload.Phone)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic processing turn", "panic", r, "conversation_id", convID)
			err = fmt.Errorf("conversation: panic processing turn: %v", r)
			s.failSafe(ctx, convID, turn)
		}
	}()

	s.appendTranscript(ctx, convID, TranscriptMessage{
		ID:        payload.MessageID,
		Role:      "user",
		Content:   payload.Text,
		Timestamp: payload.ReceivedAt,
	})

	conv, err := s.contexts.Load(ctx, payload.PharmacyID, payload.Phone)
	if err != nil {
		s.logger.Error("failed to load context", "error", err, "conversation_id", convID)
		s.failSafe(ctx, convID, turn)
		return err
	}
	if conv == nil {
		fresh := identity.NewContext(payload.PharmacyID, payload.Phone)
		conv = &fresh
	}

	res, err := s.orchestrator.Route(ctx, turn, *conv)
	if err != nil {
		s.logger.Error("failed to route turn", "error", err, "conversation_id", convID)
		res.Ctx = conv.Apply(identity.Delta{})
		res.Ctx.SessionErrorCount++
		res.Reply = identity.Reply{Intent: identity.IntentTechnicalError}
		res.Status = identity.StatusInProgress
	}

	reply := res.Reply
	var rawText string
	if res.Status == identity.StatusAlreadyIdentified || res.Status == identity.StatusLegacy {
		rawText, reply = s.dispatchIdentified(ctx, &res.Ctx, turn)
	}

	if saveErr := s.contexts.Save(ctx, payload.PharmacyID, payload.Phone, &res.Ctx); saveErr != nil {
		s.logger.Error("failed to save context", "error", saveErr, "conversation_id", convID)
	}

	if res.Status == identity.StatusEscalated && s.transcript != nil {
		if escErr := s.transcript.MarkEscalated(ctx, convID, res.Ctx.EscalationReason); escErr != nil {
			s.logger.Warn("failed to mark conversation escalated", "error", escErr, "conversation_id", convID)
		}
	}

	text := rawText
	if text == "" {
		var renderErr error
		text, renderErr = s.renderer.Render(ctx, reply.Intent, reply.Data)
		if renderErr != nil {
			s.logger.Error("failed to render reply", "error", renderErr, "intent", reply.Intent)
			text, _ = s.renderer.Render(ctx, identity.IntentTechnicalError, nil)
		}
	}

	if text != "" {
		s.send(ctx, convID, turn, text, reply.Intent)
	}

	s.metrics.ObserveTurnLatency(string(res.Status), time.Since(start).Seconds())
	return err
}

// dispatchIdentified handles turns from customers who are already verified.
// The payment amount guard runs first so bare amounts are captured; the
// downstream dispatcher then decides the business reply. A non-empty rawText
// is sent as-is, bypassing the template renderer.
func (s *TurnService) dispatchIdentified(ctx context.Context, conv *identity.Context, turn identity.Turn) (rawText string, reply identity.Reply) {
	if amount, ok := s.amounts.ExtractAmount(turn.Text, *conv); ok {
		conv.Preserved.PaymentAmount = amount
	}

	if s.dispatcher != nil {
		text, handled, err := s.dispatcher.Dispatch(ctx, *conv, turn)
		if err != nil {
			s.logger.Error("downstream dispatch failed", "error", err, "phone", turn.Phone)
			return "", identity.Reply{Intent: identity.IntentTechnicalError}
		}
		if handled {
			return text, identity.Reply{Intent: identity.IntentIdentified}
		}
	}

	// No downstream flow claimed the turn; greet with the known name so the
	// customer sees their identity held across messages.
	return "", identity.Reply{Intent: identity.IntentIdentified, Data: map[string]any{"name": conv.CustomerName}}
}

func (s *TurnService) failSafe(ctx context.Context, convID string, turn identity.Turn) {
	text, err := s.renderer.Render(ctx, identity.IntentTechnicalError, nil)
	if err != nil || text == "" {
		return
	}
	s.send(ctx, convID, turn, text, identity.IntentTechnicalError)
}

func (s *TurnService) send(ctx context.Context, convID string, turn identity.Turn, text, intent string) {
	if s.sender != nil {
		if err := s.sender.SendText(ctx, turn.PharmacyID, turn.Phone, text); err != nil {
			s.logger.Error("failed to send reply", "error", err, "conversation_id", convID)
			return
		}
	}
	s.appendTranscript(ctx, convID, TranscriptMessage{
		Role:    "assistant",
		Content: text,
		Intent:  intent,
	})
}

func (s *TurnService) appendTranscript(ctx context.Context, convID string, msg TranscriptMessage) {
	if s.transcript == nil {
		return
	}
	if err := s.transcript.AppendMessage(ctx, convID, msg); err != nil {
		s.logger.Warn("failed to persist transcript message", "error", err, "conversation_id", convID)
	}
}
