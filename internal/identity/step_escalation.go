package identity

import (
	"context"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// EscalationHandler is terminal: it clears in-progress identification fields,
// flags the conversation for a human operator and emits the hand-off reply.
// No automated retry happens after this.
type EscalationHandler struct {
	logger *logging.Logger
}

// NewEscalationHandler builds the terminal escalation handler.
func NewEscalationHandler(logger *logging.Logger) *EscalationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationHandler{logger: logger}
}

func (h *EscalationHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	reason := conv.EscalationReason
	if reason == "" {
		reason = ReasonIdentificationFailed
	}

	h.logger.Info("identification escalated to human support",
		"pharmacy_id", turn.PharmacyID,
		"reason", reason,
	)

	next := IdentificationState{Step: StepEscalated}
	return Outcome{
		Delta: Delta{
			Identification:          statePtr(next),
			AwaitingPersonSelection: boolPtr(false),
			AwaitingOwnOrOther:      boolPtr(false),
			Candidates:              candidatesPtr(nil),
			PendingIdentifier:       strPtr(""),
			PendingName:             strPtr(""),
			RequiresHuman:           boolPtr(true),
			EscalationReason:        strPtr(reason),
		},
		Reply: Reply{Intent: IntentEscalation, Data: map[string]any{
			"reason": reason,
		}},
	}, nil
}
