package identity

import (
	"context"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// WelcomeHandler greets a phone number with no registered persons and walks
// it into identifier capture.
type WelcomeHandler struct {
	patterns PatternMatcher
	logger   *logging.Logger
}

// NewWelcomeHandler builds the handler for the welcome step.
func NewWelcomeHandler(patterns PatternMatcher, logger *logging.Logger) *WelcomeHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WelcomeHandler{patterns: patterns, logger: logger}
}

// Handle shows the welcome menu on first contact, then reads the menu choice.
// Service-intent and menu-option phrases are checked before decline phrases:
// "quiero ver mi deuda, gracias" counts as a service request, not a goodbye.
func (h *WelcomeHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	if conv.Identification.Step != StepAwaitingWelcome {
		next := conv.Identification
		next.Step = StepAwaitingWelcome
		return Outcome{
			Delta: Delta{Identification: statePtr(next)},
			Reply: Reply{Intent: IntentWelcomeMenu, Data: map[string]any{
				"pharmacy_name": conv.Preserved.PharmacyName,
			}},
		}, nil
	}

	switch {
	case h.patterns.Matches(turn.Text, PatternExistingClient),
		h.patterns.Matches(turn.Text, PatternServiceIntent):
		next := conv.Identification
		next.Step = StepAwaitingIdentifier
		return Outcome{
			Delta: Delta{Identification: statePtr(next)},
			Reply: Reply{Intent: IntentRequestIdentifier},
		}, nil

	case h.patterns.Matches(turn.Text, PatternDecline):
		next := conv.Identification
		next.Step = StepNone
		return Outcome{
			Delta: Delta{Identification: statePtr(next)},
			Reply: Reply{Intent: IntentGoodbye},
		}, nil
	}

	// Unrecognized: show the menu again without touching any counter.
	return Outcome{
		Reply: Reply{Intent: IntentWelcomeMenu, Data: map[string]any{
			"pharmacy_name": conv.Preserved.PharmacyName,
		}},
	}, nil
}
