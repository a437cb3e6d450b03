package identity

import (
	"context"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// DefaultMaxNameMismatches bounds how many rejected names are tolerated
// before escalating.
const DefaultMaxNameMismatches = 3

// NameVerificationHandler confirms the user-supplied name against the record
// the identifier lookup returned.
type NameVerificationHandler struct {
	matcher       *NameMatcher
	maxMismatches int
	logger        *logging.Logger
}

// NewNameVerificationHandler builds the handler for the name-verification step.
func NewNameVerificationHandler(matcher *NameMatcher, maxMismatches int, logger *logging.Logger) *NameVerificationHandler {
	if maxMismatches <= 0 {
		maxMismatches = DefaultMaxNameMismatches
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NameVerificationHandler{matcher: matcher, maxMismatches: maxMismatches, logger: logger}
}

func (h *NameVerificationHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	record := conv.Identification.PlexCustomer
	if record == nil {
		// Verification step without a looked-up record: the state is
		// unusable, restart identifier capture.
		h.logger.Warn("name verification without pending record, restarting capture",
			"pharmacy_id", turn.PharmacyID,
		)
		next := conv.Identification
		next.Step = StepAwaitingIdentifier
		next.PlexCustomerID = ""
		return Outcome{
			Delta: Delta{Identification: statePtr(next)},
			Reply: Reply{Intent: IntentRequestIdentifier},
		}, nil
	}

	if h.matcher.Match(turn.Text, record.FullName) {
		resolved := *record
		return Outcome{
			Complete: true,
			Resolved: &resolved,
			IsSelf:   !conv.RegisteringOther,
			Auth:     resolvedAuthLevel(conv),
		}, nil
	}

	next := conv.Identification
	next.NameMismatches++
	if next.NameMismatches >= h.maxMismatches {
		return Outcome{Escalate: true, EscalationReason: ReasonNameVerificationFailed}, nil
	}

	return Outcome{
		Delta: Delta{
			Identification: statePtr(next),
			PendingName:    strPtr(turn.Text),
		},
		Reply: Reply{Intent: IntentNameMismatch, Data: map[string]any{
			"attempts_left": h.maxMismatches - next.NameMismatches,
		}},
	}, nil
}
