package identity

import (
	"context"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// OwnOrOtherHandler resolves the question asked when this phone has exactly
// one registered person who is not the phone owner: continue with that
// account, or identify someone else.
type OwnOrOtherHandler struct {
	patterns PatternMatcher
	logger   *logging.Logger
}

// NewOwnOrOtherHandler builds the own-vs-other disambiguation handler.
func NewOwnOrOtherHandler(patterns PatternMatcher, logger *logging.Logger) *OwnOrOtherHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OwnOrOtherHandler{patterns: patterns, logger: logger}
}

func (h *OwnOrOtherHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	if len(conv.Candidates) == 0 {
		// Flag without a candidate: restart identification from scratch.
		h.logger.Warn("own-or-other without stored candidate, restarting",
			"pharmacy_id", turn.PharmacyID,
		)
		next := conv.Identification
		next.Step = StepAwaitingIdentifier
		return Outcome{
			Delta: Delta{
				Identification:     statePtr(next),
				AwaitingOwnOrOther: boolPtr(false),
			},
			Reply: Reply{Intent: IntentRequestIdentifier},
		}, nil
	}
	candidate := conv.Candidates[0]

	switch {
	case h.patterns.Matches(turn.Text, PatternOwnAccount),
		h.patterns.Matches(turn.Text, PatternAffirmative):
		resolved := candidate.Identity
		return Outcome{
			Delta:        Delta{AwaitingOwnOrOther: boolPtr(false)},
			Complete:     true,
			Resolved:     &resolved,
			RegisteredID: candidate.RegisteredID,
			IsSelf:       candidate.IsSelf,
			Auth:         registeredAuthLevel(candidate),
		}, nil

	case h.patterns.Matches(turn.Text, PatternOtherPerson),
		h.patterns.Matches(turn.Text, PatternNewPerson),
		h.patterns.Matches(turn.Text, PatternNegative):
		next := conv.Identification
		next.Step = StepAwaitingIdentifier
		return Outcome{
			Delta: Delta{
				Identification:     statePtr(next),
				AwaitingOwnOrOther: boolPtr(false),
				RegisteringOther:   boolPtr(true),
			},
			Reply: Reply{Intent: IntentRequestIdentifier},
		}, nil
	}

	return Outcome{
		Reply: Reply{Intent: IntentOwnOrOther, Data: map[string]any{
			"name": candidate.Identity.FullName,
		}},
	}, nil
}

// registeredAuthLevel: reusing a cached self authorization is STRONG trust,
// reusing a third-party registration stays MEDIUM.
func registeredAuthLevel(c Candidate) AuthLevel {
	if c.IsSelf {
		return AuthStrong
	}
	return AuthMedium
}
