package identity

import (
	"context"
	"strconv"
	"strings"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// AccountSelectionHandler disambiguates between several candidate accounts:
// registered persons already tied to the phone, or multiple records returned
// by the external lookup. The list shown to the user carries names only plus
// a final "someone else" option; this path never escalates.
type AccountSelectionHandler struct {
	patterns PatternMatcher
	matcher  *NameMatcher
	logger   *logging.Logger
}

// NewAccountSelectionHandler builds the disambiguation handler.
func NewAccountSelectionHandler(patterns PatternMatcher, matcher *NameMatcher, logger *logging.Logger) *AccountSelectionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AccountSelectionHandler{patterns: patterns, matcher: matcher, logger: logger}
}

func (h *AccountSelectionHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	if len(conv.Candidates) == 0 {
		h.logger.Warn("account selection without candidates, restarting",
			"pharmacy_id", turn.PharmacyID,
		)
		next := conv.Identification
		next.Step = StepAwaitingIdentifier
		return Outcome{
			Delta: Delta{
				Identification:          statePtr(next),
				AwaitingPersonSelection: boolPtr(false),
			},
			Reply: Reply{Intent: IntentRequestIdentifier},
		}, nil
	}

	text := strings.TrimSpace(turn.Text)

	// Exact numeric choice: 1..N selects, N+1 registers someone new.
	if n, err := strconv.Atoi(text); err == nil {
		switch {
		case n >= 1 && n <= len(conv.Candidates):
			return h.selected(conv, conv.Candidates[n-1])
		case n == len(conv.Candidates)+1:
			return h.newPerson(conv), nil
		}
		return h.reprompt(conv), nil
	}

	if h.patterns.Matches(text, PatternNewPerson) {
		return h.newPerson(conv), nil
	}

	// Substring match on significant name tokens, accepted only when it
	// narrows to exactly one candidate.
	if match, ok := h.byNameToken(text, conv.Candidates); ok {
		return h.selected(conv, match)
	}

	// A bare "sí" is only meaningful with a single candidate.
	if len(conv.Candidates) == 1 && h.patterns.Matches(text, PatternAffirmative) {
		return h.selected(conv, conv.Candidates[0])
	}

	return h.reprompt(conv), nil
}

// selected resolves a registered candidate directly; a lookup candidate still
// needs its name verified unless a matching name was supplied earlier.
func (h *AccountSelectionHandler) selected(conv Context, c Candidate) (Outcome, error) {
	cleared := Delta{
		AwaitingPersonSelection: boolPtr(false),
		Candidates:              candidatesPtr(nil),
	}

	if c.Source == CandidateRegistered {
		resolved := c.Identity
		return Outcome{
			Delta:        cleared,
			Complete:     true,
			Resolved:     &resolved,
			RegisteredID: c.RegisteredID,
			IsSelf:       c.IsSelf,
			Auth:         registeredAuthLevel(c),
		}, nil
	}

	if conv.PendingName != "" && h.matcher.Match(conv.PendingName, c.Identity.FullName) {
		resolved := c.Identity
		return Outcome{
			Delta:    cleared,
			Complete: true,
			Resolved: &resolved,
			IsSelf:   !conv.RegisteringOther,
			Auth:     resolvedAuthLevel(conv),
		}, nil
	}

	// Picking a name off a list proves nothing by itself; ask for the full
	// name and verify it against the chosen record.
	next := conv.Identification
	next.Step = StepNameVerification
	next.PlexCustomer = &c.Identity
	next.PlexCustomerID = c.Identity.ID
	cleared.Identification = statePtr(next)
	return Outcome{
		Delta: cleared,
		Reply: Reply{Intent: IntentRequestName},
	}, nil
}

func (h *AccountSelectionHandler) newPerson(conv Context) Outcome {
	next := conv.Identification
	next.Step = StepAwaitingIdentifier
	return Outcome{
		Delta: Delta{
			Identification:          statePtr(next),
			AwaitingPersonSelection: boolPtr(false),
			Candidates:              candidatesPtr(nil),
		},
		Reply: Reply{Intent: IntentRequestIdentifier},
	}
}

// reprompt re-sends the same list. No retry counter on this path.
func (h *AccountSelectionHandler) reprompt(conv Context) Outcome {
	return Outcome{Reply: selectionReply(conv.Candidates)}
}

// byNameToken matches the reply against candidate-name tokens of at least
// three characters, in either containment direction.
func (h *AccountSelectionHandler) byNameToken(text string, candidates []Candidate) (Candidate, bool) {
	normalized := normalizeName(text)
	if len([]rune(normalized)) < 3 {
		return Candidate{}, false
	}

	var match Candidate
	hits := 0
	for _, c := range candidates {
		for _, tok := range strings.Fields(normalizeName(c.Identity.FullName)) {
			if len([]rune(tok)) < 3 {
				continue
			}
			if strings.Contains(normalized, tok) || strings.Contains(tok, normalized) {
				match = c
				hits++
				break
			}
		}
	}
	if hits == 1 {
		return match, true
	}
	return Candidate{}, false
}

// selectionReply builds the numbered, names-only option list. The DNI is
// never shown.
func selectionReply(candidates []Candidate) Reply {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Identity.FullName)
	}
	return Reply{Intent: IntentAccountSelection, Data: map[string]any{
		"options":    names,
		"new_option": len(names) + 1,
	}}
}
