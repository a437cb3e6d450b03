package identity

import (
	"context"
	"errors"

	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// DefaultMaxRetries is how many failed lookups are tolerated before the
// conversation is escalated to a human.
const DefaultMaxRetries = 3

// IdentifierHandler captures a DNI / client number / CUIT, queries the
// external registry and decides between direct verification, a separate
// name-verification turn, disambiguation, or escalation.
type IdentifierHandler struct {
	lookup     IdentityLookup
	matcher    *NameMatcher
	maxRetries int
	logger     *logging.Logger
}

// NewIdentifierHandler builds the handler for the identifier-capture step.
func NewIdentifierHandler(lookup IdentityLookup, matcher *NameMatcher, maxRetries int, logger *logging.Logger) *IdentifierHandler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IdentifierHandler{lookup: lookup, matcher: matcher, maxRetries: maxRetries, logger: logger}
}

func (h *IdentifierHandler) Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error) {
	// Retries were exhausted on a previous turn: escalate instead of
	// prompting again.
	if conv.Identification.Retries >= h.maxRetries {
		return Outcome{Escalate: true, EscalationReason: ReasonIdentificationFailed}, nil
	}

	ext, err := ExtractIdentifier(turn.Text)
	if errors.Is(err, ErrInvalidIdentifierFormat) {
		// Local validation failure: re-prompt without counting a retry.
		return Outcome{Reply: Reply{Intent: IntentInvalidIdentifier}}, nil
	}

	candidates, err := h.lookup.Search(ctx, LookupQuery{Document: ext.Identifier})
	if err != nil {
		// Lookup failure counts as zero results: fail safe toward asking
		// again, never toward assuming identified.
		h.logger.Warn("identity lookup unavailable",
			"pharmacy_id", turn.PharmacyID,
			"error", err,
		)
		candidates = nil
	}
	candidates = usable(candidates)

	switch len(candidates) {
	case 0:
		next := conv.Identification
		next.Retries++
		return Outcome{
			Delta: Delta{
				Identification:    statePtr(next),
				PendingIdentifier: strPtr(ext.Identifier),
			},
			Reply: Reply{Intent: IntentIdentifierNotFound, Data: map[string]any{
				"attempts_left": h.maxRetries - next.Retries,
			}},
		}, nil

	case 1:
		return h.singleMatch(conv, ext, candidates[0])

	default:
		return h.multiMatch(conv, ext, candidates)
	}
}

// singleMatch handles exactly one usable record: verify immediately when a
// name came with the identifier, otherwise ask for the name.
func (h *IdentifierHandler) singleMatch(conv Context, ext Extraction, record ExternalIdentity) (Outcome, error) {
	if ext.ProvidedName != "" && h.matcher.Match(ext.ProvidedName, record.FullName) {
		return Outcome{
			Complete: true,
			Resolved: &record,
			IsSelf:   !conv.RegisteringOther,
			Auth:     resolvedAuthLevel(conv),
		}, nil
	}

	next := conv.Identification
	next.Step = StepNameVerification
	next.PlexCustomer = &record
	next.PlexCustomerID = record.ID

	if ext.ProvidedName != "" {
		// The name typed next to the identifier did not match: count it as
		// a mismatch and re-prompt.
		next.NameMismatches++
		return Outcome{
			Delta: Delta{
				Identification:    statePtr(next),
				PendingIdentifier: strPtr(ext.Identifier),
				PendingName:       strPtr(ext.ProvidedName),
			},
			Reply: Reply{Intent: IntentNameMismatch},
		}, nil
	}

	return Outcome{
		Delta: Delta{
			Identification:    statePtr(next),
			PendingIdentifier: strPtr(ext.Identifier),
		},
		Reply: Reply{Intent: IntentRequestName},
	}, nil
}

// multiMatch handles several usable records: pre-filter by the provided name
// when there is one, otherwise hand the list to account selection.
func (h *IdentifierHandler) multiMatch(conv Context, ext Extraction, records []ExternalIdentity) (Outcome, error) {
	if ext.ProvidedName != "" {
		var narrowed []ExternalIdentity
		for _, rec := range records {
			if h.matcher.Match(ext.ProvidedName, rec.FullName) {
				narrowed = append(narrowed, rec)
			}
		}
		if len(narrowed) == 1 {
			return h.singleMatch(conv, ext, narrowed[0])
		}
		if len(narrowed) > 1 {
			records = narrowed
		}
	}

	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, Candidate{Source: CandidateLookup, Identity: rec})
	}

	next := conv.Identification
	next.Step = StepAwaitingAccountSelection
	return Outcome{
		Delta: Delta{
			Identification:          statePtr(next),
			AwaitingPersonSelection: boolPtr(true),
			Candidates:              candidatesPtr(candidates),
			PendingIdentifier:       strPtr(ext.Identifier),
			PendingName:             strPtr(ext.ProvidedName),
		},
		Reply: selectionReply(candidates),
	}, nil
}

// usable drops records the registry flagged as unusable for identification.
func usable(records []ExternalIdentity) []ExternalIdentity {
	out := records[:0]
	for _, rec := range records {
		if rec.ValidForIdentification {
			out = append(out, rec)
		}
	}
	return out
}

// resolvedAuthLevel: verified DNI+name sessions are MEDIUM trust; sessions on
// behalf of someone else stay WEAK.
func resolvedAuthLevel(conv Context) AuthLevel {
	if conv.RegisteringOther {
		return AuthWeak
	}
	return AuthMedium
}
