package identity

import "context"

// LookupQuery selects customer records in the external registry. At least one
// field must be set.
type LookupQuery struct {
	Phone      string
	Document   string
	CustomerID string
}

// IdentityLookup is the external customer-registry port (the PLEX ERP).
// Implementations must honor ctx deadlines; a timeout or transport failure is
// returned as an error wrapping ErrCollaboratorUnavailable.
type IdentityLookup interface {
	Search(ctx context.Context, q LookupQuery) ([]ExternalIdentity, error)
}

// PatternMatcher answers whether free text matches an externally configured
// phrase set. Only the boolean contract matters here; the phrase data itself
// lives in configuration.
type PatternMatcher interface {
	Matches(text, patternKey string) bool
}

// Pattern keys the workflow consults. Implementations may carry more.
const (
	PatternExistingClient = "welcome_existing_client"
	PatternServiceIntent  = "service_intent"
	PatternDecline        = "welcome_decline"
	PatternAffirmative    = "affirmative"
	PatternNegative       = "negative"
	PatternNewPerson      = "new_person"
	PatternOwnAccount     = "own_account"
	PatternOtherPerson    = "other_person"
	PatternStartOver      = "start_over"
)

// Intent keys handed to the response renderer. The workflow never constructs
// user-facing prose itself.
const (
	IntentWelcomeMenu        = "welcome_menu"
	IntentRequestIdentifier  = "request_identifier"
	IntentInvalidIdentifier  = "invalid_identifier"
	IntentIdentifierNotFound = "identifier_not_found"
	IntentRequestName        = "request_name"
	IntentNameMismatch       = "name_mismatch"
	IntentAccountSelection   = "account_selection"
	IntentOwnOrOther         = "own_or_other"
	IntentEscalation         = "identification_escalation"
	IntentIdentified         = "identified_greeting"
	IntentGoodbye            = "goodbye"
	IntentTechnicalError     = "technical_error"
)
