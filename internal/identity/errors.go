package identity

import (
	"errors"
	"fmt"
)

// Expected domain outcomes are modeled as error kinds rather than panics.
// Every kind below is resolved inside the workflow: the user always receives
// a conversational prompt, never a raw error.
var (
	// ErrInvalidIdentifierFormat means the text holds no plausible DNI,
	// client number or CUIT. Re-prompts without touching the retry counter.
	ErrInvalidIdentifierFormat = errors.New("identity: invalid identifier format")

	// ErrIdentifierNotFound means the external lookup returned zero usable
	// records. Counted toward escalation.
	ErrIdentifierNotFound = errors.New("identity: identifier not found")

	// ErrNameMismatch means the supplied name scored below the similarity
	// threshold. Counted toward escalation.
	ErrNameMismatch = errors.New("identity: name mismatch")

	// ErrAmbiguousSelection means an account-selection reply matched nothing.
	// Re-prompt only, never counted.
	ErrAmbiguousSelection = errors.New("identity: ambiguous selection")

	// ErrEscalationRequired marks a terminal hand-off to human support.
	ErrEscalationRequired = errors.New("identity: escalation required")

	// ErrCorruptedState marks the identified-flag-vs-active-step
	// inconsistency. Recovered locally, never surfaced to the user.
	ErrCorruptedState = errors.New("identity: corrupted identification state")

	// ErrCollaboratorUnavailable wraps lookup or store failures. Treated as
	// a not-found result for the current step: fails safe toward asking
	// again, never toward assuming identified.
	ErrCollaboratorUnavailable = errors.New("identity: collaborator unavailable")
)

// CollaboratorError wraps an infrastructure failure so callers can both match
// ErrCollaboratorUnavailable and log the cause.
func CollaboratorError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, op, err)
}
