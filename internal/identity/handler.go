package identity

import (
	"context"
	"time"
)

// Turn is one inbound user message on a conversation thread.
type Turn struct {
	PharmacyID string
	Phone      string
	Text       string
	ReceivedAt time.Time
}

// Reply tells the response renderer what to say. Data carries the context
// fields the renderer may interpolate (names, option lists, retry counts).
type Reply struct {
	Intent string
	Data   map[string]any
}

// Outcome is what a step handler produces for a single turn. Exactly one of
// the three shapes applies: a delta to merge (still resolving), Complete with
// a resolved identity, or Escalate.
type Outcome struct {
	Delta Delta
	Reply Reply

	Complete bool
	Resolved *ExternalIdentity
	// RegisteredID is set when completion reuses an already-registered
	// person; the orchestrator then renews it instead of inserting.
	RegisteredID string
	IsSelf       bool
	Auth         AuthLevel

	Escalate         bool
	EscalationReason string
}

// StepHandler processes a turn for one workflow state.
type StepHandler interface {
	Handle(ctx context.Context, turn Turn, conv Context) (Outcome, error)
}

// Escalation reasons recorded on the context when identification is handed to
// a human operator.
const (
	ReasonIdentificationFailed   = "identification_failed"
	ReasonNameVerificationFailed = "name_verification_failed"
)
