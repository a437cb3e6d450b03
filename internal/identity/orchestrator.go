package identity

import (
	"context"

	"github.com/nexofarma/whatsapp-backend/internal/observability/metrics"
	"github.com/nexofarma/whatsapp-backend/internal/registry"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

// Status classifies what a routed turn produced.
type Status string

const (
	// StatusInProgress: identification continues; Reply prompts the user.
	StatusInProgress Status = "in_progress"
	// StatusResolved: the person is established; control passes downstream.
	StatusResolved Status = "resolved"
	// StatusEscalated: terminal hand-off to a human operator.
	StatusEscalated Status = "escalated"
	// StatusAlreadyIdentified: nothing to do, the turn belongs downstream.
	StatusAlreadyIdentified Status = "already_identified"
	// StatusLegacy: a foreign validation flow owns this conversation; the
	// turn is passed through untouched.
	StatusLegacy Status = "legacy"
)

// Resolution is the orchestrator's output for one turn: the updated context
// (preserved fields intact), the reply intent, and where control goes next.
type Resolution struct {
	Ctx    Context
	Reply  Reply
	Status Status
}

// route pairs a predicate with the handler that owns the matching state.
// Routing is an ordered table, first match wins.
type route struct {
	name    string
	match   func(Context) bool
	handler StepHandler
}

// Orchestrator drives the identification state machine: it routes each
// inbound turn to the step handler owning the current state and reconciles
// the handler's outcome, completion, escalation or another prompt, into the
// next conversation state.
type Orchestrator struct {
	routes     []route
	welcome    *WelcomeHandler
	escalation *EscalationHandler
	store      registry.Repository
	patterns   PatternMatcher
	logger     *logging.Logger
	metrics    *metrics.IdentificationMetrics
}

// OrchestratorParams collects the orchestrator's dependencies.
type OrchestratorParams struct {
	Welcome          *WelcomeHandler
	Identifier       *IdentifierHandler
	NameVerification *NameVerificationHandler
	OwnOrOther       *OwnOrOtherHandler
	AccountSelection *AccountSelectionHandler
	Escalation       *EscalationHandler
	Store            registry.Repository
	Patterns         PatternMatcher
	Logger           *logging.Logger
	Metrics          *metrics.IdentificationMetrics
}

// NewOrchestrator wires the routing table in its checking order.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	o := &Orchestrator{
		welcome:    p.Welcome,
		escalation: p.Escalation,
		store:      p.Store,
		patterns:   p.Patterns,
		logger:     p.Logger,
		metrics:    p.Metrics,
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	stepIs := func(s Step) func(Context) bool {
		return func(c Context) bool { return c.Identification.Step == s }
	}
	o.routes = []route{
		{"person_selection", func(c Context) bool { return c.AwaitingPersonSelection }, p.AccountSelection},
		{"welcome", stepIs(StepAwaitingWelcome), p.Welcome},
		{"identifier", stepIs(StepAwaitingIdentifier), p.Identifier},
		{"name_verification", stepIs(StepNameVerification), p.NameVerification},
		{"account_selection", stepIs(StepAwaitingAccountSelection), p.AccountSelection},
		{"own_or_other", func(c Context) bool { return c.AwaitingOwnOrOther }, p.OwnOrOther},
	}
	return o
}

// Route processes one inbound turn against the conversation state and returns
// the merged resolution. The caller persists Resolution.Ctx.
func (o *Orchestrator) Route(ctx context.Context, turn Turn, conv Context) (Resolution, error) {
	// Explicit start-over trigger resets identification before routing.
	if o.patterns != nil && o.patterns.Matches(turn.Text, PatternStartOver) &&
		!conv.Identification.CustomerIdentified {
		conv = conv.ResetIdentification()
	}

	// Safety: an identified customer with an active step is corrupted
	// state; reset so a stale session cannot bypass re-identification.
	if conv.Identification.Corrupted() {
		o.logger.Warn("corrupted identification state, resetting",
			"pharmacy_id", turn.PharmacyID,
			"step", string(conv.Identification.Step),
		)
		o.metrics.ObserveCorruptedState()
		conv = conv.ResetIdentification()
	}

	conv = conv.ClearZombiePayment(turn.ReceivedAt)

	if conv.Identification.CustomerIdentified {
		return Resolution{Ctx: conv, Status: StatusAlreadyIdentified}, nil
	}
	if conv.Identification.Step == StepEscalated {
		// A human owns this thread now; no automated retry.
		return Resolution{Ctx: conv, Status: StatusEscalated}, nil
	}

	for _, r := range o.routes {
		if r.match(conv) {
			return o.dispatch(ctx, r.name, r.handler, turn, conv)
		}
	}

	// Bridge case: a legacy validation flow owns the conversation.
	if conv.LegacyValidationStep != "" {
		return Resolution{Ctx: conv, Status: StatusLegacy}, nil
	}

	return o.initialResolution(ctx, turn, conv)
}

func (o *Orchestrator) dispatch(ctx context.Context, name string, h StepHandler, turn Turn, conv Context) (Resolution, error) {
	out, err := h.Handle(ctx, turn, conv)
	if err != nil {
		return Resolution{Ctx: conv}, err
	}
	return o.reconcile(ctx, name, turn, conv, out)
}

// reconcile folds a handler outcome into the next conversation state.
func (o *Orchestrator) reconcile(ctx context.Context, step string, turn Turn, conv Context, out Outcome) (Resolution, error) {
	if out.Escalate {
		pending := conv
		if out.EscalationReason != "" {
			pending.EscalationReason = out.EscalationReason
		}
		escOut, err := o.escalation.Handle(ctx, turn, pending)
		if err != nil {
			return Resolution{Ctx: conv}, err
		}
		next := pending.Apply(escOut.Delta)
		o.metrics.ObserveEscalation(next.EscalationReason)
		return Resolution{Ctx: next, Reply: escOut.Reply, Status: StatusEscalated}, nil
	}

	if out.Complete && out.Resolved != nil {
		return o.complete(ctx, step, turn, conv, out)
	}

	next := conv.Apply(out.Delta)
	o.metrics.ObserveTurn(step, string(StatusInProgress))
	return Resolution{Ctx: next, Reply: out.Reply, Status: StatusInProgress}, nil
}

// complete finalizes a successful identification: persist the authorization,
// flip the identified flag, clear every in-progress field.
func (o *Orchestrator) complete(ctx context.Context, step string, turn Turn, conv Context, out Outcome) (Resolution, error) {
	next := conv.Apply(out.Delta)
	resolved := *out.Resolved

	if out.RegisteredID != "" {
		if err := o.store.MarkUsed(ctx, out.RegisteredID); err != nil {
			// Renewal failure never blocks an otherwise-successful
			// identification.
			o.logger.Warn("failed to renew registration",
				"pharmacy_id", turn.PharmacyID,
				"error", err,
			)
		}
	} else {
		_, err := o.store.Upsert(ctx, &registry.UpsertRequest{
			PhoneNumber:    turn.Phone,
			PharmacyID:     turn.PharmacyID,
			DNI:            resolved.DocumentNumber,
			Name:           resolved.FullName,
			PlexCustomerID: resolved.ID,
			IsSelf:         out.IsSelf,
		})
		if err != nil {
			o.logger.Warn("failed to persist registration",
				"pharmacy_id", turn.PharmacyID,
				"error", err,
			)
		}
	}

	next = next.ResetIdentification()
	next.Identification = IdentificationState{
		CustomerIdentified: true,
		PlexCustomerID:     resolved.ID,
		PlexCustomer:       &resolved,
		Step:               StepNone,
		JustIdentified:     true,
	}
	next.CustomerName = resolved.FullName
	next.IsSelf = out.IsSelf
	next.AuthLevel = out.Auth

	reply := out.Reply
	if reply.Intent == "" {
		reply = Reply{Intent: IntentIdentified, Data: map[string]any{
			"name": resolved.FullName,
		}}
	}

	o.metrics.ObserveTurn(step, string(StatusResolved))
	o.metrics.ObserveResolution(string(out.Auth))
	return Resolution{Ctx: next, Reply: reply, Status: StatusResolved}, nil
}

// initialResolution decides the entry point for a conversation with no active
// identification state, from what the local registry already knows about the
// phone.
func (o *Orchestrator) initialResolution(ctx context.Context, turn Turn, conv Context) (Resolution, error) {
	persons, err := o.store.GetValidByPhone(ctx, turn.Phone, turn.PharmacyID)
	if err != nil {
		// Store failure reads as an unknown phone: greet and identify
		// from scratch rather than guessing.
		o.logger.Warn("registered person lookup unavailable",
			"pharmacy_id", turn.PharmacyID,
			"error", err,
		)
		persons = nil
	}
	o.metrics.ObserveRegisteredMatches(len(persons))

	switch {
	case len(persons) == 0:
		return o.dispatch(ctx, "welcome", o.welcome, turn, conv)

	case len(persons) == 1 && persons[0].IsSelf:
		p := persons[0]
		out := Outcome{
			Complete:     true,
			Resolved:     identityFromPerson(p),
			RegisteredID: p.ID,
			IsSelf:       true,
			Auth:         AuthStrong,
		}
		return o.reconcile(ctx, "initial_resolution", turn, conv, out)

	case len(persons) > 1:
		candidates := candidatesFromPersons(persons)
		next := conv.Identification
		next.Step = StepAwaitingAccountSelection
		delta := Delta{
			Identification:          statePtr(next),
			AwaitingPersonSelection: boolPtr(true),
			Candidates:              candidatesPtr(candidates),
		}
		o.metrics.ObserveTurn("initial_resolution", string(StatusInProgress))
		return Resolution{
			Ctx:    conv.Apply(delta),
			Reply:  selectionReply(candidates),
			Status: StatusInProgress,
		}, nil

	default:
		// One registered person who is not the phone owner.
		candidates := candidatesFromPersons(persons)
		delta := Delta{
			AwaitingOwnOrOther: boolPtr(true),
			Candidates:         candidatesPtr(candidates),
		}
		o.metrics.ObserveTurn("initial_resolution", string(StatusInProgress))
		return Resolution{
			Ctx: conv.Apply(delta),
			Reply: Reply{Intent: IntentOwnOrOther, Data: map[string]any{
				"name": persons[0].Name,
			}},
			Status: StatusInProgress,
		}, nil
	}
}

func identityFromPerson(p registry.RegisteredPerson) *ExternalIdentity {
	return &ExternalIdentity{
		ID:                     p.PlexCustomerID,
		FullName:               p.Name,
		DocumentNumber:         p.DNI,
		Phone:                  p.PhoneNumber,
		ValidForIdentification: true,
	}
}

func candidatesFromPersons(persons []registry.RegisteredPerson) []Candidate {
	candidates := make([]Candidate, 0, len(persons))
	for _, p := range persons {
		candidates = append(candidates, Candidate{
			Source:       CandidateRegistered,
			RegisteredID: p.ID,
			Identity:     *identityFromPerson(p),
			IsSelf:       p.IsSelf,
		})
	}
	return candidates
}
