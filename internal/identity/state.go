package identity

import "time"

// Step is the identification state machine position for a conversation.
type Step string

const (
	StepNone                     Step = ""
	StepAwaitingWelcome          Step = "awaiting_welcome"
	StepAwaitingIdentifier       Step = "awaiting_identifier"
	StepNameVerification         Step = "name_verification"
	StepAwaitingAccountSelection Step = "awaiting_account_selection"
	StepResolved                 Step = "resolved"
	StepEscalated                Step = "escalated"
)

// IsIdentifying reports whether the step is one where the user is expected to
// be typing identification data rather than business requests.
func (s Step) IsIdentifying() bool {
	switch s {
	case StepAwaitingIdentifier, StepNameVerification, StepAwaitingAccountSelection:
		return true
	}
	return false
}

// AuthLevel is the trust tier assigned based on how a customer was identified.
// Downstream subsystems use it to decide how much account detail to disclose.
type AuthLevel string

const (
	AuthStrong AuthLevel = "STRONG"
	AuthMedium AuthLevel = "MEDIUM"
	AuthWeak   AuthLevel = "WEAK"
)

// ExternalIdentity is one customer record as returned by the identity lookup
// collaborator (the PLEX ERP).
type ExternalIdentity struct {
	ID                     string `json:"id"`
	FullName               string `json:"full_name"`
	DocumentNumber         string `json:"document_number"`
	Phone                  string `json:"phone"`
	ValidForIdentification bool   `json:"valid_for_identification"`
}

// IdentificationState tracks where a conversation is in the identification
// workflow. Invariant: CustomerIdentified implies Step == StepNone; anything
// else is corrupted and gets reset before routing.
type IdentificationState struct {
	CustomerIdentified bool              `json:"customer_identified"`
	PlexCustomerID     string            `json:"plex_customer_id,omitempty"`
	PlexCustomer       *ExternalIdentity `json:"plex_customer,omitempty"`
	Step               Step              `json:"step"`
	Retries            int               `json:"retries"`
	NameMismatches     int               `json:"name_mismatches"`
	JustIdentified     bool              `json:"just_identified"`
}

// Corrupted reports the identified-flag-vs-active-step inconsistency.
func (s IdentificationState) Corrupted() bool {
	return s.CustomerIdentified && s.Step != StepNone
}

// CandidateSource records where an account-selection candidate came from.
type CandidateSource string

const (
	CandidateRegistered CandidateSource = "registered"
	CandidateLookup     CandidateSource = "lookup"
)

// Candidate is one entry in a pending account-selection list. Selection lists
// shown to the user carry names only; the DNI stays server-side.
type Candidate struct {
	Source       CandidateSource  `json:"source"`
	RegisteredID string           `json:"registered_id,omitempty"`
	Identity     ExternalIdentity `json:"identity"`
	IsSelf       bool             `json:"is_self"`
}

// PreservedContext is the narrow subset of conversation state that every
// handler must propagate across turns even when it does not use it. It is
// merged centrally in the orchestrator; handlers never touch it directly.
type PreservedContext struct {
	PaymentIntent        string     `json:"payment_intent,omitempty"`
	PaymentAmount        float64    `json:"payment_amount,omitempty"`
	PendingFlow          string     `json:"pending_flow,omitempty"`
	PharmacyName         string     `json:"pharmacy_name,omitempty"`
	PharmacyTimezone     string     `json:"pharmacy_timezone,omitempty"`
	AwaitingPayment      bool       `json:"awaiting_payment,omitempty"`
	PaymentLinkExpiresAt *time.Time `json:"payment_link_expires_at,omitempty"`
}

// Context is the per-thread conversation state this subsystem reads and
// writes. The checkpoint store persists it between turns keyed by
// (pharmacy id, phone).
type Context struct {
	Phone      string `json:"phone"`
	PharmacyID string `json:"pharmacy_id"`

	Identification IdentificationState `json:"identification"`

	AwaitingPersonSelection bool        `json:"awaiting_person_selection,omitempty"`
	AwaitingOwnOrOther      bool        `json:"awaiting_own_or_other,omitempty"`
	Candidates              []Candidate `json:"candidates,omitempty"`

	// Identifier and name captured earlier in the same identification run.
	PendingIdentifier string `json:"pending_identifier,omitempty"`
	PendingName       string `json:"pending_name,omitempty"`

	// RegisteringOther is set when the session is on behalf of someone
	// other than the phone owner; it lowers the resulting auth level.
	RegisteringOther bool `json:"registering_other,omitempty"`

	CustomerName string    `json:"customer_name,omitempty"`
	IsSelf       bool      `json:"is_self,omitempty"`
	AuthLevel    AuthLevel `json:"auth_level,omitempty"`

	// LegacyValidationStep bridges conversations started by the previous
	// validation flow; the orchestrator passes these through untouched.
	LegacyValidationStep string `json:"validation_step,omitempty"`

	RequiresHuman     bool   `json:"requires_human,omitempty"`
	EscalationReason  string `json:"escalation_reason,omitempty"`
	SessionErrorCount int    `json:"session_error_count,omitempty"`

	Preserved PreservedContext `json:"preserved"`
}

// NewContext returns fresh conversation state for a phone that has never
// messaged this pharmacy.
func NewContext(pharmacyID, phone string) Context {
	return Context{Phone: phone, PharmacyID: pharmacyID}
}

// Delta is the typed set of changes a step handler may apply to the
// conversation context. Nil fields are left untouched; the preserved subset
// is never part of a delta, so handlers cannot drop it by accident.
type Delta struct {
	Identification          *IdentificationState
	AwaitingPersonSelection *bool
	AwaitingOwnOrOther      *bool
	Candidates              *[]Candidate
	PendingIdentifier       *string
	PendingName             *string
	RegisteringOther        *bool
	CustomerName            *string
	IsSelf                  *bool
	AuthLevel               *AuthLevel
	RequiresHuman           *bool
	EscalationReason        *string
}

// Apply merges a handler delta into the context. Defined once so the
// cross-turn preservation contract lives in a single place.
func (c Context) Apply(d Delta) Context {
	if d.Identification != nil {
		c.Identification = *d.Identification
	}
	if d.AwaitingPersonSelection != nil {
		c.AwaitingPersonSelection = *d.AwaitingPersonSelection
	}
	if d.AwaitingOwnOrOther != nil {
		c.AwaitingOwnOrOther = *d.AwaitingOwnOrOther
	}
	if d.Candidates != nil {
		c.Candidates = *d.Candidates
	}
	if d.PendingIdentifier != nil {
		c.PendingIdentifier = *d.PendingIdentifier
	}
	if d.PendingName != nil {
		c.PendingName = *d.PendingName
	}
	if d.RegisteringOther != nil {
		c.RegisteringOther = *d.RegisteringOther
	}
	if d.CustomerName != nil {
		c.CustomerName = *d.CustomerName
	}
	if d.IsSelf != nil {
		c.IsSelf = *d.IsSelf
	}
	if d.AuthLevel != nil {
		c.AuthLevel = *d.AuthLevel
	}
	if d.RequiresHuman != nil {
		c.RequiresHuman = *d.RequiresHuman
	}
	if d.EscalationReason != nil {
		c.EscalationReason = *d.EscalationReason
	}
	return c
}

// ResetIdentification clears every in-progress identification field. Used for
// corrupted-state recovery and for the explicit start-over trigger.
func (c Context) ResetIdentification() Context {
	c.Identification = IdentificationState{}
	c.AwaitingPersonSelection = false
	c.AwaitingOwnOrOther = false
	c.Candidates = nil
	c.PendingIdentifier = ""
	c.PendingName = ""
	c.RegisteringOther = false
	return c
}

// ClearZombiePayment drops a stale awaiting-payment flag whose link already
// expired, so identification can resume instead of waiting forever.
func (c Context) ClearZombiePayment(now time.Time) Context {
	if c.Preserved.AwaitingPayment &&
		c.Preserved.PaymentLinkExpiresAt != nil &&
		now.After(*c.Preserved.PaymentLinkExpiresAt) {
		c.Preserved.AwaitingPayment = false
		c.Preserved.PaymentLinkExpiresAt = nil
	}
	return c
}

// Helpers for building deltas without address-of-temporary noise.

func boolPtr(v bool) *bool                                { return &v }
func strPtr(v string) *string                             { return &v }
func authPtr(v AuthLevel) *AuthLevel                      { return &v }
func statePtr(v IdentificationState) *IdentificationState { return &v }
func candidatesPtr(v []Candidate) *[]Candidate            { return &v }
