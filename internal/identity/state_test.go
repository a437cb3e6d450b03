package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyLeavesUnsetFieldsUntouched(t *testing.T) {
	conv := NewContext("pharm-1", "+5491160000000")
	conv.PendingIdentifier = "22598630"
	conv.CustomerName = "Adela"
	conv.Preserved.PharmacyName = "Farmacia del Sol"

	next := conv.Apply(Delta{
		PendingName: strPtr("Adela Pedrozo"),
	})

	assert.Equal(t, "Adela Pedrozo", next.PendingName)
	assert.Equal(t, "22598630", next.PendingIdentifier)
	assert.Equal(t, "Adela", next.CustomerName)
	assert.Equal(t, "Farmacia del Sol", next.Preserved.PharmacyName)
}

func TestApplyOverwritesEverySetField(t *testing.T) {
	conv := NewContext("pharm-1", "+5491160000000")
	conv.Candidates = []Candidate{{Source: CandidateLookup}}

	next := conv.Apply(Delta{
		Identification: statePtr(IdentificationState{
			CustomerIdentified: true,
			PlexCustomerID:     "c-100",
		}),
		AwaitingPersonSelection: boolPtr(false),
		Candidates:              candidatesPtr(nil),
		CustomerName:            strPtr("Adela Pedrozo"),
		IsSelf:                  boolPtr(true),
		AuthLevel:               authPtr(AuthMedium),
	})

	assert.True(t, next.Identification.CustomerIdentified)
	assert.Equal(t, "c-100", next.Identification.PlexCustomerID)
	assert.False(t, next.AwaitingPersonSelection)
	assert.Nil(t, next.Candidates)
	assert.Equal(t, "Adela Pedrozo", next.CustomerName)
	assert.True(t, next.IsSelf)
	assert.Equal(t, AuthMedium, next.AuthLevel)
}

func TestApplyCannotDropPreservedContext(t *testing.T) {
	conv := NewContext("pharm-1", "+5491160000000")
	conv.Preserved = PreservedContext{
		PaymentIntent: "pagar_cuenta",
		PaymentAmount: 1500,
		PendingFlow:   "pago",
	}

	// A delta that rewrites everything a handler can touch.
	next := conv.Apply(Delta{
		Identification:          statePtr(IdentificationState{Step: StepAwaitingIdentifier}),
		AwaitingPersonSelection: boolPtr(true),
		AwaitingOwnOrOther:      boolPtr(true),
		Candidates:              candidatesPtr([]Candidate{}),
		PendingIdentifier:       strPtr("123456"),
		PendingName:             strPtr("x"),
		RegisteringOther:        boolPtr(true),
		CustomerName:            strPtr("x"),
		IsSelf:                  boolPtr(true),
		AuthLevel:               authPtr(AuthWeak),
		RequiresHuman:           boolPtr(true),
		EscalationReason:        strPtr("x"),
	})

	assert.Equal(t, 1500.0, next.Preserved.PaymentAmount)
	assert.Equal(t, "pagar_cuenta", next.Preserved.PaymentIntent)
	assert.Equal(t, "pago", next.Preserved.PendingFlow)
}

func TestResetIdentificationClearsProgressKeepsPreserved(t *testing.T) {
	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification = IdentificationState{Step: StepNameVerification, Retries: 2}
	conv.AwaitingPersonSelection = true
	conv.AwaitingOwnOrOther = true
	conv.Candidates = []Candidate{{Source: CandidateRegistered}}
	conv.PendingIdentifier = "22598630"
	conv.PendingName = "Adela"
	conv.RegisteringOther = true
	conv.Preserved.PaymentIntent = "pagar_cuenta"

	next := conv.ResetIdentification()

	assert.Equal(t, IdentificationState{}, next.Identification)
	assert.False(t, next.AwaitingPersonSelection)
	assert.False(t, next.AwaitingOwnOrOther)
	assert.Nil(t, next.Candidates)
	assert.Empty(t, next.PendingIdentifier)
	assert.Empty(t, next.PendingName)
	assert.False(t, next.RegisteringOther)
	assert.Equal(t, "pagar_cuenta", next.Preserved.PaymentIntent)
}

func TestCorrupted(t *testing.T) {
	tests := []struct {
		name  string
		state IdentificationState
		want  bool
	}{
		{"identified with no step", IdentificationState{CustomerIdentified: true, Step: StepNone}, false},
		{"identified mid flow", IdentificationState{CustomerIdentified: true, Step: StepAwaitingIdentifier}, true},
		{"unidentified mid flow", IdentificationState{Step: StepNameVerification}, false},
		{"zero value", IdentificationState{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Corrupted())
		})
	}
}

func TestStepIsIdentifying(t *testing.T) {
	assert.True(t, StepAwaitingIdentifier.IsIdentifying())
	assert.True(t, StepNameVerification.IsIdentifying())
	assert.True(t, StepAwaitingAccountSelection.IsIdentifying())
	assert.False(t, StepNone.IsIdentifying())
	assert.False(t, StepAwaitingWelcome.IsIdentifying())
	assert.False(t, StepResolved.IsIdentifying())
	assert.False(t, StepEscalated.IsIdentifying())
}

func TestClearZombiePayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expired link is cleared", func(t *testing.T) {
		expired := now.Add(-time.Hour)
		conv := NewContext("pharm-1", "+549")
		conv.Preserved.AwaitingPayment = true
		conv.Preserved.PaymentLinkExpiresAt = &expired

		next := conv.ClearZombiePayment(now)
		assert.False(t, next.Preserved.AwaitingPayment)
		assert.Nil(t, next.Preserved.PaymentLinkExpiresAt)
	})

	t.Run("live link is kept", func(t *testing.T) {
		live := now.Add(time.Hour)
		conv := NewContext("pharm-1", "+549")
		conv.Preserved.AwaitingPayment = true
		conv.Preserved.PaymentLinkExpiresAt = &live

		next := conv.ClearZombiePayment(now)
		assert.True(t, next.Preserved.AwaitingPayment)
	})

	t.Run("no expiry means no change", func(t *testing.T) {
		conv := NewContext("pharm-1", "+549")
		conv.Preserved.AwaitingPayment = true

		next := conv.ClearZombiePayment(now)
		assert.True(t, next.Preserved.AwaitingPayment)
	})
}
