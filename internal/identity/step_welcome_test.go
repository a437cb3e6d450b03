package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexofarma/whatsapp-backend/internal/patterns"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

func newWelcome() *WelcomeHandler {
	return NewWelcomeHandler(patterns.New(nil), logging.New("error"))
}

func TestWelcomeFirstContactShowsMenu(t *testing.T) {
	h := newWelcome()
	conv := NewContext("pharm-1", "+549")
	conv.Preserved.PharmacyName = "Farmacia del Sol"

	out, err := h.Handle(context.Background(), turnOf("hola"), conv)
	require.NoError(t, err)
	assert.Equal(t, IntentWelcomeMenu, out.Reply.Intent)
	assert.Equal(t, "Farmacia del Sol", out.Reply.Data["pharmacy_name"])
	require.NotNil(t, out.Delta.Identification)
	assert.Equal(t, StepAwaitingWelcome, out.Delta.Identification.Step)
}

func TestWelcomeMenuChoice(t *testing.T) {
	h := newWelcome()
	conv := NewContext("pharm-1", "+549")
	conv.Identification.Step = StepAwaitingWelcome

	tests := []struct {
		name     string
		text     string
		intent   string
		nextStep Step
	}{
		{"numeric option", "1", IntentRequestIdentifier, StepAwaitingIdentifier},
		{"existing client phrase", "ya soy cliente", IntentRequestIdentifier, StepAwaitingIdentifier},
		{"service intent", "quiero ver mi deuda", IntentRequestIdentifier, StepAwaitingIdentifier},
		{"decline", "no, nada más", IntentGoodbye, StepNone},
		{"farewell", "chau", IntentGoodbye, StepNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Handle(context.Background(), turnOf(tt.text), conv)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, out.Reply.Intent)
			require.NotNil(t, out.Delta.Identification)
			assert.Equal(t, tt.nextStep, out.Delta.Identification.Step)
		})
	}
}

func TestWelcomeServiceIntentBeatsDecline(t *testing.T) {
	// "gracias" alone reads as a goodbye, but not when it trails a request.
	h := newWelcome()
	conv := NewContext("pharm-1", "+549")
	conv.Identification.Step = StepAwaitingWelcome

	out, err := h.Handle(context.Background(), turnOf("quiero ver mi deuda, gracias"), conv)
	require.NoError(t, err)
	assert.Equal(t, IntentRequestIdentifier, out.Reply.Intent)
}

func TestWelcomeUnrecognizedRepeatsMenu(t *testing.T) {
	h := newWelcome()
	conv := NewContext("pharm-1", "+549")
	conv.Identification.Step = StepAwaitingWelcome

	out, err := h.Handle(context.Background(), turnOf("asdfgh"), conv)
	require.NoError(t, err)
	assert.Equal(t, IntentWelcomeMenu, out.Reply.Intent)
	assert.Nil(t, out.Delta.Identification)
}
