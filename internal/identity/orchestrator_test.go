package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexofarma/whatsapp-backend/internal/patterns"
	"github.com/nexofarma/whatsapp-backend/internal/registry"
	"github.com/nexofarma/whatsapp-backend/pkg/logging"
)

type fakeLookup struct {
	records []ExternalIdentity
	err     error
	queries []LookupQuery
}

func (f *fakeLookup) Search(ctx context.Context, q LookupQuery) ([]ExternalIdentity, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func adelaRecord() ExternalIdentity {
	return ExternalIdentity{
		ID:                     "c-100",
		FullName:               "PEDROZO, ADELA MARIA",
		DocumentNumber:         "22598630",
		ValidForIdentification: true,
	}
}

func newTestOrchestrator(t *testing.T, lookup IdentityLookup, repo registry.Repository) *Orchestrator {
	t.Helper()
	logger := logging.New("error")
	pm := patterns.New(nil)
	matcher := NewNameMatcher(0, nil)
	return NewOrchestrator(OrchestratorParams{
		Welcome:          NewWelcomeHandler(pm, logger),
		Identifier:       NewIdentifierHandler(lookup, matcher, 3, logger),
		NameVerification: NewNameVerificationHandler(matcher, 3, logger),
		OwnOrOther:       NewOwnOrOtherHandler(pm, logger),
		AccountSelection: NewAccountSelectionHandler(pm, matcher, logger),
		Escalation:       NewEscalationHandler(logger),
		Store:            repo,
		Patterns:         pm,
		Logger:           logger,
	})
}

func turnOf(text string) Turn {
	return Turn{
		PharmacyID: "pharm-1",
		Phone:      "+5491160000000",
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestRouteFullFirstTimeIdentification(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{records: []ExternalIdentity{adelaRecord()}}
	repo := registry.NewInMemoryRepository(180)
	o := newTestOrchestrator(t, lookup, repo)

	conv := NewContext("pharm-1", "+5491160000000")

	res, err := o.Route(ctx, turnOf("hola"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)
	assert.Equal(t, IntentWelcomeMenu, res.Reply.Intent)
	assert.Equal(t, StepAwaitingWelcome, res.Ctx.Identification.Step)

	res, err = o.Route(ctx, turnOf("1"), res.Ctx)
	require.NoError(t, err)
	assert.Equal(t, IntentRequestIdentifier, res.Reply.Intent)
	assert.Equal(t, StepAwaitingIdentifier, res.Ctx.Identification.Step)

	res, err = o.Route(ctx, turnOf("22598630"), res.Ctx)
	require.NoError(t, err)
	assert.Equal(t, IntentRequestName, res.Reply.Intent)
	assert.Equal(t, StepNameVerification, res.Ctx.Identification.Step)
	require.Len(t, lookup.queries, 1)
	assert.Equal(t, "22598630", lookup.queries[0].Document)

	res, err = o.Route(ctx, turnOf("Adela Pedrozo"), res.Ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.True(t, res.Ctx.Identification.CustomerIdentified)
	assert.Equal(t, StepNone, res.Ctx.Identification.Step)
	assert.Equal(t, "c-100", res.Ctx.Identification.PlexCustomerID)
	assert.Equal(t, AuthMedium, res.Ctx.AuthLevel)
	assert.True(t, res.Ctx.IsSelf)
	assert.Equal(t, IntentIdentified, res.Reply.Intent)
	assert.Equal(t, "PEDROZO, ADELA MARIA", res.Reply.Data["name"])

	// A successful identification registers the person for future sessions.
	persons, err := repo.GetValidByPhone(ctx, "+5491160000000", "pharm-1")
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "22598630", persons[0].DNI)
	assert.True(t, persons[0].IsSelf)
}

func TestRouteStartOverResetsIdentification(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{}, registry.NewInMemoryRepository(180))

	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification.Step = StepNameVerification
	conv.Identification.Retries = 2
	conv.PendingIdentifier = "22598630"

	res, err := o.Route(ctx, turnOf("empezar de nuevo"), conv)
	require.NoError(t, err)
	assert.Equal(t, IntentWelcomeMenu, res.Reply.Intent)
	assert.Equal(t, StepAwaitingWelcome, res.Ctx.Identification.Step)
	assert.Zero(t, res.Ctx.Identification.Retries)
	assert.Empty(t, res.Ctx.PendingIdentifier)
}

func TestRouteCorruptedStateIsReset(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{}, registry.NewInMemoryRepository(180))

	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification.CustomerIdentified = true
	conv.Identification.Step = StepAwaitingIdentifier

	res, err := o.Route(ctx, turnOf("hola"), conv)
	require.NoError(t, err)
	// The stale identified flag is dropped and identification restarts.
	assert.Equal(t, StatusInProgress, res.Status)
	assert.False(t, res.Ctx.Identification.CustomerIdentified)
	assert.Equal(t, IntentWelcomeMenu, res.Reply.Intent)
}

func TestRouteAlreadyIdentifiedPassesThrough(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{}, registry.NewInMemoryRepository(180))

	conv := identifiedContext()
	res, err := o.Route(ctx, turnOf("quiero pagar mi deuda"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyIdentified, res.Status)
	assert.Empty(t, res.Reply.Intent)
	assert.Equal(t, conv, res.Ctx)
}

func TestRouteEscalatedStepIsTerminal(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{records: []ExternalIdentity{adelaRecord()}}, registry.NewInMemoryRepository(180))

	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification.Step = StepEscalated
	conv.RequiresHuman = true

	res, err := o.Route(ctx, turnOf("22598630"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, res.Status)
	assert.Empty(t, res.Reply.Intent)
	assert.Equal(t, StepEscalated, res.Ctx.Identification.Step)
}

func TestRouteLegacyValidationFlowPassesThrough(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{}, registry.NewInMemoryRepository(180))

	conv := NewContext("pharm-1", "+5491160000000")
	conv.LegacyValidationStep = "awaiting_dni_photo"

	res, err := o.Route(ctx, turnOf("hola"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusLegacy, res.Status)
	assert.Equal(t, "awaiting_dni_photo", res.Ctx.LegacyValidationStep)
}

func TestRouteSingleSelfRegistrationResolvesImmediately(t *testing.T) {
	ctx := context.Background()
	repo := registry.NewInMemoryRepository(180)
	_, err := repo.Upsert(ctx, &registry.UpsertRequest{
		PhoneNumber:    "+5491160000000",
		PharmacyID:     "pharm-1",
		DNI:            "22598630",
		Name:           "PEDROZO, ADELA MARIA",
		PlexCustomerID: "c-100",
		IsSelf:         true,
	})
	require.NoError(t, err)
	o := newTestOrchestrator(t, &fakeLookup{}, repo)

	res, err := o.Route(ctx, turnOf("hola, cuánto debo?"), NewContext("pharm-1", "+5491160000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.Equal(t, AuthStrong, res.Ctx.AuthLevel)
	assert.True(t, res.Ctx.IsSelf)
	assert.Equal(t, "c-100", res.Ctx.Identification.PlexCustomerID)
	assert.Equal(t, IntentIdentified, res.Reply.Intent)

	// Renewal, not a duplicate row.
	persons, err := repo.GetValidByPhone(ctx, "+5491160000000", "pharm-1")
	require.NoError(t, err)
	assert.Len(t, persons, 1)
}

func TestRouteMultipleRegistrationsOfferSelection(t *testing.T) {
	ctx := context.Background()
	repo := registry.NewInMemoryRepository(180)
	for _, req := range []*registry.UpsertRequest{
		{PhoneNumber: "+549116", PharmacyID: "pharm-1", DNI: "22598630", Name: "PEDROZO, ADELA", PlexCustomerID: "c-100", IsSelf: true},
		{PhoneNumber: "+549116", PharmacyID: "pharm-1", DNI: "30111222", Name: "PEDROZO, MARTIN", PlexCustomerID: "c-101"},
	} {
		_, err := repo.Upsert(ctx, req)
		require.NoError(t, err)
	}
	o := newTestOrchestrator(t, &fakeLookup{}, repo)

	turn := turnOf("hola")
	turn.Phone = "+549116"
	res, err := o.Route(ctx, turn, NewContext("pharm-1", "+549116"))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)
	assert.Equal(t, IntentAccountSelection, res.Reply.Intent)
	assert.True(t, res.Ctx.AwaitingPersonSelection)
	require.Len(t, res.Ctx.Candidates, 2)
	// Self-registered account is listed first.
	assert.True(t, res.Ctx.Candidates[0].IsSelf)
	assert.ElementsMatch(t, []string{"PEDROZO, ADELA", "PEDROZO, MARTIN"}, res.Reply.Data["options"])
}

func TestRouteSingleThirdPartyRegistrationAsksOwnOrOther(t *testing.T) {
	ctx := context.Background()
	repo := registry.NewInMemoryRepository(180)
	_, err := repo.Upsert(ctx, &registry.UpsertRequest{
		PhoneNumber:    "+5491160000000",
		PharmacyID:     "pharm-1",
		DNI:            "30111222",
		Name:           "PEDROZO, MARTIN",
		PlexCustomerID: "c-101",
	})
	require.NoError(t, err)
	o := newTestOrchestrator(t, &fakeLookup{}, repo)

	res, err := o.Route(ctx, turnOf("hola"), NewContext("pharm-1", "+5491160000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)
	assert.Equal(t, IntentOwnOrOther, res.Reply.Intent)
	assert.Equal(t, "PEDROZO, MARTIN", res.Reply.Data["name"])
	assert.True(t, res.Ctx.AwaitingOwnOrOther)
	require.Len(t, res.Ctx.Candidates, 1)
}

func TestRouteStoreFailureFallsBackToWelcome(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeLookup{}, failingRepo{})

	res, err := o.Route(ctx, turnOf("hola"), NewContext("pharm-1", "+5491160000000"))
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)
	assert.Equal(t, IntentWelcomeMenu, res.Reply.Intent)
}

func TestRouteEscalatesAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{} // every search comes back empty
	o := newTestOrchestrator(t, lookup, registry.NewInMemoryRepository(180))

	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification.Step = StepAwaitingIdentifier

	for i := 1; i <= 3; i++ {
		res, err := o.Route(ctx, turnOf("22598630"), conv)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, res.Status)
		assert.Equal(t, IntentIdentifierNotFound, res.Reply.Intent)
		assert.Equal(t, i, res.Ctx.Identification.Retries)
		conv = res.Ctx
	}

	res, err := o.Route(ctx, turnOf("22598630"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, res.Status)
	assert.Equal(t, IntentEscalation, res.Reply.Intent)
	assert.True(t, res.Ctx.RequiresHuman)
	assert.Equal(t, ReasonIdentificationFailed, res.Ctx.EscalationReason)
	assert.Equal(t, StepEscalated, res.Ctx.Identification.Step)
	assert.Empty(t, res.Ctx.PendingIdentifier)
	assert.Nil(t, res.Ctx.Candidates)
	// Three lookups happened; the fourth turn escalated without searching.
	assert.Len(t, lookup.queries, 3)
}

func TestRouteCompletionSurvivesRegistryFailure(t *testing.T) {
	ctx := context.Background()
	lookup := &fakeLookup{records: []ExternalIdentity{adelaRecord()}}
	o := newTestOrchestrator(t, lookup, failingRepo{})

	conv := NewContext("pharm-1", "+5491160000000")
	conv.Identification.Step = StepNameVerification
	rec := adelaRecord()
	conv.Identification.PlexCustomer = &rec
	conv.Identification.PlexCustomerID = rec.ID

	res, err := o.Route(ctx, turnOf("Adela Pedrozo"), conv)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, res.Status)
	assert.True(t, res.Ctx.Identification.CustomerIdentified)
}

// failingRepo errors on every call; the workflow must degrade, not break.
type failingRepo struct{}

func (failingRepo) GetValidByPhone(ctx context.Context, phone, pharmacyID string) ([]registry.RegisteredPerson, error) {
	return nil, errors.New("registry down")
}

func (failingRepo) Upsert(ctx context.Context, req *registry.UpsertRequest) (*registry.RegisteredPerson, error) {
	return nil, errors.New("registry down")
}

func (failingRepo) MarkUsed(ctx context.Context, id string) error {
	return errors.New("registry down")
}

func (failingRepo) DeactivateExpired(ctx context.Context, pharmacyID string) (int64, error) {
	return 0, errors.New("registry down")
}
