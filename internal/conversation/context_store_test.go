package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexofarma/whatsapp-backend/internal/identity"
)

func newTestContextStore(t *testing.T) (*ContextStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewContextStore(rdb, time.Hour), mr
}

func TestContextStoreRoundTrip(t *testing.T) {
	store, _ := newTestContextStore(t)
	ctx := context.Background()

	conv := identity.NewContext("farmacia-1", "5491122334455")
	conv.CustomerName = "Adela Pedrozo"
	conv.Identification.CustomerIdentified = true
	conv.Preserved.PaymentIntent = "pagar_cuenta"

	require.NoError(t, store.Save(ctx, "farmacia-1", "5491122334455", &conv))

	got, err := store.Load(ctx, "farmacia-1", "5491122334455")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Adela Pedrozo", got.CustomerName)
	assert.True(t, got.Identification.CustomerIdentified)
	assert.Equal(t, "pagar_cuenta", got.Preserved.PaymentIntent)
}

func TestContextStoreMissingIsNil(t *testing.T) {
	store, _ := newTestContextStore(t)

	got, err := store.Load(context.Background(), "farmacia-1", "5491100000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestContextStoreTTLRefreshedOnSave(t *testing.T) {
	store, mr := newTestContextStore(t)
	ctx := context.Background()

	conv := identity.NewContext("farmacia-1", "5491122334455")
	require.NoError(t, store.Save(ctx, "farmacia-1", "5491122334455", &conv))

	key := contextKey("farmacia-1", "5491122334455")
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, store.Save(ctx, "farmacia-1", "5491122334455", &conv))
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestContextStoreDelete(t *testing.T) {
	store, _ := newTestContextStore(t)
	ctx := context.Background()

	conv := identity.NewContext("farmacia-1", "5491122334455")
	require.NoError(t, store.Save(ctx, "farmacia-1", "5491122334455", &conv))
	require.NoError(t, store.Delete(ctx, "farmacia-1", "5491122334455"))

	got, err := store.Load(ctx, "farmacia-1", "5491122334455")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestContextStoreKeysAreTenantScoped(t *testing.T) {
	store, _ := newTestContextStore(t)
	ctx := context.Background()

	a := identity.NewContext("farmacia-1", "5491122334455")
	a.CustomerName = "Adela"
	b := identity.NewContext("farmacia-2", "5491122334455")
	b.CustomerName = "Marcos"

	require.NoError(t, store.Save(ctx, "farmacia-1", "5491122334455", &a))
	require.NoError(t, store.Save(ctx, "farmacia-2", "5491122334455", &b))

	got, err := store.Load(ctx, "farmacia-1", "5491122334455")
	require.NoError(t, err)
	assert.Equal(t, "Adela", got.CustomerName)
}
