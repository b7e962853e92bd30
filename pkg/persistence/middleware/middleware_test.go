package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/persistence/middleware"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

type person struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestStoresHonorContract(t *testing.T) {
	private, err := middleware.NewPrivateMiddleware([]string{`^contract-`}, memory.NewStore())
	require.NoError(t, err)

	t.Run("encrypted", func(t *testing.T) {
		ports.RunSlotStoreContract(t, middleware.Chain(memory.NewStore(),
			encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})))
	})
	t.Run("private", func(t *testing.T) {
		ports.RunSlotStoreContract(t, middleware.Chain(memory.NewStore(), private))
	})
}

func TestEncryptionRoundtrip(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	store := middleware.Chain(backend, encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}))

	slot := resource.NewSlot("person", store)
	require.NoError(t, slot.Store(ctx, person{Name: "alice", Age: 31}))

	raw, err := backend.Get(ctx, "person")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "alice")

	var got person
	require.NoError(t, slot.Load(ctx, &got))
	assert.Equal(t, person{Name: "alice", Age: 31}, got)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, keys)
}

func TestEncryptionEmptySlot(t *testing.T) {
	store := middleware.Chain(memory.NewStore(), encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
	_, err := store.Get(context.Background(), "nothing")
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
}

func TestEncryptionKeyRotation(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	old := middleware.Chain(backend, encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey}))
	require.NoError(t, old.Set(ctx, "goal", []byte(`"kitchen"`)))

	rotated := middleware.Chain(backend, encrypted(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	}))
	got, err := rotated.Get(ctx, "goal")
	require.NoError(t, err)
	assert.Equal(t, `"kitchen"`, string(got))

	wrong := middleware.Chain(backend, encrypted(t, middleware.EncryptionConfig{ActiveKey: newKey}))
	_, err = wrong.Get(ctx, "goal")
	assert.ErrorIs(t, err, middleware.ErrDecrypt)
}

func TestEncryptionRejectsShortKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	a, b := generateKey(t), generateKey(t)
	enc := base64.StdEncoding.EncodeToString

	cfg, err := middleware.ParseKeys([]string{enc(a), enc(b)})
	require.NoError(t, err)
	assert.Equal(t, a, cfg.ActiveKey)
	assert.Equal(t, [][]byte{b}, cfg.FallbackKeys)

	tests := []struct {
		name string
		keys []string
	}{
		{"none", nil},
		{"not base64", []string{"%%%"}},
		{"wrong size", []string{enc([]byte("0123456789"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := middleware.ParseKeys(tt.keys)
			assert.Error(t, err)
		})
	}
}

func TestPrivateSlotsStayLocal(t *testing.T) {
	ctx := context.Background()
	shared, local := memory.NewStore(), memory.NewStore()
	mw, err := middleware.NewPrivateMiddleware([]string{`^person\.`}, local)
	require.NoError(t, err)
	store := middleware.Chain(shared, mw)

	require.NoError(t, store.Set(ctx, "person.name", []byte(`"bob"`)))
	require.NoError(t, store.Set(ctx, "goal", []byte(`"door"`)))

	_, err = shared.Get(ctx, "person.name")
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
	got, err := store.Get(ctx, "person.name")
	require.NoError(t, err)
	assert.Equal(t, `"bob"`, string(got))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"goal", "person.name"}, keys)

	require.NoError(t, store.Delete(ctx, "person.name"))
	_, err = local.Get(ctx, "person.name")
	assert.ErrorIs(t, err, domain.ErrSlotEmpty)
}

func TestPrivateRejectsBadPattern(t *testing.T) {
	_, err := middleware.NewPrivateMiddleware([]string{"("}, memory.NewStore())
	assert.Error(t, err)
}
