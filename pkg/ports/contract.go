package ports

import (
	"context"
	"testing"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSlotStoreContract runs a suite of tests to verify that a SlotStore implementation
// adheres to the defined interface contract.
func RunSlotStoreContract(t *testing.T, store SlotStore) {
	ctx := context.Background()
	slot := "contract-slot-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, slot, []byte(`{"x":1}`)))

		got, err := store.Get(ctx, slot)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x":1}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, slot, []byte(`"second"`)))

		got, err := store.Get(ctx, slot)
		require.NoError(t, err)
		assert.Equal(t, `"second"`, string(got))
	})

	t.Run("Get Empty", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+slot)
		assert.ErrorIs(t, err, domain.ErrSlotEmpty)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, slot, []byte(`1`)))
		require.NoError(t, store.Delete(ctx, slot))

		_, err := store.Get(ctx, slot)
		assert.ErrorIs(t, err, domain.ErrSlotEmpty, "Get after Delete should return ErrSlotEmpty")
	})

	t.Run("Keys", func(t *testing.T) {
		a, b := slot+"-a", slot+"-b"
		require.NoError(t, store.Set(ctx, a, []byte(`1`)))
		require.NoError(t, store.Set(ctx, b, []byte(`2`)))
		defer func() {
			_ = store.Delete(ctx, a)
			_ = store.Delete(ctx, b)
		}()

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, a)
		assert.Contains(t, keys, b)
	})
}
