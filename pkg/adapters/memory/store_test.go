package memory_test

import (
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunSlotStoreContract(t, store)
}
