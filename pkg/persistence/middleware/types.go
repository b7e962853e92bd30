// Package middleware wraps a ports.SlotStore to add behavior: encryption at
// rest and keeping private slots off shared backends.
package middleware

import "github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"

// Middleware allows wrapping a SlotStore to add behavior.
type Middleware func(ports.SlotStore) ports.SlotStore

// Chain applies mws to store; the first middleware is the outermost.
func Chain(store ports.SlotStore, mws ...Middleware) ports.SlotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
