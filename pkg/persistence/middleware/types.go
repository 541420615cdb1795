// Package middleware wraps run state stores with cross-cutting behaviour.
package middleware

import "github.com/aretw0/cairn/pkg/ports"

// Middleware allows wrapping a RunStateStore to add behavior.
type Middleware func(ports.RunStateStore) ports.RunStateStore

// Chain applies middlewares so that the first one is outermost.
func Chain(store ports.RunStateStore, mws ...Middleware) ports.RunStateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
