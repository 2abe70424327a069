// Package reqctx carries the per-request ambient store through the request's
// call tree. The store rides on context.Context, so every function reachable
// from a request handler observes the same store and two concurrent requests
// can never observe each other's values.
package reqctx

import (
	"context"

	"github.com/chassisworks/chassis/internal/schema"
)

// SessionView is the authenticated-session slice of the store. Nil while the
// caller is anonymous.
type SessionView struct {
	UserID    string
	SessionID string
	Payload   map[string]interface{}
}

// Store is the per-request ambient state. It is fully populated before any
// handler or capability resolution runs and is read-only afterwards.
type Store struct {
	RequestID string
	IP        string
	Path      string
	Service   string
	Domain    string
	Action    string
	Method    string
	Language  string
	Schema    schema.Services
	Session   *SessionView
}

// Authenticated reports whether the request carries a bound session.
func (s *Store) Authenticated() bool {
	return s != nil && s.Session != nil
}

type ctxKey struct{}

// With binds the store to the context for the remainder of the request.
func With(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, store)
}

// From reads the bound store, reporting whether one is present.
func From(ctx context.Context) (*Store, bool) {
	store, ok := ctx.Value(ctxKey{}).(*Store)
	return store, ok
}

// MustFrom reads the bound store. Calling it outside a bound scope is a
// programming error and panics.
func MustFrom(ctx context.Context) *Store {
	store, ok := From(ctx)
	if !ok {
		panic("reqctx: no active context")
	}
	return store
}
