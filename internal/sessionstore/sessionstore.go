// Package sessionstore persists session records in a shared key-value store.
// The external store is authoritative for cross-process session validity;
// records are keyed by a composite of server tag, user id and session id and
// expire together with the access token.
package sessionstore

import (
	"context"
)

// Record is one session's payload. Values survive a JSON round-trip.
type Record map[string]interface{}

// Store is the session record store consumed by the HTTP auth gate and the
// websocket session protocol.
type Store interface {
	// Open writes a new session record for the user and returns its id.
	Open(ctx context.Context, userID string, payload Record) (string, error)
	// Get returns the record for (userID, sessionID), or nil when absent.
	Get(ctx context.Context, userID, sessionID string) (Record, error)
	// Delete removes the record for (userID, sessionID).
	Delete(ctx context.Context, userID, sessionID string) error
	// Count returns the number of live sessions for the user.
	Count(ctx context.Context, userID string) (int, error)
	// SetField updates one field of an existing record.
	SetField(ctx context.Context, userID, sessionID, field string, value interface{}) error
	// FindByUser returns any live record for the user, or nil when none.
	FindByUser(ctx context.Context, userID string) (Record, error)
}

// Key builds the composite store key.
func Key(serverTag, userID, sessionID string) string {
	key := "service:" + serverTag + ":userId:" + userID
	if sessionID != "" {
		key += ":sessionId:" + sessionID
	}
	return key
}

// UserPattern builds the wildcard pattern matching all of a user's sessions.
func UserPattern(serverTag, userID string) string {
	return Key(serverTag, userID, "") + ":*"
}
